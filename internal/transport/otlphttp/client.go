// Package otlphttp posts encoded ExportTraceServiceRequest payloads to an
// OTLP/HTTP traces endpoint.
package otlphttp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	contentType  = "application/x-protobuf"
	maxErrMsgLen = 1024
)

// Compression selects the request body encoding.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
)

// Config configures a Client.
type Config struct {
	Endpoint    string
	Compression Compression
	Headers     map[string]string
	Timeout     time.Duration
}

// Validate checks the endpoint and compression.
func (c Config) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", c.Endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint %q must use http or https", c.Endpoint)
	}
	switch c.Compression {
	case "", CompressionNone, CompressionGzip:
	default:
		return fmt.Errorf("unsupported compression %q", c.Compression)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	return nil
}

// StatusError is returned for a non-2xx response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned HTTP status %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// Retryable reports whether the request may succeed if sent again.
func (e *StatusError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// IsRetryable reports whether err from Send is worth retrying later: a
// retryable status or a failure to reach the server.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var ue *url.Error
	return errors.As(err, &ue)
}

// Client sends payloads to one endpoint. It is safe for concurrent use.
type Client struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger

	bufs sync.Pool
}

// NewClient returns a client whose transport is instrumented with otelhttp.
// opts are passed to otelhttp.NewTransport.
func NewClient(cfg Config, logger *zap.Logger, opts ...otelhttp.Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		cfg: cfg,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport, opts...),
		},
		logger: logger,
		bufs: sync.Pool{New: func() any {
			return new(bytes.Buffer)
		}},
	}, nil
}

// Send posts payload. payload is not retained.
func (c *Client) Send(ctx context.Context, payload []byte) error {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	body := payload
	if c.cfg.Compression == CompressionGzip {
		buf := c.bufs.Get().(*bytes.Buffer)
		defer c.bufs.Put(buf)
		buf.Reset()

		gz := gzip.NewWriter(buf)
		if _, err := gz.Write(payload); err != nil {
			return fmt.Errorf("failed to compress payload: %w", err)
		}
		if err := gz.Close(); err != nil {
			return fmt.Errorf("failed to compress payload: %w", err)
		}
		body = buf.Bytes()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", contentType)
	if c.cfg.Compression == CompressionGzip {
		req.Header.Set("Content-Encoding", "gzip")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		if err := resp.Body.Close(); err != nil {
			c.logger.Debug("Failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode/100 != 2 {
		scanner := bufio.NewScanner(io.LimitReader(resp.Body, maxErrMsgLen))
		line := ""
		if scanner.Scan() {
			line = scanner.Text()
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: line}
	}

	c.logger.Debug("Sent payload",
		zap.Int("bytes", len(payload)),
		zap.Int("wire_bytes", len(body)),
		zap.Int("status", resp.StatusCode))
	return nil
}
