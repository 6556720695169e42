// Package sdkexporter plugs the span encoder into the OpenTelemetry SDK as a
// trace.SpanExporter.
package sdkexporter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/deepaksharma/otlp-span-encoder/internal/adapter"
	"github.com/deepaksharma/otlp-span-encoder/internal/spanencoder"
)

// ErrShutdown is returned by ExportSpans after Shutdown.
var ErrShutdown = errors.New("exporter is shut down")

// Sender delivers one encoded ExportTraceServiceRequest. The payload is only
// valid for the duration of the call.
type Sender interface {
	Send(ctx context.Context, payload []byte) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, payload []byte) error

func (f SenderFunc) Send(ctx context.Context, payload []byte) error { return f(ctx, payload) }

// Exporter encodes SDK spans and hands the payload to a Sender.
type Exporter struct {
	sender Sender
	logger *zap.Logger

	mu       sync.Mutex
	enc      *spanencoder.BatchEncoder
	buf      []byte
	shutdown bool
}

var _ sdktrace.SpanExporter = (*Exporter)(nil)

// New returns an exporter encoding with opts.
func New(sender Sender, opts spanencoder.Options, logger *zap.Logger) (*Exporter, error) {
	if sender == nil {
		return nil, errors.New("sender must not be nil")
	}
	enc, err := spanencoder.New(opts)
	if err != nil {
		return nil, err
	}
	return &Exporter{
		sender: sender,
		logger: logger,
		enc:    enc,
	}, nil
}

// ExportSpans encodes spans into one request, one ResourceSpans per distinct
// resource, and sends it.
func (e *Exporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.shutdown {
		return ErrShutdown
	}
	if len(spans) == 0 {
		return nil
	}

	end := 0
	var stats spanencoder.Stats
	for _, b := range adapter.FromReadOnlySpans(spans) {
		if err := e.enc.Begin(b.Resource, b.Spans); err != nil {
			return fmt.Errorf("failed to begin batch: %w", err)
		}
		var err error
		e.buf, end, err = e.enc.Encode(e.buf, end)
		e.enc.End()
		if err != nil {
			return fmt.Errorf("failed to encode batch: %w", err)
		}
		st := e.enc.Stats()
		stats.Spans += st.Spans
		stats.DroppedAttributes += st.DroppedAttributes
		stats.DroppedEvents += st.DroppedEvents
		stats.DroppedLinks += st.DroppedLinks
	}

	if err := e.sender.Send(ctx, e.buf[:end]); err != nil {
		return fmt.Errorf("failed to send %d spans: %w", stats.Spans, err)
	}
	e.logger.Debug("Exported spans",
		zap.Int("spans", stats.Spans),
		zap.Int("bytes", end),
		zap.Int("dropped_attributes", stats.DroppedAttributes),
		zap.Int("dropped_events", stats.DroppedEvents),
		zap.Int("dropped_links", stats.DroppedLinks))
	return nil
}

// Shutdown stops the exporter. It is safe to call more than once.
func (e *Exporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shutdown = true
	e.buf = nil
	return ctx.Err()
}
