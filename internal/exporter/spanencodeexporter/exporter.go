package spanencodeexporter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/collector/component"
	"go.opentelemetry.io/collector/pdata/ptrace"
	"go.uber.org/zap"

	"github.com/deepaksharma/otlp-span-encoder/internal/adapter"
	"github.com/deepaksharma/otlp-span-encoder/internal/spanencoder"
	"github.com/deepaksharma/otlp-span-encoder/internal/spool"
	"github.com/deepaksharma/otlp-span-encoder/internal/transport/otlphttp"
)

// sender delivers one encoded payload.
type sender interface {
	Send(ctx context.Context, payload []byte) error
}

// spanEncodeExporter encodes each batch of traces into a single
// ExportTraceServiceRequest and posts it.
type spanEncodeExporter struct {
	logger  *zap.Logger
	config  *Config
	metrics *MetricsManager
	client  sender

	// mu guards the encoder and buf, which are reused across batches.
	mu  sync.Mutex
	enc *spanencoder.BatchEncoder
	buf []byte

	spool      *spool.Spool
	replayCron *cron.Cron
	replayMu   sync.Mutex
}

func newSpanEncodeExporter(set component.TelemetrySettings, cfg *Config) (*spanEncodeExporter, error) {
	opts, err := spanencoder.BuildOptions(cfg.Limits, cfg.StatusKeys)
	if err != nil {
		return nil, fmt.Errorf("invalid encoder options: %w", err)
	}
	enc, err := spanencoder.New(opts)
	if err != nil {
		return nil, err
	}

	logger := set.Logger
	client, err := otlphttp.NewClient(cfg.clientConfig(), logger.Named("otlphttp"))
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	logger.Info("Span encode exporter created",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("compression", cfg.Compression),
		zap.Bool("spool", cfg.Spool.Path != ""))

	return &spanEncodeExporter{
		logger:  logger,
		config:  cfg,
		metrics: NewMetricsManager(set.MeterProvider.Meter("spanencodeexporter")),
		client:  client,
		enc:     enc,
	}, nil
}

// Start implements the Component interface
func (e *spanEncodeExporter) Start(_ context.Context, _ component.Host) error {
	if e.config.Spool.Path != "" {
		s, err := spool.Open(e.config.Spool.Path, e.config.Spool.MaxRecords, e.logger.Named("spool"))
		if err != nil {
			return err
		}
		e.spool = s

		e.replayCron = cron.New()
		if _, err := e.replayCron.AddFunc(e.config.Spool.ReplaySchedule, e.replay); err != nil {
			_ = s.Close()
			return fmt.Errorf("failed to schedule spool replay: %w", err)
		}
		e.replayCron.Start()
		e.logger.Info("Spool replay scheduled",
			zap.String("path", e.config.Spool.Path),
			zap.String("schedule", e.config.Spool.ReplaySchedule),
			zap.Int("pending", s.Len()))
	}

	var spoolSize func() int64
	if e.spool != nil {
		spoolSize = func() int64 { return int64(e.spool.Len()) }
	}
	if err := e.metrics.RegisterMetrics(spoolSize); err != nil {
		e.logger.Error("Failed to register metrics", zap.Error(err))
	}
	return nil
}

// Shutdown implements the Component interface
func (e *spanEncodeExporter) Shutdown(ctx context.Context) error {
	if err := e.metrics.Unregister(); err != nil {
		e.logger.Warn("Failed to unregister metrics", zap.Error(err))
	}
	if e.replayCron != nil {
		select {
		case <-e.replayCron.Stop().Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if e.spool != nil {
		if err := e.spool.Close(); err != nil {
			return fmt.Errorf("failed to close spool: %w", err)
		}
	}
	return nil
}

// consumeTraces encodes every ResourceSpans of td into one request and sends
// it. Payloads rejected with a retryable error are spooled when a spool is
// configured.
func (e *spanEncodeExporter) consumeTraces(ctx context.Context, td ptrace.Traces) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	end := 0
	rss := td.ResourceSpans()
	for i := 0; i < rss.Len(); i++ {
		resource, spans := adapter.FromResourceSpans(rss.At(i))
		if err := e.enc.Begin(resource, spans); err != nil {
			return fmt.Errorf("failed to begin batch: %w", err)
		}
		var err error
		e.buf, end, err = e.enc.Encode(e.buf, end)
		e.enc.End()
		if err != nil {
			return fmt.Errorf("failed to encode batch: %w", err)
		}
		e.metrics.RecordBatch(e.enc.Stats())
	}
	if end == 0 {
		return nil
	}
	payload := e.buf[:end]

	err := e.client.Send(ctx, payload)
	if err == nil {
		return nil
	}
	e.metrics.sendFailures.Inc()

	if e.spool == nil || !otlphttp.IsRetryable(err) {
		return fmt.Errorf("failed to send %d bytes: %w", len(payload), err)
	}
	if spoolErr := e.spool.Append(payload); spoolErr != nil {
		e.logger.Error("Failed to spool payload", zap.Error(spoolErr))
		return fmt.Errorf("failed to send %d bytes: %w", len(payload), err)
	}
	e.metrics.spooledPayloads.Inc()
	e.logger.Warn("Send failed, payload spooled for replay",
		zap.Int("bytes", len(payload)),
		zap.Error(err))
	return nil
}

// replay resends spooled payloads. Runs are not allowed to overlap.
func (e *spanEncodeExporter) replay() {
	if !e.replayMu.TryLock() {
		return
	}
	defer e.replayMu.Unlock()

	if e.spool.Len() == 0 {
		return
	}

	timeout := e.config.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	// Each payload gets the configured timeout; the run as a whole is bounded
	// by how much is pending.
	ctx, cancel := context.WithTimeout(context.Background(), timeout*time.Duration(e.spool.Len()))
	defer cancel()

	start := time.Now()
	n, err := e.spool.Replay(ctx, e.client.Send)
	e.metrics.replayedPayloads.Add(int64(n))
	if err != nil {
		e.logger.Warn("Spool replay stopped",
			zap.Int("replayed", n),
			zap.Int("pending", e.spool.Len()),
			zap.Error(err))
		return
	}
	e.logger.Info("Spool replay finished",
		zap.Int("replayed", n),
		zap.Duration("duration", time.Since(start)))
}
