package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/deepaksharma/otlp-span-encoder/internal/sdkexporter"
	"github.com/deepaksharma/otlp-span-encoder/internal/spanencoder"
	"github.com/deepaksharma/otlp-span-encoder/internal/transport/otlphttp"
)

const tracerName = "github.com/deepaksharma/otlp-span-encoder/generate"

type GenerateCommand struct {
	out   io.Writer
	flags *pflag.FlagSet

	spans      int
	attributes int
	outPath    string
	endpoint   string
	configPath string
	verbose    bool
	limits     limitFlags

	// create opens the --out file; os.Create when nil.
	create func(path string) (io.WriteCloser, error)
}

type limitFlags struct {
	spanAttributes  int
	eventAttributes int
	linkAttributes  int
	events          int
	links           int
	valueLength     int
}

func NewGenerateCommand() *GenerateCommand {
	return &GenerateCommand{out: os.Stdout}
}

func (c *GenerateCommand) Synopsis() string {
	return "Generates synthetic spans and encodes them as an OTLP trace request"
}

func (c *GenerateCommand) Flags() *pflag.FlagSet {
	if c.flags != nil {
		return c.flags
	}
	flags := pflag.NewFlagSet("generate", pflag.ContinueOnError)
	flags.IntVar(&c.spans, "spans", 10, "number of spans to generate")
	flags.IntVar(&c.attributes, "attributes", 4, "attributes per span")
	flags.StringVar(&c.outPath, "out", "", "write the encoded payload to this file")
	flags.StringVar(&c.endpoint, "endpoint", "", "post the encoded payload to this OTLP/HTTP traces endpoint")
	flags.StringVar(&c.configPath, "config", "", "YAML config file")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "log at debug level")

	flags.IntVar(&c.limits.spanAttributes, "limit-span-attributes", 0, "max attributes per span")
	flags.IntVar(&c.limits.eventAttributes, "limit-event-attributes", 0, "max attributes per event")
	flags.IntVar(&c.limits.linkAttributes, "limit-link-attributes", 0, "max attributes per link")
	flags.IntVar(&c.limits.events, "limit-events", 0, "max events per span")
	flags.IntVar(&c.limits.links, "limit-links", 0, "max links per span")
	flags.IntVar(&c.limits.valueLength, "limit-value-length", 0, "max string attribute value length in bytes")
	c.flags = flags
	return flags
}

func (c *GenerateCommand) Execute(ctx context.Context, _ []string) error {
	logger, err := newLogger(c.verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if c.spans < 0 || c.attributes < 0 {
		return errors.New("--spans and --attributes must not be negative")
	}

	cfg, err := LoadConfig(c.configPath)
	if err != nil {
		return err
	}
	c.applyFlags(cfg)

	if c.outPath == "" && cfg.Endpoint == "" {
		return errors.New("one of --out or --endpoint is required")
	}

	opts, err := spanencoder.BuildOptions(cfg.Limits, cfg.StatusKeys)
	if err != nil {
		return err
	}

	sink := &payloadSink{}
	var out io.WriteCloser
	if c.outPath != "" {
		out, err = c.createOutput(c.outPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() {
			if out != nil {
				_ = out.Close()
			}
		}()
		sink.file = out
	}
	if cfg.Endpoint != "" {
		client, err := otlphttp.NewClient(cfg.clientConfig(), logger)
		if err != nil {
			return err
		}
		sink.client = client
	}

	exp, err := sdkexporter.New(sink, opts, logger)
	if err != nil {
		return err
	}

	batch := max(c.spans, 1)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp,
			sdktrace.WithMaxQueueSize(batch),
			sdktrace.WithMaxExportBatchSize(batch),
		),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", "spanenc"),
			attribute.String("service.version", Version),
		)),
	)
	generateSpans(ctx, tp.Tracer(tracerName, trace.WithInstrumentationVersion(Version)), c.spans, c.attributes)

	// Shutdown flushes the batcher.
	if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("failed to flush spans: %w", err)
	}
	if err := sink.Err(); err != nil {
		return err
	}
	if out != nil {
		err := out.Close()
		out = nil
		if err != nil {
			return fmt.Errorf("failed to close output file: %w", err)
		}
	}

	payloads, size := sink.Totals()
	logger.Debug("Generated spans", zap.Int("spans", c.spans), zap.Int("payloads", payloads), zap.Int("bytes", size))
	_, err = fmt.Fprintf(c.out, "encoded %d spans into %d bytes (%d payloads)\n", c.spans, size, payloads)
	return err
}

func (c *GenerateCommand) createOutput(path string) (io.WriteCloser, error) {
	if c.create != nil {
		return c.create(path)
	}
	return os.Create(path)
}

// applyFlags overrides cfg with the flags given on the command line.
func (c *GenerateCommand) applyFlags(cfg *Config) {
	flags := c.Flags()
	if flags.Changed("endpoint") {
		cfg.Endpoint = c.endpoint
	}
	set := func(name string, v int, dst **int) {
		if flags.Changed(name) {
			n := v
			*dst = &n
		}
	}
	set("limit-span-attributes", c.limits.spanAttributes, &cfg.Limits.SpanAttributes)
	set("limit-event-attributes", c.limits.eventAttributes, &cfg.Limits.EventAttributes)
	set("limit-link-attributes", c.limits.linkAttributes, &cfg.Limits.LinkAttributes)
	set("limit-events", c.limits.events, &cfg.Limits.Events)
	set("limit-links", c.limits.links, &cfg.Limits.Links)
	set("limit-value-length", c.limits.valueLength, &cfg.Limits.AttributeValueLength)
}

// generateSpans creates one root span with n children. Every child carries
// attrs attributes and an event; every tenth child links to the previous one
// and ends with an error status.
func generateSpans(ctx context.Context, tracer trace.Tracer, n, attrs int) {
	if n == 0 {
		return
	}
	ctx, root := tracer.Start(ctx, "generate", trace.WithSpanKind(trace.SpanKindServer))
	var prev trace.SpanContext
	for i := 1; i < n; i++ {
		opts := []trace.SpanStartOption{trace.WithSpanKind(trace.SpanKindInternal)}
		if i%10 == 0 && prev.IsValid() {
			opts = append(opts, trace.WithLinks(trace.Link{
				SpanContext: prev,
				Attributes:  []attribute.KeyValue{attribute.Int("link.index", i-1)},
			}))
		}
		_, span := tracer.Start(ctx, fmt.Sprintf("op-%d", i), opts...)
		for a := 0; a < attrs; a++ {
			span.SetAttributes(attribute.String(fmt.Sprintf("attr.%d", a), fmt.Sprintf("value-%d-%d", i, a)))
		}
		span.AddEvent("work", trace.WithAttributes(attribute.Int("index", i)))
		if i%10 == 0 {
			span.SetStatus(codes.Error, fmt.Sprintf("op-%d failed", i))
		}
		prev = span.SpanContext()
		span.End()
	}
	root.End()
}

// payloadSink writes payloads to a file, an endpoint, or both. The SDK
// batcher swallows exporter errors, so the first one is kept for Execute.
type payloadSink struct {
	file   io.Writer
	client *otlphttp.Client

	mu       sync.Mutex
	err      error
	payloads int
	bytes    int
}

func (s *payloadSink) Send(ctx context.Context, payload []byte) error {
	err := s.send(ctx, payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if s.err == nil {
			s.err = err
		}
		return err
	}
	s.payloads++
	s.bytes += len(payload)
	return nil
}

func (s *payloadSink) send(ctx context.Context, payload []byte) error {
	if s.file != nil {
		if _, err := s.file.Write(payload); err != nil {
			return fmt.Errorf("failed to write payload: %w", err)
		}
	}
	if s.client != nil {
		if err := s.client.Send(ctx, payload); err != nil {
			return err
		}
	}
	return nil
}

func (s *payloadSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *payloadSink) Totals() (payloads, bytes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payloads, s.bytes
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
