package spanencodeexporter

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/collector/component"

	"github.com/deepaksharma/otlp-span-encoder/internal/spanencoder"
	"github.com/deepaksharma/otlp-span-encoder/internal/transport/otlphttp"
)

// Config defines configuration for the span encode exporter.
type Config struct {
	// Endpoint is the OTLP/HTTP traces URL, e.g. http://collector:4318/v1/traces.
	Endpoint string `mapstructure:"endpoint"`

	// Compression is "none" or "gzip".
	Compression string `mapstructure:"compression"`

	// Headers are added to every request.
	Headers map[string]string `mapstructure:"headers"`

	// Timeout bounds a single request.
	Timeout time.Duration `mapstructure:"timeout"`

	// Limits bound how much of each span is encoded.
	Limits spanencoder.LimitsConfig `mapstructure:"limits"`

	// StatusKeys names the attributes that carry a legacy span status.
	StatusKeys spanencoder.StatusKeysConfig `mapstructure:"status_keys"`

	// Spool keeps payloads that failed with a retryable error.
	Spool SpoolConfig `mapstructure:"spool"`
}

// SpoolConfig configures the on-disk spool. The spool is disabled when Path
// is empty.
type SpoolConfig struct {
	// Path is the bolt database file.
	Path string `mapstructure:"path"`

	// MaxRecords bounds the spool; the oldest payloads are evicted first.
	MaxRecords int `mapstructure:"max_records"`

	// ReplaySchedule is the cron schedule on which spooled payloads are resent.
	ReplaySchedule string `mapstructure:"replay_schedule"`
}

var _ component.Config = (*Config)(nil)

// Validate checks if the exporter configuration is valid
func (cfg *Config) Validate() error {
	if cfg.Endpoint == "" {
		return fmt.Errorf("endpoint must be specified")
	}
	if err := cfg.clientConfig().Validate(); err != nil {
		return err
	}
	if err := cfg.Limits.Validate(); err != nil {
		return fmt.Errorf("invalid limits: %w", err)
	}

	if cfg.Spool.Path != "" {
		if cfg.Spool.MaxRecords < 0 {
			return fmt.Errorf("spool.max_records must not be negative, got %d", cfg.Spool.MaxRecords)
		}
		if cfg.Spool.ReplaySchedule == "" {
			return fmt.Errorf("spool.replay_schedule must be specified when spool.path is set")
		}
		if _, err := cron.ParseStandard(cfg.Spool.ReplaySchedule); err != nil {
			return fmt.Errorf("invalid spool.replay_schedule: %w", err)
		}
	}
	return nil
}

func (cfg *Config) clientConfig() otlphttp.Config {
	return otlphttp.Config{
		Endpoint:    cfg.Endpoint,
		Compression: otlphttp.Compression(cfg.Compression),
		Headers:     cfg.Headers,
		Timeout:     cfg.Timeout,
	}
}

// createDefaultConfig creates the default configuration for the exporter.
func createDefaultConfig() component.Config {
	return &Config{
		Compression: string(otlphttp.CompressionGzip),
		Timeout:     10 * time.Second,
		StatusKeys:  spanencoder.DefaultStatusKeysConfig(),
		Spool: SpoolConfig{
			MaxRecords:     10000,
			ReplaySchedule: "@every 30s",
		},
	}
}
