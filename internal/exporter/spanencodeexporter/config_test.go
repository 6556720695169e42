package spanencodeexporter

import (
	"testing"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepaksharma/otlp-span-encoder/internal/spanencoder"
)

func TestCreateDefaultConfig(t *testing.T) {
	factory := NewFactory()
	cfg := factory.CreateDefaultConfig().(*Config)
	assert.NotNil(t, cfg, "failed to create default configuration")
	assert.Equal(t, "spanencode", factory.Type().String())

	// The endpoint has no default.
	assert.Error(t, cfg.Validate())
	cfg.Endpoint = "http://localhost:4318/v1/traces"
	assert.NoError(t, cfg.Validate())

	assert.Equal(t, spanencoder.DefaultLimits(), cfg.Limits.Resolve())
	assert.Equal(t, spanencoder.DefaultStatusKeysConfig(), cfg.StatusKeys)
}

func TestConfigValidation(t *testing.T) {
	neg := -1
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "bad scheme",
			mutate:  func(c *Config) { c.Endpoint = "ftp://collector" },
			wantErr: "http or https",
		},
		{
			name:    "bad compression",
			mutate:  func(c *Config) { c.Compression = "snappy" },
			wantErr: "unsupported compression",
		},
		{
			name:    "negative limit",
			mutate:  func(c *Config) { c.Limits.Events = &neg },
			wantErr: "invalid limits",
		},
		{
			name: "spool without schedule",
			mutate: func(c *Config) {
				c.Spool.Path = "/tmp/spool.db"
				c.Spool.ReplaySchedule = ""
			},
			wantErr: "replay_schedule must be specified",
		},
		{
			name: "spool with bad schedule",
			mutate: func(c *Config) {
				c.Spool.Path = "/tmp/spool.db"
				c.Spool.ReplaySchedule = "every now and then"
			},
			wantErr: "invalid spool.replay_schedule",
		},
		{
			name: "spool with negative bound",
			mutate: func(c *Config) {
				c.Spool.Path = "/tmp/spool.db"
				c.Spool.MaxRecords = -5
			},
			wantErr: "max_records",
		},
		{
			name: "bad schedule ignored without spool",
			mutate: func(c *Config) {
				c.Spool.ReplaySchedule = "every now and then"
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := createDefaultConfig().(*Config)
			cfg.Endpoint = "https://collector:4318/v1/traces"
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigDecode(t *testing.T) {
	raw := map[string]any{
		"endpoint":    "http://collector:4318/v1/traces",
		"compression": "none",
		"headers":     map[string]any{"x-tenant": "acme"},
		"timeout":     "3s",
		"limits": map[string]any{
			"span_attributes":        64,
			"attribute_value_length": 256,
		},
		"status_keys": map[string]any{"code": "status.code"},
		"spool": map[string]any{
			"path":            "/var/lib/spool.db",
			"replay_schedule": "*/5 * * * *",
		},
	}

	cfg := createDefaultConfig().(*Config)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     cfg,
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
	})
	require.NoError(t, err)
	require.NoError(t, dec.Decode(raw))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, "acme", cfg.Headers["x-tenant"])
	limits := cfg.Limits.Resolve()
	assert.Equal(t, 64, limits.SpanAttributes)
	assert.Equal(t, 256, limits.AttributeValueLength)
	assert.Equal(t, spanencoder.Unlimited, limits.Links)
	assert.Equal(t, "status.code", cfg.StatusKeys.Code)
	// Fields absent from the input keep their defaults.
	assert.Equal(t, "otel.status_description", cfg.StatusKeys.Message)
	assert.Equal(t, 10000, cfg.Spool.MaxRecords)
}
