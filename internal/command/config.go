package command

import (
	"fmt"
	"os"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"

	"github.com/deepaksharma/otlp-span-encoder/internal/spanencoder"
	"github.com/deepaksharma/otlp-span-encoder/internal/transport/otlphttp"
)

// Config is the optional YAML file read by generate.
type Config struct {
	Endpoint    string                       `mapstructure:"endpoint"`
	Compression string                       `mapstructure:"compression"`
	Headers     map[string]string            `mapstructure:"headers"`
	Timeout     time.Duration                `mapstructure:"timeout"`
	Limits      spanencoder.LimitsConfig     `mapstructure:"limits"`
	StatusKeys  spanencoder.StatusKeysConfig `mapstructure:"status_keys"`
}

func defaultConfig() *Config {
	return &Config{
		Compression: string(otlphttp.CompressionGzip),
		Timeout:     10 * time.Second,
		StatusKeys:  spanencoder.DefaultStatusKeysConfig(),
	}
}

// LoadConfig reads path over the defaults. An empty path returns the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      cfg,
		ErrorUnused: true,
		DecodeHook:  mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) clientConfig() otlphttp.Config {
	return otlphttp.Config{
		Endpoint:    c.Endpoint,
		Compression: otlphttp.Compression(c.Compression),
		Headers:     c.Headers,
		Timeout:     c.Timeout,
	}
}
