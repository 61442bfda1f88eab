// Package config provides configuration management for govbatch. A
// single viper instance merges four layers: built-in defaults, an
// optional YAML config file, GOVBATCH_* environment variables, and
// command-line flags bound by the commands themselves.
package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/govbatch/govbatch/internal/core/engine"
)

// SetDefaults installs the built-in configuration layer on v. Every key
// the typed Config knows about has a default here so that FromViper
// never decodes a half-empty struct.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "")
	v.SetDefault("api.token", "")
	v.SetDefault("api.timeout", "30s")

	v.SetDefault("batch.concurrency", 10)
	v.SetDefault("batch.per_task_timeout", "30s")
	v.SetDefault("batch.max_retries", engine.DefaultMaxRetries)
	v.SetDefault("batch.base_backoff", engine.DefaultBaseBackoff.String())
	v.SetDefault("batch.max_backoff", engine.DefaultMaxBackoff.String())

	v.SetDefault("rate.safety_threshold", engine.DefaultSafetyThreshold)
	v.SetDefault("rate.limits", map[string]int{})
	v.SetDefault("rate.limits_file", "")

	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", "")
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "SIMPLE")

	v.SetDefault("output", "table")
}

// FromViper decodes the merged viper state into a typed Config.
// Duration fields accept Go duration strings ("30s", "1m").
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Rate.LimitsFile != "" {
		fileLimits, err := LoadLimitsFile(cfg.Rate.LimitsFile)
		if err != nil {
			return nil, err
		}
		// Inline limits win over the limits file.
		for pattern, perMinute := range fileLimits {
			if _, ok := cfg.Rate.Limits[pattern]; !ok {
				if cfg.Rate.Limits == nil {
					cfg.Rate.Limits = map[string]int{}
				}
				cfg.Rate.Limits[pattern] = perMinute
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadLimitsFile reads per-pattern rate ceiling overrides from a YAML
// file of the form:
//
//	limits:
//	  /api/v1/users: 600
//	  /api/v1/apps/{id}: 500
func LoadLimitsFile(path string) (map[string]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rate limits file: %w", err)
	}

	var doc struct {
		Limits map[string]int `yaml:"limits"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse rate limits file %s: %w", path, err)
	}
	if len(doc.Limits) == 0 {
		return nil, fmt.Errorf("rate limits file %s defines no limits", path)
	}
	for pattern, perMinute := range doc.Limits {
		if perMinute <= 0 {
			return nil, fmt.Errorf("rate limits file %s: limit for %q must be positive, got %d", path, pattern, perMinute)
		}
	}
	return doc.Limits, nil
}

// Categories merges the built-in endpoint categories with the
// configured overrides. An override for a known pattern replaces its
// ceiling; an unknown pattern becomes a new category.
func (c *Config) Categories() []engine.Category {
	merged := make(map[string]int, len(engine.DefaultCategories))
	for _, category := range engine.DefaultCategories {
		merged[category.Pattern] = category.PerMinute
	}
	for pattern, perMinute := range c.Rate.Limits {
		merged[pattern] = perMinute
	}

	patterns := make([]string, 0, len(merged))
	for pattern := range merged {
		patterns = append(patterns, pattern)
	}
	sort.Strings(patterns)

	categories := make([]engine.Category, 0, len(patterns))
	for _, pattern := range patterns {
		categories = append(categories, engine.Category{Pattern: pattern, PerMinute: merged[pattern]})
	}
	return categories
}

// APITimeout returns the configured HTTP round-trip timeout, falling
// back to 30 seconds when unset.
func (c *Config) APITimeout() time.Duration {
	if c.API.Timeout <= 0 {
		return 30 * time.Second
	}
	return c.API.Timeout
}
