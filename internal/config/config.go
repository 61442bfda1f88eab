package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config represents the complete application configuration, merged from
// defaults, an optional config file, environment variables, and flags.
type Config struct {
	API     APIConfig      `mapstructure:"api"`
	Batch   BatchConfig    `mapstructure:"batch"`
	Rate    RateConfig     `mapstructure:"rate"`
	Store   StoreConfig    `mapstructure:"store"`
	Server  ServerConfig   `mapstructure:"server"`
	Logging LoggingConfig  `mapstructure:"logging"`
	Output  string         `mapstructure:"output"`
}

// APIConfig contains the governance API connection settings.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// BatchConfig contains batch execution defaults. Per-invocation flags
// override these.
type BatchConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	PerTaskTimeout time.Duration `mapstructure:"per_task_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	BaseBackoff    time.Duration `mapstructure:"base_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// RateConfig contains the rate tracking settings: the safety threshold
// applied to every ceiling and optional per-pattern ceiling overrides.
type RateConfig struct {
	SafetyThreshold float64        `mapstructure:"safety_threshold"`
	Limits          map[string]int `mapstructure:"limits"`
	LimitsFile      string         `mapstructure:"limits_file"`
}

// StoreConfig contains database configuration for libsql/Turso.
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig contains logging configuration.
// Profiles follow the progressive pattern:
// - SIMPLE: console output only (CLI commands)
// - STRUCTURED: structured sinks, correlation IDs (serve mode)
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

// Validate checks the invariants the engine depends on. API credentials
// are checked separately by the commands that need them, so that
// offline commands (version, rate-limit show) work without a token.
func (c *Config) Validate() error {
	if c.Batch.Concurrency <= 0 {
		return fmt.Errorf("batch.concurrency must be positive, got %d", c.Batch.Concurrency)
	}
	if c.Batch.MaxRetries < 0 {
		return fmt.Errorf("batch.max_retries must not be negative, got %d", c.Batch.MaxRetries)
	}
	if c.Batch.PerTaskTimeout <= 0 {
		return errors.New("batch.per_task_timeout must be positive")
	}
	if c.Rate.SafetyThreshold <= 0 || c.Rate.SafetyThreshold > 1 {
		return fmt.Errorf("rate.safety_threshold must be in (0, 1], got %g", c.Rate.SafetyThreshold)
	}
	for pattern, perMinute := range c.Rate.Limits {
		if strings.TrimSpace(pattern) == "" {
			return errors.New("rate.limits contains an empty pattern")
		}
		if perMinute <= 0 {
			return fmt.Errorf("rate.limits[%q] must be positive, got %d", pattern, perMinute)
		}
	}
	return nil
}

// ValidateAPI checks the connection settings commands that talk to the
// remote API require.
func (c *Config) ValidateAPI() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("api.base_url is required (set GOVBATCH_API_BASE_URL or --api-url)")
	}
	if strings.TrimSpace(c.API.Token) == "" {
		return errors.New("api.token is required (set GOVBATCH_API_TOKEN)")
	}
	return nil
}
