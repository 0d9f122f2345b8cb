// Package config provides application configuration loaded from the
// environment with the PARLEY_ prefix.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	// Addr is the listen address.
	Addr string `envconfig:"ADDR" default:":8080"`

	// AuthToken, when set, is required as a bearer token on API requests.
	AuthToken string `envconfig:"AUTH_TOKEN"`

	// AllowedOrigins for CORS, comma separated.
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`

	// DBPath is the SQLite database file. Empty selects the in-memory store.
	DBPath string `envconfig:"DB_PATH" default:"./data/parley.db"`

	// ModelProvider selects the upstream model: openai, anthropic or mock.
	ModelProvider string `envconfig:"MODEL_PROVIDER" default:"openai"`

	// ModelName overrides the provider's default model.
	ModelName string `envconfig:"MODEL_NAME"`

	// DefaultAgent handles messages that address no specialist.
	DefaultAgent string `envconfig:"DEFAULT_AGENT" default:"reality-checker"`

	// SessionTTL evicts idle sessions; zero disables eviction.
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"24h"`

	// SessionMaxEntries caps live sessions; zero disables the cap.
	SessionMaxEntries int `envconfig:"SESSION_MAX_ENTRIES" default:"10000"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("parley", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks that all required configuration fields are consistent.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("PARLEY_ADDR cannot be empty")
	}
	switch c.ModelProvider {
	case "openai", "anthropic", "mock":
	default:
		return fmt.Errorf("PARLEY_MODEL_PROVIDER must be openai, anthropic or mock, got %q", c.ModelProvider)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("PARLEY_LOG_LEVEL must be debug, info, warn or error, got %q", c.LogLevel)
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("PARLEY_SESSION_TTL cannot be negative")
	}
	return nil
}

// InMemory reports whether the in-memory store is selected.
func (c *Config) InMemory() bool {
	return c.DBPath == "" || c.DBPath == ":memory:"
}
