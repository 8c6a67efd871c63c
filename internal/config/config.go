// Package config loads process configuration from environment
// variables (with an optional .env file for local development),
// modeled on the teacher's root-level config.go: caarlos0/env struct
// tags for parsing, joho/godotenv for the optional file, zerolog for
// reporting what was loaded.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds every tunable the process reads at startup. Tags:
//
//	env: environment variable name
//	envDefault: default value if not set
type Config struct {
	// Server basics
	Addr        string `env:"FASTSOCKET_ADDR" envDefault:":6001"`
	CatalogPath string `env:"FASTSOCKET_CATALOG_PATH" envDefault:"apps.json"`

	// Capacity
	MaxConnections int `env:"FASTSOCKET_MAX_CONNECTIONS" envDefault:"10000"`

	// Connection lifecycle
	ActivityTimeout time.Duration `env:"FASTSOCKET_ACTIVITY_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"FASTSOCKET_WRITE_TIMEOUT" envDefault:"10s"`

	// Admission rate limiting (internal/admission)
	PerIPBurst  int           `env:"FASTSOCKET_PER_IP_BURST" envDefault:"20"`
	PerIPRate   float64       `env:"FASTSOCKET_PER_IP_RATE" envDefault:"5"`
	PerIPTTL    time.Duration `env:"FASTSOCKET_PER_IP_TTL" envDefault:"5m"`
	GlobalBurst int           `env:"FASTSOCKET_GLOBAL_BURST" envDefault:"500"`
	GlobalRate  float64       `env:"FASTSOCKET_GLOBAL_RATE" envDefault:"100"`

	// Logging
	LogLevel  string `env:"FASTSOCKET_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"FASTSOCKET_LOG_FORMAT" envDefault:"json"`

	// Environment label, surfaced in the startup configuration log line only.
	Environment string `env:"FASTSOCKET_ENVIRONMENT" envDefault:"development"`
}

// Load reads configuration from an optional .env file and then the
// environment. Priority: real environment variables override .env file
// entries, which override the envDefault tags.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	} else if logger != nil {
		logger.Info().Msg("loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration for internally-inconsistent or
// out-of-range values beyond what envDefault/env.Parse already catch.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("FASTSOCKET_ADDR is required")
	}
	if c.MaxConnections < 1 {
		return fmt.Errorf("FASTSOCKET_MAX_CONNECTIONS must be > 0, got %d", c.MaxConnections)
	}
	if c.ActivityTimeout <= 0 {
		return fmt.Errorf("FASTSOCKET_ACTIVITY_TIMEOUT must be > 0, got %s", c.ActivityTimeout)
	}
	if c.PerIPBurst < 1 {
		return fmt.Errorf("FASTSOCKET_PER_IP_BURST must be > 0, got %d", c.PerIPBurst)
	}
	if c.GlobalBurst < 1 {
		return fmt.Errorf("FASTSOCKET_GLOBAL_BURST must be > 0, got %d", c.GlobalBurst)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("FASTSOCKET_LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}

	validLogFormats := map[string]bool{"json": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("FASTSOCKET_LOG_FORMAT must be one of: json, pretty (got: %s)", c.LogFormat)
	}

	return nil
}

// LogConfig reports the loaded configuration as a single structured
// log line (Loki-compatible, per the teacher's convention).
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Str("addr", c.Addr).
		Str("catalog_path", c.CatalogPath).
		Int("max_connections", c.MaxConnections).
		Dur("activity_timeout", c.ActivityTimeout).
		Dur("write_timeout", c.WriteTimeout).
		Int("per_ip_burst", c.PerIPBurst).
		Float64("per_ip_rate", c.PerIPRate).
		Dur("per_ip_ttl", c.PerIPTTL).
		Int("global_burst", c.GlobalBurst).
		Float64("global_rate", c.GlobalRate).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("configuration loaded")
}
