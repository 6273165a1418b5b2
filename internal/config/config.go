// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

// Backend selects where tables and identities live.
type Backend string

const (
	// BackendHosted uses the hosted auth and table APIs.
	BackendHosted Backend = "hosted"
	// BackendSQLite keeps everything in a local SQLite file.
	BackendSQLite Backend = "sqlite"
	// BackendPostgres uses a self-hosted Postgres database.
	BackendPostgres Backend = "postgres"
)

// Config is the full runtime configuration.
type Config struct {
	Backend     Backend `env:"TWOFOLD_BACKEND" envDefault:"sqlite"`
	APIURL      string  `env:"TWOFOLD_API_URL"`
	APIKey      string  `env:"TWOFOLD_API_KEY"`
	SQLitePath  string  `env:"TWOFOLD_SQLITE_PATH"`
	PostgresDSN string  `env:"TWOFOLD_POSTGRES_DSN"`

	InviteTTL   time.Duration `env:"TWOFOLD_INVITE_TTL" envDefault:"168h"`
	LinkBaseURL string        `env:"TWOFOLD_LINK_BASE_URL" envDefault:"https://twofold.app"`

	SendGridAPIKey string `env:"SENDGRID_API_KEY"`
	SendGridFrom   string `env:"SENDGRID_FROM" envDefault:"hello@twofold.app"`

	ConfirmAttempts     int           `env:"TWOFOLD_CONFIRM_ATTEMPTS" envDefault:"30"`
	ConfirmInitialDelay time.Duration `env:"TWOFOLD_CONFIRM_INITIAL_DELAY" envDefault:"2s"`
	ConfirmMaxDelay     time.Duration `env:"TWOFOLD_CONFIRM_MAX_DELAY" envDefault:"30s"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates the environment.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the selected backend has what it needs.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendHosted:
		if c.APIURL == "" {
			return fmt.Errorf("TWOFOLD_API_URL is required for the hosted backend")
		}
		if _, err := url.ParseRequestURI(c.APIURL); err != nil {
			return fmt.Errorf("TWOFOLD_API_URL: %w", err)
		}
		if c.APIKey == "" {
			return fmt.Errorf("TWOFOLD_API_KEY is required for the hosted backend")
		}
	case BackendSQLite:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("TWOFOLD_POSTGRES_DSN is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown TWOFOLD_BACKEND %q (want hosted, sqlite or postgres)", c.Backend)
	}
	if c.InviteTTL <= 0 {
		return fmt.Errorf("TWOFOLD_INVITE_TTL must be positive")
	}
	if c.ConfirmAttempts < 1 {
		return fmt.Errorf("TWOFOLD_CONFIRM_ATTEMPTS must be at least 1")
	}
	return nil
}

// SelfHosted reports whether identities live in the local database.
func (c Config) SelfHosted() bool {
	return c.Backend != BackendHosted
}
