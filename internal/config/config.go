package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

// Config holds application configuration
type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	MetricsPort int    `env:"METRICS_PORT" envDefault:"9090"`
	GinMode     string `env:"GIN_MODE" envDefault:"release"`

	// NATSUrl enables the NATS notifier. Empty keeps log-only notifications.
	NATSUrl     string `env:"NATS_URL"`
	NATSSubject string `env:"NATS_SUBJECT" envDefault:"transfers.notifications"`

	// LockAcquireTimeout > 0 makes transfers fail fast with 503 instead of
	// queueing behind a busy account.
	LockAcquireTimeout time.Duration `env:"LOCK_ACQUIRE_TIMEOUT" envDefault:"0s"`

	// SeedAccounts lists accounts created at startup as id:balance,id:balance
	SeedAccounts string `env:"SEED_ACCOUNTS"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Environment  string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses the configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RegisterFlags binds command line overrides, using the current values as defaults
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.Port, "port", c.Port, "HTTP server port")
	fs.IntVar(&c.MetricsPort, "metrics-port", c.MetricsPort, "Metrics server port")
	fs.StringVar(&c.GinMode, "gin-mode", c.GinMode, "Gin mode (debug/release)")
	fs.StringVar(&c.NATSUrl, "nats-url", c.NATSUrl, "NATS server URL, empty disables NATS notifications")
	fs.DurationVar(&c.LockAcquireTimeout, "lock-timeout", c.LockAcquireTimeout, "Max wait for an account lock, 0 waits indefinitely")
	fs.StringVar(&c.SeedAccounts, "seed", c.SeedAccounts, "Accounts to create at startup, id:balance,id:balance")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug/info/warn/error)")
}

// Validate checks values that env and flag parsing cannot
func (c *Config) Validate() error {
	if c.Port <= 0 || c.MetricsPort <= 0 {
		return fmt.Errorf("ports must be positive, got %d and %d", c.Port, c.MetricsPort)
	}
	if c.LockAcquireTimeout < 0 {
		return fmt.Errorf("lock acquire timeout must not be negative: %s", c.LockAcquireTimeout)
	}
	if _, err := c.Seeds(); err != nil {
		return err
	}
	return nil
}

// Seed is an account provisioned at startup
type Seed struct {
	AccountID string
	Balance   decimal.Decimal
}

// Seeds parses SeedAccounts
func (c *Config) Seeds() ([]Seed, error) {
	return ParseSeeds(c.SeedAccounts)
}

// ParseSeeds parses a list of accounts in id:balance,id:balance form.
// Blank entries are skipped.
func ParseSeeds(value string) ([]Seed, error) {
	var seeds []Seed
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		id, balance, ok := strings.Cut(entry, ":")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, fmt.Errorf("seed account %q: want id:balance", entry)
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(balance))
		if err != nil {
			return nil, fmt.Errorf("seed account %q: %w", entry, err)
		}
		seeds = append(seeds, Seed{AccountID: id, Balance: amount})
	}
	return seeds, nil
}
