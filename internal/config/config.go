// Package config loads process settings from RISKLEDGER_* environment
// variables. Command-line flags override what it returns.
package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/roach88/riskledger/internal/observability"
	"github.com/roach88/riskledger/internal/sim"
)

// Config holds process settings.
type Config struct {
	LedgerPath     string `env:"RISKLEDGER_LEDGER_PATH" envDefault:"ledger.jsonl"`
	MirrorPath     string `env:"RISKLEDGER_MIRROR_PATH" envDefault:"oracle.db"`
	ForceRehydrate bool   `env:"RISKLEDGER_FORCE_REHYDRATE" envDefault:"false"`
	Actor          string `env:"RISKLEDGER_ACTOR" envDefault:"system"`
	DefaultSeed    int64  `env:"RISKLEDGER_DEFAULT_SEED" envDefault:"42"`
	LogLevel       string `env:"RISKLEDGER_LOG_LEVEL" envDefault:"warn"`
	LogFormat      string `env:"RISKLEDGER_LOG_FORMAT" envDefault:"text"`

	// MetricsFile, when set, receives the Prometheus text exposition after
	// each command.
	MetricsFile string `env:"RISKLEDGER_METRICS_FILE"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field values env tags cannot express.
func (c Config) Validate() error {
	if strings.TrimSpace(c.LedgerPath) == "" {
		return fmt.Errorf("ledger path must not be empty")
	}
	if strings.TrimSpace(c.MirrorPath) == "" {
		return fmt.Errorf("mirror path must not be empty")
	}
	if c.DefaultSeed > sim.MaxSafeSeed || c.DefaultSeed < -sim.MaxSafeSeed {
		return fmt.Errorf("default seed %d outside signable range", c.DefaultSeed)
	}
	if _, err := observability.NewLogger(io.Discard, c.LogLevel, c.LogFormat); err != nil {
		return err
	}
	return nil
}
