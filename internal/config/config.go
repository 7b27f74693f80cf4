// Package config loads service configuration from the environment with an
// optional YAML overlay for payout provider settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds process configuration.
type Config struct {
	DatabaseURL        string        `env:"DATABASE_URL"`
	HTTPAddr           string        `env:"HTTP_ADDR"               envDefault:":8080"`
	LogLevel           string        `env:"LOG_LEVEL"               envDefault:"info"`
	JWTSecret          string        `env:"AUTH_JWT_SECRET"`
	Timezone           string        `env:"SETTLEMENT_TIMEZONE"`
	ConfigPath         string        `env:"SETTLEMENT_CONFIG"`
	WebhookURL         string        `env:"SETTLEMENT_WEBHOOK_URL"`
	RedisAddr          string        `env:"REDIS_ADDR"`
	RunLockTTL         time.Duration `env:"SETTLEMENT_RUN_LOCK_TTL" envDefault:"15m"`
	EventStream        string        `env:"EVENT_STREAM"            envDefault:"settlement:events"`
	EventStreamMaxLen  int64         `env:"EVENT_STREAM_MAXLEN"     envDefault:"10000"`
	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL"    envDefault:"5s"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE"       envDefault:"50"`
	Payout             Payout        `envPrefix:"PAYOUT_"`
}

// Payout configures the payout provider client and request defaults.
type Payout struct {
	BaseURL           string                    `env:"BASE_URL"              yaml:"base_url"`
	KeyID             string                    `env:"KEY_ID"                yaml:"-"`
	KeySecret         string                    `env:"KEY_SECRET"            yaml:"-"`
	AccountNumber     string                    `env:"ACCOUNT_NUMBER"        yaml:"account_number"`
	Currency          string                    `env:"CURRENCY"              envDefault:"INR"        yaml:"currency"`
	Mode              string                    `env:"MODE"                  envDefault:"IMPS"       yaml:"mode"`
	Purpose           string                    `env:"PURPOSE"               envDefault:"payout"     yaml:"purpose"`
	NarrationPrefix   string                    `env:"NARRATION_PREFIX"      envDefault:"Settlement" yaml:"narration_prefix"`
	QueueIfLowBalance bool                      `env:"QUEUE_IF_LOW_BALANCE"  envDefault:"true"       yaml:"queue_if_low_balance"`
	Timeout           time.Duration             `env:"TIMEOUT"               envDefault:"30s"        yaml:"timeout"`
	Sellers           map[string]PayoutOverride `yaml:"sellers"`
}

// PayoutOverride carries per-seller provider settings.
type PayoutOverride struct {
	Mode    string `yaml:"mode"`
	Purpose string `yaml:"purpose"`
}

type fileConfig struct {
	Payout *Payout `yaml:"payout"`
}

// Load parses the environment, applies the YAML overlay named by
// SETTLEMENT_CONFIG, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	if cfg.ConfigPath != "" {
		if err := cfg.applyFile(cfg.ConfigPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	overlay := fileConfig{Payout: &c.Payout}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// Validate reports the first missing required setting.
func (c *Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "AUTH_JWT_SECRET")
	}
	if c.Payout.BaseURL == "" {
		missing = append(missing, "PAYOUT_BASE_URL")
	}
	if c.Payout.KeyID == "" || c.Payout.KeySecret == "" {
		missing = append(missing, "PAYOUT_KEY_ID/PAYOUT_KEY_SECRET")
	}
	if c.Payout.AccountNumber == "" {
		missing = append(missing, "PAYOUT_ACCOUNT_NUMBER")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing %s", strings.Join(missing, ", "))
	}
	if c.Payout.Timeout <= 0 {
		return errors.New("config: payout timeout must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the settlement time zone; empty means server local.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ForSeller returns payout settings with any per-seller override applied.
func (p Payout) ForSeller(sellerID string) Payout {
	if p.Sellers == nil {
		return p
	}
	override, ok := p.Sellers[sellerID]
	if !ok {
		return p
	}
	if override.Mode != "" {
		p.Mode = override.Mode
	}
	if override.Purpose != "" {
		p.Purpose = override.Purpose
	}
	return p
}
