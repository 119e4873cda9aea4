package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type PayoutConfig struct {
	// MinAmount is the exclusive lower bound on payout amounts, in minor units.
	MinAmount int64 `yaml:"min_amount"`
	// RateLimit caps payout requests per user per window.
	RateLimit       int           `yaml:"rate_limit"`
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`
	// PollInterval and PollDeadline bound the reconciliation loop.
	PollInterval time.Duration `yaml:"poll_interval"`
	PollDeadline time.Duration `yaml:"poll_deadline"`
	// ReconcileInterval and ReconcileStaleAfter drive the background scan.
	ReconcileInterval   time.Duration `yaml:"reconcile_interval"`
	ReconcileStaleAfter time.Duration `yaml:"reconcile_stale_after"`
	Workers             int           `yaml:"workers"`
	// RedirectCurrency routes payouts in this currency through the
	// redirect gateway instead of a transfer rail.
	RedirectCurrency string `yaml:"redirect_currency"`
}

type ProvidersConfig struct {
	PayPal struct {
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		Sandbox      bool   `yaml:"sandbox"`
	} `yaml:"paypal"`
	Stripe struct {
		SecretKey string `yaml:"secret_key"`
	} `yaml:"stripe"`
	Zarinpal struct {
		MerchantID    string `yaml:"merchant_id"`
		CallbackURL   string `yaml:"callback_url"`
		Sandbox       bool   `yaml:"sandbox"`
		WebhookSecret string `yaml:"webhook_secret"`
	} `yaml:"zarinpal"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Payout    PayoutConfig    `yaml:"payout"`
	Providers ProvidersConfig `yaml:"providers"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Payout.RateLimit <= 0 {
		cfg.Payout.RateLimit = 10
	}
	if cfg.Payout.RateLimitWindow <= 0 {
		cfg.Payout.RateLimitWindow = time.Minute
	}
	if cfg.Payout.PollInterval <= 0 {
		cfg.Payout.PollInterval = 5 * time.Second
	}
	if cfg.Payout.PollDeadline <= 0 {
		cfg.Payout.PollDeadline = 10 * time.Minute
	}
	if cfg.Payout.ReconcileInterval <= 0 {
		cfg.Payout.ReconcileInterval = time.Minute
	}
	if cfg.Payout.ReconcileStaleAfter <= 0 {
		cfg.Payout.ReconcileStaleAfter = 10 * time.Minute
	}
	if cfg.Payout.Workers <= 0 {
		cfg.Payout.Workers = 4
	}
	if cfg.Payout.RedirectCurrency == "" {
		cfg.Payout.RedirectCurrency = "IRR"
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = time.Hour
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
