// Package config defines the top-level configuration for the arbitrage
// scanner and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLYMATH_* environment variables.
type Config struct {
	Kalshi     KalshiConfig     `toml:"kalshi"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Scanner    ScannerConfig    `toml:"scanner"`
	Detector   DetectorConfig   `toml:"detector"`
	Matcher    MatcherConfig    `toml:"matcher"`
	Risk       RiskConfig       `toml:"risk"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// KalshiConfig holds Kalshi exchange API credentials.
type KalshiConfig struct {
	ApiKeyID          string `toml:"api_key_id"`
	RsaPrivateKeyPath string `toml:"rsa_private_key_path"`
	BaseURL           string `toml:"base_url"`
}

// PolymarketConfig holds Polymarket API endpoints, chain parameters, and the
// trading wallet. The wallet key may be supplied raw or as an encrypted key
// file plus password.
type PolymarketConfig struct {
	ClobHost  string `toml:"clob_host"`
	GammaHost string `toml:"gamma_host"`
	ChainID   int    `toml:"chain_id"`

	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ScannerConfig holds the scan-loop parameters.
type ScannerConfig struct {
	Interval       duration `toml:"interval"`
	MinProfitCents float64  `toml:"min_profit_cents"`
	MaxPositionUSD float64  `toml:"max_position_usd"`
	AutoExecute    bool     `toml:"auto_execute"`
}

// DetectorConfig selects how fees are estimated when costing a pair.
// "settlement" charges each venue's rate on the winning leg's profit;
// "flat" charges flat_fee_cents per leg regardless of venue schedules.
type DetectorConfig struct {
	FeeModel     string  `toml:"fee_model"`
	FlatFeeCents float64 `toml:"flat_fee_cents"`
}

// MatcherConfig holds the cross-venue matching parameters.
type MatcherConfig struct {
	Threshold float64 `toml:"threshold"`
	// Overrides maps a Kalshi ticker to the Polymarket market id it is
	// known to pair with, bypassing title scoring.
	Overrides map[string]string `toml:"overrides"`
	// Excluded lists Kalshi tickers that must never be matched.
	Excluded []string `toml:"excluded"`
}

// RiskConfig holds execution risk limits.
type RiskConfig struct {
	DailyLossLimitUSD float64  `toml:"daily_loss_limit_usd"`
	UnwindRetries     int      `toml:"unwind_retries"`
	OrderTimeout      duration `toml:"order_timeout"`
	Cooldown          duration `toml:"cooldown"`
}

// PostgresConfig holds PostgreSQL connection parameters. When DSN is empty
// and Host is empty too, the process runs without durable storage.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. An empty Addr disables
// Redis: snapshots are then served from memory only and the WebSocket feed
// falls back to on-connect state.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the execution
// archive. An empty Bucket disables archiving.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
	RetentionDays  int    `toml:"retention_days"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5s", "2m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5s" or "2m".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Kalshi: KalshiConfig{
			BaseURL: "https://api.elections.kalshi.com/trade-api/v2",
		},
		Polymarket: PolymarketConfig{
			ClobHost:  "https://clob.polymarket.com",
			GammaHost: "https://gamma-api.polymarket.com",
			ChainID:   137,
		},
		Scanner: ScannerConfig{
			Interval:       duration{5 * time.Second},
			MinProfitCents: 2.0,
			MaxPositionUSD: 100.0,
			AutoExecute:    false,
		},
		Detector: DetectorConfig{
			FeeModel: "settlement",
		},
		Matcher: MatcherConfig{
			Threshold: 80,
			Overrides: map[string]string{},
		},
		Risk: RiskConfig{
			DailyLossLimitUSD: 50.0,
			UnwindRetries:     3,
			OrderTimeout:      duration{10 * time.Second},
			Cooldown:          duration{5 * time.Second},
		},
		Postgres: PostgresConfig{
			Port:          5432,
			Database:      "polymath",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Region:        "us-east-1",
			RetentionDays: 30,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"opportunity", "execution", "risk_halt"},
		},
		Mode:     "scan",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode. "scan" watches
// without ever placing orders; "trade" allows execution when auto_execute is
// on.
var validModes = map[string]bool{
	"scan":  true,
	"trade": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scan, trade)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Kalshi.BaseURL == "" {
		errs = append(errs, "kalshi: base_url must not be empty")
	}
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}

	// Trading mode needs credentials for both venues.
	if strings.ToLower(c.Mode) == "trade" {
		if c.Kalshi.ApiKeyID == "" || c.Kalshi.RsaPrivateKeyPath == "" {
			errs = append(errs, "kalshi: api_key_id and rsa_private_key_path are required for mode trade")
		}
		if c.Polymarket.PrivateKey == "" && c.Polymarket.EncryptedKeyPath == "" {
			errs = append(errs, "polymarket: either private_key or encrypted_key_path must be set for mode trade")
		}
		if c.Polymarket.EncryptedKeyPath != "" && c.Polymarket.KeyPassword == "" {
			errs = append(errs, "polymarket: key_password is required when encrypted_key_path is set")
		}
	}

	if c.Scanner.Interval.Duration < time.Second {
		errs = append(errs, "scanner: interval must be at least 1s")
	}
	if c.Scanner.MinProfitCents < 0 {
		errs = append(errs, "scanner: min_profit_cents must not be negative")
	}
	if c.Scanner.MaxPositionUSD <= 0 {
		errs = append(errs, "scanner: max_position_usd must be > 0")
	}

	switch strings.ToLower(c.Detector.FeeModel) {
	case "settlement", "flat":
	default:
		errs = append(errs, fmt.Sprintf("detector: unknown fee_model %q (valid: settlement, flat)", c.Detector.FeeModel))
	}
	if c.Detector.FlatFeeCents < 0 {
		errs = append(errs, "detector: flat_fee_cents must not be negative")
	}

	if c.Matcher.Threshold < 0 || c.Matcher.Threshold > 100 {
		errs = append(errs, fmt.Sprintf("matcher: threshold must be 0-100, got %g", c.Matcher.Threshold))
	}

	if c.Risk.DailyLossLimitUSD <= 0 {
		errs = append(errs, "risk: daily_loss_limit_usd must be > 0")
	}
	if c.Risk.UnwindRetries < 1 {
		errs = append(errs, "risk: unwind_retries must be >= 1")
	}

	// Postgres is optional; when pointed at a host the pool bounds must
	// still make sense.
	if c.Postgres.DSN != "" || c.Postgres.Host != "" {
		if c.Postgres.DSN == "" {
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	if c.Redis.Addr != "" && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.S3.Bucket != "" {
		if c.S3.Region == "" && c.S3.Endpoint == "" {
			errs = append(errs, "s3: region or endpoint must be set when bucket is configured")
		}
		if c.S3.RetentionDays < 1 {
			errs = append(errs, "s3: retention_days must be >= 1")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must not be negative")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
