package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYMATH_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYMATH_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Kalshi ──
	setStr(&cfg.Kalshi.ApiKeyID, "POLYMATH_KALSHI_API_KEY_ID")
	setStr(&cfg.Kalshi.RsaPrivateKeyPath, "POLYMATH_KALSHI_RSA_PRIVATE_KEY_PATH")
	setStr(&cfg.Kalshi.BaseURL, "POLYMATH_KALSHI_BASE_URL")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "POLYMATH_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "POLYMATH_POLYMARKET_GAMMA_HOST")
	setInt(&cfg.Polymarket.ChainID, "POLYMATH_POLYMARKET_CHAIN_ID")
	setStr(&cfg.Polymarket.PrivateKey, "POLYMATH_POLYMARKET_PRIVATE_KEY")
	setStr(&cfg.Polymarket.EncryptedKeyPath, "POLYMATH_POLYMARKET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Polymarket.KeyPassword, "POLYMATH_POLYMARKET_KEY_PASSWORD")

	// ── Scanner ──
	setDuration(&cfg.Scanner.Interval, "POLYMATH_SCANNER_INTERVAL")
	setFloat64(&cfg.Scanner.MinProfitCents, "POLYMATH_SCANNER_MIN_PROFIT_CENTS")
	setFloat64(&cfg.Scanner.MaxPositionUSD, "POLYMATH_SCANNER_MAX_POSITION_USD")
	setBool(&cfg.Scanner.AutoExecute, "POLYMATH_SCANNER_AUTO_EXECUTE")

	// ── Detector ──
	setStr(&cfg.Detector.FeeModel, "POLYMATH_DETECTOR_FEE_MODEL")
	setFloat64(&cfg.Detector.FlatFeeCents, "POLYMATH_DETECTOR_FLAT_FEE_CENTS")

	// ── Matcher ──
	setFloat64(&cfg.Matcher.Threshold, "POLYMATH_MATCHER_THRESHOLD")
	setStringSlice(&cfg.Matcher.Excluded, "POLYMATH_MATCHER_EXCLUDED")

	// ── Risk ──
	setFloat64(&cfg.Risk.DailyLossLimitUSD, "POLYMATH_RISK_DAILY_LOSS_LIMIT_USD")
	setInt(&cfg.Risk.UnwindRetries, "POLYMATH_RISK_UNWIND_RETRIES")
	setDuration(&cfg.Risk.OrderTimeout, "POLYMATH_RISK_ORDER_TIMEOUT")
	setDuration(&cfg.Risk.Cooldown, "POLYMATH_RISK_COOLDOWN")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "POLYMATH_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "POLYMATH_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POLYMATH_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POLYMATH_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POLYMATH_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POLYMATH_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POLYMATH_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POLYMATH_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POLYMATH_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POLYMATH_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "POLYMATH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYMATH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYMATH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYMATH_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYMATH_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYMATH_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "POLYMATH_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYMATH_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYMATH_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYMATH_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYMATH_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "POLYMATH_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.RetentionDays, "POLYMATH_S3_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "POLYMATH_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "POLYMATH_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "POLYMATH_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "POLYMATH_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "POLYMATH_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "POLYMATH_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POLYMATH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYMATH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYMATH_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLYMATH_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "POLYMATH_MODE")
	setStr(&cfg.LogLevel, "POLYMATH_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
