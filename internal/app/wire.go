package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	s3blob "github.com/polymathbot/polymath/internal/blob/s3"
	"github.com/polymathbot/polymath/internal/cache/redis"
	"github.com/polymathbot/polymath/internal/config"
	"github.com/polymathbot/polymath/internal/crypto"
	"github.com/polymathbot/polymath/internal/domain"
	"github.com/polymathbot/polymath/internal/notify"
	"github.com/polymathbot/polymath/internal/platform/kalshi"
	"github.com/polymathbot/polymath/internal/platform/polymarket"
	"github.com/polymathbot/polymath/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the scan loop and the
// API server need. Optional infrastructure (Postgres, Redis, S3) leaves the
// corresponding fields nil; consumers degrade gracefully.
type Dependencies struct {
	// Market data, one source per venue.
	Sources []domain.MarketSource

	// Placers is populated only in trade mode, one per venue.
	Placers map[domain.Venue]domain.OrderPlacer

	// Postgres-backed stores; nil without a configured database.
	RiskStore      domain.RiskStore
	ExecutionStore domain.ExecutionStore

	// Redis-backed; nil without a configured Redis.
	SignalBus     domain.SignalBus
	SnapshotCache domain.SnapshotCache
	RateLimiter   domain.RateLimiter

	// Archiver is wired only when both S3 and Postgres are configured.
	Archiver *s3blob.Archiver

	Notifier *notify.Notifier
}

// tradeMode reports whether execution credentials must be wired.
func tradeMode(mode string) bool {
	return strings.ToLower(mode) == "trade"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Placers: make(map[domain.Venue]domain.OrderPlacer),
	}

	// --- Kalshi ---
	kalshiClient := kalshi.NewClient(cfg.Kalshi.BaseURL, cfg.Kalshi.ApiKeyID)
	if cfg.Kalshi.RsaPrivateKeyPath != "" {
		pem, err := os.ReadFile(cfg.Kalshi.RsaPrivateKeyPath)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: kalshi key: %w", err)
		}
		if err := kalshiClient.SetRSAPrivateKey(pem); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: kalshi key: %w", err)
		}
	}
	deps.Sources = append(deps.Sources, kalshi.NewSource(kalshiClient, logger))

	// --- Polymarket ---
	gamma := polymarket.NewGammaClient(cfg.Polymarket.GammaHost)

	var signer *crypto.Signer
	if tradeMode(cfg.Mode) {
		keyHex, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Polymarket.PrivateKey,
			EncryptedKeyPath: cfg.Polymarket.EncryptedKeyPath,
			KeyPassword:      cfg.Polymarket.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: polymarket key: %w", err)
		}
		signer, err = crypto.NewSigner(keyHex, cfg.Polymarket.ChainID)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: polymarket signer: %w", err)
		}
	}

	// The book endpoint is public, so the CLOB client always exists for
	// depth enrichment; order placement additionally needs the signer and
	// derived API credentials.
	clob := polymarket.NewClobClient(cfg.Polymarket.ClobHost, signer, nil)
	if signer != nil {
		if err := clob.DeriveAPIKey(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: polymarket api key: %w", err)
		}
	}
	deps.Sources = append(deps.Sources, polymarket.NewSource(gamma, clob, logger))

	if tradeMode(cfg.Mode) {
		deps.Placers[domain.VenueKalshi] = kalshi.NewTrader(kalshiClient, logger)
		deps.Placers[domain.VenuePolymarket] = polymarket.NewTrader(clob, logger)
	}

	// --- PostgreSQL (optional) ---
	if cfg.Postgres.DSN != "" || cfg.Postgres.Host != "" {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.RiskStore = postgres.NewRiskStore(pool)
		deps.ExecutionStore = postgres.NewExecutionStore(pool)
	}

	// --- Redis (optional) ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.SnapshotCache = redis.NewSnapshotCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	}

	// --- S3 execution archive (optional, needs Postgres for the source) ---
	if cfg.S3.Bucket != "" && deps.ExecutionStore != nil {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		retention := time.Duration(cfg.S3.RetentionDays) * 24 * time.Hour
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			deps.ExecutionStore,
			retention,
			logger,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
