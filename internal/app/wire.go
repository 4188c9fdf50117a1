package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/salvagehub/salvagebid/internal/blob/s3"
	"github.com/salvagehub/salvagebid/internal/cache/redis"
	"github.com/salvagehub/salvagebid/internal/config"
	"github.com/salvagehub/salvagebid/internal/crypto"
	"github.com/salvagehub/salvagebid/internal/domain"
	"github.com/salvagehub/salvagebid/internal/notify"
	"github.com/salvagehub/salvagebid/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	AuctionStore   domain.AuctionStore
	BidStore       domain.BidStore
	VendorStore    domain.VendorStore
	FraudFlagStore domain.FraudFlagStore
	RatingStore    domain.RatingStore
	AuditStore     domain.AuditStore

	// Caches and coordination
	ChallengeStore domain.ChallengeStore
	SummaryCache   domain.SummaryCache
	RateLimiter    domain.RateLimiter
	LockManager    domain.LockManager
	EventBus       domain.EventBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Notifications
	Gateway *notify.Gateway
}

// needsS3 returns true for modes that require object storage. The serve mode
// also needs it when ledger archival is enabled, because the archive sweep
// runs inside the serving process.
func needsS3(cfg *config.Config) bool {
	switch cfg.Mode {
	case "archive", "full":
		return true
	default:
		return cfg.Archive.Enabled
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.AuctionStore = postgres.NewAuctionStore(pool)
	deps.BidStore = postgres.NewBidStore(pool)
	deps.VendorStore = postgres.NewVendorStore(pool)
	deps.FraudFlagStore = postgres.NewFraudFlagStore(pool)
	deps.RatingStore = postgres.NewRatingStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis ---
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

	deps.ChallengeStore = redis.NewChallengeStore(redisClient)
	deps.SummaryCache = redis.NewSummaryCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.EventBus = redis.NewEventBus(redisClient)

	// --- S3 blob storage (only for modes that archive) ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(
			deps.BlobWriter,
			deps.AuctionStore,
			deps.BidStore,
			deps.AuditStore,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.GatewayURL != "" {
		webhook := notify.NewWebhookSender(cfg.Notify.GatewayURL)
		if cfg.Notify.GatewaySecret != "" || cfg.Notify.GatewaySecretFile != "" {
			secret, err := crypto.LoadSecret(crypto.SecretConfig{
				Raw:        cfg.Notify.GatewaySecret,
				SealedPath: cfg.Notify.GatewaySecretFile,
				Password:   cfg.Notify.GatewaySecretPassword,
			})
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: gateway secret: %w", err)
			}
			webhook.WithSigner(&crypto.RequestSigner{
				Key:    cfg.Notify.GatewayKey,
				Secret: secret,
			})
		}
		senders = append(senders, webhook)
	}
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Gateway = notify.NewGateway(senders, deps.EventBus, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
