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
// built-in defaults, applies SALVAGEBID_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SALVAGEBID_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "SALVAGEBID_DATABASE_DSN")
	setStr(&cfg.Database.Host, "SALVAGEBID_DATABASE_HOST")
	setInt(&cfg.Database.Port, "SALVAGEBID_DATABASE_PORT")
	setStr(&cfg.Database.Database, "SALVAGEBID_DATABASE_NAME")
	setStr(&cfg.Database.User, "SALVAGEBID_DATABASE_USER")
	setStr(&cfg.Database.Password, "SALVAGEBID_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "SALVAGEBID_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "SALVAGEBID_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "SALVAGEBID_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "SALVAGEBID_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SALVAGEBID_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SALVAGEBID_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SALVAGEBID_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SALVAGEBID_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SALVAGEBID_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SALVAGEBID_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "SALVAGEBID_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SALVAGEBID_S3_REGION")
	setStr(&cfg.S3.Bucket, "SALVAGEBID_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SALVAGEBID_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SALVAGEBID_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SALVAGEBID_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SALVAGEBID_S3_FORCE_PATH_STYLE")

	// ── Auction ──
	setDuration(&cfg.Auction.ExtensionWindow, "SALVAGEBID_AUCTION_EXTENSION_WINDOW")
	setInt(&cfg.Auction.MaxExtensions, "SALVAGEBID_AUCTION_MAX_EXTENSIONS")
	setDuration(&cfg.Auction.OTPExpiry, "SALVAGEBID_AUCTION_OTP_EXPIRY")
	setInt64(&cfg.Auction.TierOneCeiling, "SALVAGEBID_AUCTION_TIER_ONE_CEILING")
	setInt(&cfg.Auction.SubmitLimitPerMinute, "SALVAGEBID_AUCTION_SUBMIT_LIMIT_PER_MINUTE")
	setInt(&cfg.Auction.AcceptRetries, "SALVAGEBID_AUCTION_ACCEPT_RETRIES")

	// ── Fraud ──
	setInt64(&cfg.Fraud.JumpMultiple, "SALVAGEBID_FRAUD_JUMP_MULTIPLE")
	setInt(&cfg.Fraud.NewAccountDays, "SALVAGEBID_FRAUD_NEW_ACCOUNT_DAYS")
	setInt(&cfg.Fraud.ScanQueueSize, "SALVAGEBID_FRAUD_SCAN_QUEUE_SIZE")
	setInt(&cfg.Fraud.ScanWorkers, "SALVAGEBID_FRAUD_SCAN_WORKERS")

	// ── Server ──
	setInt(&cfg.Server.Port, "SALVAGEBID_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "SALVAGEBID_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "SALVAGEBID_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimitRPS, "SALVAGEBID_SERVER_RATE_LIMIT_RPS")

	// ── Notify ──
	setStr(&cfg.Notify.GatewayURL, "SALVAGEBID_NOTIFY_GATEWAY_URL")
	setStr(&cfg.Notify.GatewayKey, "SALVAGEBID_NOTIFY_GATEWAY_KEY")
	setStr(&cfg.Notify.GatewaySecret, "SALVAGEBID_NOTIFY_GATEWAY_SECRET")
	setStr(&cfg.Notify.GatewaySecretFile, "SALVAGEBID_NOTIFY_GATEWAY_SECRET_FILE")
	setStr(&cfg.Notify.GatewaySecretPassword, "SALVAGEBID_NOTIFY_GATEWAY_SECRET_PASSWORD")
	setStr(&cfg.Notify.TelegramToken, "SALVAGEBID_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SALVAGEBID_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SALVAGEBID_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SALVAGEBID_NOTIFY_EVENTS")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "SALVAGEBID_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "SALVAGEBID_ARCHIVE_RETENTION_DAYS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SALVAGEBID_MODE")
	setStr(&cfg.LogLevel, "SALVAGEBID_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
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
