// Package config defines the top-level configuration for the salvage auction
// bidding engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by SALVAGEBID_* environment
// variables.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Auction  AuctionConfig  `toml:"auction"`
	Fraud    FraudConfig    `toml:"fraud"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Archive  ArchiveConfig  `toml:"archive"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for ledger
// archival.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// AuctionConfig holds the bidding-protocol parameters.
type AuctionConfig struct {
	// ExtensionWindow is the anti-sniping threshold: a bid accepted when the
	// auction has less than this remaining extends the close by the same
	// amount.
	ExtensionWindow duration `toml:"extension_window"`

	// MaxExtensions caps the number of automatic extensions per auction.
	MaxExtensions int `toml:"max_extensions"`

	// OTPExpiry is how long a one-time bid confirmation code stays valid.
	OTPExpiry duration `toml:"otp_expiry"`

	// TierOneCeiling is the maximum bid amount for tier-1 vendors, in whole
	// currency units. Tier 2 is unlimited.
	TierOneCeiling int64 `toml:"tier_one_ceiling"`

	// SubmitLimitPerMinute caps bid submissions per vendor per minute.
	SubmitLimitPerMinute int `toml:"submit_limit_per_minute"`

	// AcceptRetries bounds the optimistic-concurrency retry loop in the
	// auction ledger.
	AcceptRetries int `toml:"accept_retries"`
}

// FraudConfig holds the fraud-heuristic thresholds.
type FraudConfig struct {
	// JumpMultiple flags a bid exceeding this multiple of the previous bid.
	JumpMultiple int64 `toml:"jump_multiple"`

	// NewAccountDays is the account age below which the jump heuristic
	// applies.
	NewAccountDays int `toml:"new_account_days"`

	// ScanQueueSize is the buffer of the async scan queue.
	ScanQueueSize int `toml:"scan_queue_size"`

	// ScanWorkers is the number of goroutines consuming the scan queue.
	ScanWorkers int `toml:"scan_workers"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port         int      `toml:"port"`
	APIKey       string   `toml:"api_key"`
	CORSOrigins  []string `toml:"cors_origins"`
	RateLimitRPS int      `toml:"rate_limit_rps"`
}

// NotifyConfig holds notification channel credentials for the operator-side
// dispatch channels. Vendor-facing delivery (email/SMS) is the external
// gateway's concern; these channels receive the same events for operations.
type NotifyConfig struct {
	// GatewayURL is the endpoint of the external notification system that
	// performs vendor-facing delivery (email/SMS/push).
	GatewayURL string `toml:"gateway_url"`

	// GatewayKey and GatewaySecret authenticate deliveries to the gateway.
	// The secret may instead live in a sealed file (see salvagebid-seal),
	// opened with GatewaySecretPassword.
	GatewayKey            string `toml:"gateway_key"`
	GatewaySecret         string `toml:"gateway_secret"`
	GatewaySecretFile     string `toml:"gateway_secret_file"`
	GatewaySecretPassword string `toml:"gateway_secret_password"`

	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ArchiveConfig holds ledger-archival parameters.
type ArchiveConfig struct {
	Enabled       bool `toml:"enabled"`
	RetentionDays int  `toml:"retention_days"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
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
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "salvagebid",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "salvagebid-archive",
			ForcePathStyle: true,
		},
		Auction: AuctionConfig{
			ExtensionWindow:      duration{5 * time.Minute},
			MaxExtensions:        6,
			OTPExpiry:            duration{5 * time.Minute},
			TierOneCeiling:       500_000,
			SubmitLimitPerMinute: 10,
			AcceptRetries:        3,
		},
		Fraud: FraudConfig{
			JumpMultiple:   3,
			NewAccountDays: 7,
			ScanQueueSize:  256,
			ScanWorkers:    2,
		},
		Server: ServerConfig{
			Port:         8080,
			CORSOrigins:  []string{"http://localhost:3000"},
			RateLimitRPS: 25,
		},
		Notify: NotifyConfig{
			Events: []string{"otp_code", "outbid", "winning", "fraud_alert"},
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":   true,
	"archive": true,
	"full":    true,
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
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, archive, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}

	if c.Auction.ExtensionWindow.Duration <= 0 {
		errs = append(errs, "auction: extension_window must be positive")
	}
	if c.Auction.MaxExtensions < 0 {
		errs = append(errs, "auction: max_extensions must not be negative")
	}
	if c.Auction.OTPExpiry.Duration <= 0 {
		errs = append(errs, "auction: otp_expiry must be positive")
	}
	if c.Auction.TierOneCeiling <= 0 {
		errs = append(errs, "auction: tier_one_ceiling must be positive")
	}
	if c.Auction.AcceptRetries < 1 {
		errs = append(errs, "auction: accept_retries must be >= 1")
	}

	if c.Fraud.JumpMultiple < 1 {
		errs = append(errs, "fraud: jump_multiple must be >= 1")
	}
	if c.Fraud.NewAccountDays < 0 {
		errs = append(errs, "fraud: new_account_days must not be negative")
	}
	if c.Fraud.ScanWorkers < 1 {
		errs = append(errs, "fraud: scan_workers must be >= 1")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	// Archive mode needs a usable bucket.
	if c.Mode == "archive" || (c.Mode == "full" && c.Archive.Enabled) {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket is required for ledger archival")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region is required for ledger archival")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
