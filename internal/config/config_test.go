package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 5*time.Minute, cfg.Auction.ExtensionWindow.Duration)
	require.Equal(t, int64(500_000), cfg.Auction.TierOneCeiling)
	require.Equal(t, 3, cfg.Auction.AcceptRetries)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Mode = "turbo" }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"zero extension window", func(c *Config) { c.Auction.ExtensionWindow.Duration = 0 }},
		{"negative max extensions", func(c *Config) { c.Auction.MaxExtensions = -1 }},
		{"zero ceiling", func(c *Config) { c.Auction.TierOneCeiling = 0 }},
		{"no redis addr", func(c *Config) { c.Redis.Addr = "" }},
		{"archive without bucket", func(c *Config) {
			c.Mode = "archive"
			c.S3.Bucket = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := []byte(`
mode = "full"

[auction]
extension_window = "2m"
max_extensions = 4
tier_one_ceiling = 750000
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "full", cfg.Mode)
	require.Equal(t, 2*time.Minute, cfg.Auction.ExtensionWindow.Duration)
	require.Equal(t, 4, cfg.Auction.MaxExtensions)
	require.Equal(t, int64(750_000), cfg.Auction.TierOneCeiling)
	// Untouched sections keep defaults.
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`log_level = "info"`), 0o600))

	t.Setenv("SALVAGEBID_LOG_LEVEL", "debug")
	t.Setenv("SALVAGEBID_AUCTION_OTP_EXPIRY", "90s")
	t.Setenv("SALVAGEBID_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 90*time.Second, cfg.Auction.OTPExpiry.Duration)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}
