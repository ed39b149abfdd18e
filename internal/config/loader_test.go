package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testTOML = `
mode = "gateway"
log_level = "debug"

[database]
host = "db.internal"
port = 5433
database = "tradedesk_test"
user = "svc"
password = "filepass"

[redis]
addr = "redis.internal:6379"

[server]
port = 9090
cors_origins = ["https://app.example.com"]
api_key = "file-key"
rate_limit = 50
rate_window = "30s"

[expiry]
interval = "5s"

[archive]
enabled = true
interval = "2h"
prefix = "archived"

[s3]
endpoint = "http://minio:9000"
bucket = "test-bucket"
`

func writeTestConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write test config: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	cfg, err := Load(writeTestConfig(t, testTOML))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Mode != "gateway" {
		t.Fatalf("unexpected mode: %s", cfg.Mode)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("unexpected log level: %s", cfg.LogLevel)
	}
	if cfg.Database.Host != "db.internal" || cfg.Database.Port != 5433 {
		t.Fatalf("unexpected database config: %+v", cfg.Database)
	}
	if cfg.Redis.Addr != "redis.internal:6379" {
		t.Fatalf("unexpected redis addr: %s", cfg.Redis.Addr)
	}
	// Values absent from the file keep their defaults.
	if cfg.Redis.PoolSize != 20 {
		t.Fatalf("expected default redis pool size 20, got %d", cfg.Redis.PoolSize)
	}
	if cfg.Server.Port != 9090 || cfg.Server.APIKey != "file-key" {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Server.RateWindow.Duration != 30*time.Second {
		t.Fatalf("unexpected rate window: %v", cfg.Server.RateWindow.Duration)
	}
	if cfg.Expiry.Interval.Duration != 5*time.Second {
		t.Fatalf("unexpected expiry interval: %v", cfg.Expiry.Interval.Duration)
	}
	if !cfg.Archive.Enabled || cfg.Archive.Prefix != "archived" {
		t.Fatalf("unexpected archive config: %+v", cfg.Archive)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "https://app.example.com" {
		t.Fatalf("unexpected cors origins: %+v", cfg.Server.CORSOrigins)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Mode != "full" || cfg.Server.Port != 8080 {
		t.Fatalf("expected defaults, got mode=%s port=%d", cfg.Mode, cfg.Server.Port)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRADEDESK_DATABASE_PASSWORD", "envpass")
	t.Setenv("TRADEDESK_REDIS_ADDR", "env-redis:6380")
	t.Setenv("TRADEDESK_SERVER_API_KEY", "env-key")
	t.Setenv("TRADEDESK_SERVER_RATE_WINDOW", "90s")
	t.Setenv("TRADEDESK_SERVER_CORS_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("TRADEDESK_ARCHIVE_ENABLED", "false")
	t.Setenv("TRADEDESK_MODE", "bot")
	t.Setenv("TRADEDESK_DISCORD_BOT_TOKEN", "env-token")

	cfg, err := Load(writeTestConfig(t, testTOML))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Database.Password != "envpass" {
		t.Fatalf("expected env password to win, got %q", cfg.Database.Password)
	}
	if cfg.Redis.Addr != "env-redis:6380" {
		t.Fatalf("expected env redis addr, got %q", cfg.Redis.Addr)
	}
	if cfg.Server.APIKey != "env-key" {
		t.Fatalf("expected env api key, got %q", cfg.Server.APIKey)
	}
	if cfg.Server.RateWindow.Duration != 90*time.Second {
		t.Fatalf("expected env rate window, got %v", cfg.Server.RateWindow.Duration)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example.com" {
		t.Fatalf("unexpected cors origins: %+v", cfg.Server.CORSOrigins)
	}
	if cfg.Archive.Enabled {
		t.Fatalf("expected env to disable archive")
	}
	if cfg.Mode != "bot" || cfg.Discord.BotToken != "env-token" {
		t.Fatalf("unexpected mode/bot token: %s %q", cfg.Mode, cfg.Discord.BotToken)
	}
}

func TestValidateModeRequirements(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.Mode = "sidecar" },
			wantSub: "unknown mode",
		},
		{
			name:    "bot mode requires token",
			mutate:  func(c *Config) { c.Mode = "bot"; c.Discord.BotToken = "" },
			wantSub: "bot_token is required",
		},
		{
			name:    "gateway mode requires expiry interval",
			mutate:  func(c *Config) { c.Mode = "gateway"; c.Expiry.Interval.Duration = 0 },
			wantSub: "expiry: interval",
		},
		{
			name:    "archive requires bucket",
			mutate:  func(c *Config) { c.Archive.Enabled = true; c.S3.Bucket = "" },
			wantSub: "bucket must not be empty",
		},
		{
			name:    "pool bounds",
			mutate:  func(c *Config) { c.Database.PoolMinConns = 50 },
			wantSub: "pool_min_conns must not exceed",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Discord.BotToken = "token" // full mode needs one by default
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Database.Password = "secret"
	cfg.Redis.Password = "secret"
	cfg.Server.APIKey = "secret"
	cfg.Discord.BotToken = "secret"
	cfg.S3.SecretKey = "secret"

	red := RedactedConfig(&cfg)

	if red.Database.Password != "***" || red.Redis.Password != "***" ||
		red.Server.APIKey != "***" || red.Discord.BotToken != "***" ||
		red.S3.SecretKey != "***" {
		t.Fatalf("expected secrets redacted, got %+v", red)
	}
	if cfg.Database.Password != "secret" {
		t.Fatalf("original config must not be mutated")
	}
	// Untouched non-secret fields survive.
	if red.Database.Host != cfg.Database.Host || red.Server.Port != cfg.Server.Port {
		t.Fatalf("non-secret fields changed")
	}
}
