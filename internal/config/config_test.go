package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.RateLimit.DefaultRequestsPerSecond != 100 {
		t.Errorf("default rps = %d, want 100", cfg.RateLimit.DefaultRequestsPerSecond)
	}
	if cfg.Security.SessionExpiryHours != 24 {
		t.Errorf("session expiry = %d, want 24", cfg.Security.SessionExpiryHours)
	}
	if cfg.Server.RequestTimeoutSeconds != 30 {
		t.Errorf("request timeout = %d, want 30", cfg.Server.RequestTimeoutSeconds)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	file := `
environment = "test"

[server]
host = "127.0.0.1"
port = 9000

[rate_limit]
default_requests_per_second = 50

[security]
jwt_secret = "file-secret-0123456789abcdef0123456789"
`
	if err := os.WriteFile(path, []byte(file), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("RATE_LIMIT_RPS", "25")
	t.Setenv("DATABASE_URL", "postgres://env:env@db:5432/env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// File overrides defaults.
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000 from file", cfg.Server.Port)
	}
	// Env overrides file.
	if cfg.RateLimit.DefaultRequestsPerSecond != 25 {
		t.Errorf("rps = %d, want 25 from env", cfg.RateLimit.DefaultRequestsPerSecond)
	}
	if cfg.Database.URL != "postgres://env:env@db:5432/env" {
		t.Errorf("database url = %q, want env value", cfg.Database.URL)
	}
	// Untouched values keep defaults.
	if cfg.Database.IdleTimeoutSeconds != 600 {
		t.Errorf("idle timeout = %d, want default 600", cfg.Database.IdleTimeoutSeconds)
	}
}

func TestLoadMissingFileIsNotFatal(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.toml"))
	t.Setenv("DATABASE_URL", "postgres://x:x@localhost/x")

	if _, err := Load(); err != nil {
		t.Fatalf("Load() with missing file: %v", err)
	}
}

func TestAppPortOverridesServerPort(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.toml"))
	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("APP_PORT", "9200")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9200 {
		t.Errorf("port = %d, want APP_PORT 9200", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults pass", func(c *Config) {}, false},
		{"zero port", func(c *Config) { c.Server.Port = 0 }, true},
		{"empty database url", func(c *Config) { c.Database.URL = "" }, true},
		{"short secret in production", func(c *Config) {
			c.Environment = "production"
			c.Security.JWTSecret = "short"
		}, true},
		{"zero rate limit", func(c *Config) { c.RateLimit.DefaultRequestsPerSecond = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
