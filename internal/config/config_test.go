// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, duration parsing, and defaults

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

const validConfig = `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "./test.db"

auth:
  jwt_secret: "0123456789abcdef0123456789abcdef"
  access_token_expiry: "0"
  refresh_token_expiry: "720h"
  magic_token_expiry: "10m"
  totp_issuer: "fedigate-test"

federation:
  external_host: "example.org"
  max_body_size: 51200
  key_fetch_timeout: "5s"
  key_cache_ttl: "30m"

logging:
  level: "debug"
  format: "json"
`

func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Auth.AccessTokenExpiry != 0 {
		t.Errorf("AccessTokenExpiry = %v, want 0 (non-expiring)", cfg.Auth.AccessTokenExpiry)
	}
	if cfg.Auth.RefreshTokenExpiry != 720*time.Hour {
		t.Errorf("RefreshTokenExpiry = %v", cfg.Auth.RefreshTokenExpiry)
	}
	if cfg.Auth.MagicTokenExpiry != 10*time.Minute {
		t.Errorf("MagicTokenExpiry = %v", cfg.Auth.MagicTokenExpiry)
	}
	if cfg.Federation.KeyFetchTimeout != 5*time.Second {
		t.Errorf("KeyFetchTimeout = %v", cfg.Federation.KeyFetchTimeout)
	}
	if cfg.Federation.MaxBodySize != 51200 {
		t.Errorf("MaxBodySize = %d", cfg.Federation.MaxBodySize)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q", cfg.Logging.Format)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("FEDIGATE_TEST_SECRET", "expanded-secret-0123456789abcdef")

	content := strings.Replace(validConfig,
		`jwt_secret: "0123456789abcdef0123456789abcdef"`,
		`jwt_secret: "${FEDIGATE_TEST_SECRET}"`, 1)

	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.JWTSecret != "expanded-secret-0123456789abcdef" {
		t.Errorf("JWTSecret = %q, env var not expanded", cfg.Auth.JWTSecret)
	}
}

func TestLoad_Defaults(t *testing.T) {
	content := `
server:
  http_addr: "127.0.0.1:8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "0123456789abcdef0123456789abcdef"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.RefreshTokenExpiry != DefaultRefreshTokenExpiry {
		t.Errorf("RefreshTokenExpiry = %v, want default", cfg.Auth.RefreshTokenExpiry)
	}
	if cfg.Auth.MagicTokenExpiry != DefaultMagicTokenExpiry {
		t.Errorf("MagicTokenExpiry = %v, want default", cfg.Auth.MagicTokenExpiry)
	}
	if cfg.Federation.MaxBodySize != DefaultMaxBodySize {
		t.Errorf("MaxBodySize = %d, want default", cfg.Federation.MaxBodySize)
	}
	if cfg.Federation.KeyCacheSize != DefaultKeyCacheSize {
		t.Errorf("KeyCacheSize = %d, want default", cfg.Federation.KeyCacheSize)
	}
	if cfg.Auth.TOTPSkew != DefaultTOTPSkew {
		t.Errorf("TOTPSkew = %d, want default", cfg.Auth.TOTPSkew)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging defaults = %q/%q", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoad_InvalidConfigs(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing jwt_secret",
			content: `
server:
  http_addr: "127.0.0.1:8080"
database:
  path: "./test.db"
`,
			wantErr: "jwt_secret",
		},
		{
			name: "short jwt_secret",
			content: `
server:
  http_addr: "127.0.0.1:8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "too-short"
`,
			wantErr: "jwt_secret",
		},
		{
			name: "missing database path",
			content: `
server:
  http_addr: "127.0.0.1:8080"
auth:
  jwt_secret: "0123456789abcdef0123456789abcdef"
`,
			wantErr: "database.path",
		},
		{
			name: "bad duration",
			content: `
server:
  http_addr: "127.0.0.1:8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "0123456789abcdef0123456789abcdef"
  refresh_token_expiry: "one week"
`,
			wantErr: "refresh_token_expiry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}
