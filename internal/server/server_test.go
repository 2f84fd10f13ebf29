// ABOUTME: Tests server construction and the run/shutdown lifecycle
// ABOUTME: Uses an ephemeral port and a sqlite store in a temp directory

package server

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fastfedi/fedigate/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server:   config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "server.db")},
		Auth: config.AuthConfig{
			JWTSecret:          "0123456789abcdef0123456789abcdef",
			TOTPIssuer:         "fedigate-test",
			TOTPSkew:           1,
			RefreshTokenExpiry: 720 * time.Hour,
			MagicTokenExpiry:   10 * time.Minute,
		},
		Federation: config.FederationConfig{
			MaxBodySize:     50 * 1024,
			KeyCacheSize:    16,
			KeyFetchTimeout: 5 * time.Second,
			KeyCacheTTL:     time.Hour,
		},
	}
}

func TestNewAndShutdown(t *testing.T) {
	srv, err := New(testConfig(t), slog.Default())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	srv, err := New(testConfig(t), slog.Default())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	// Give the listener a moment to come up before asking it to stop
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
