// ABOUTME: Wires config, store, crypto, and HTTP routes into a runnable server
// ABOUTME: Run blocks until context cancellation, then shuts down gracefully

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/fastfedi/fedigate/internal/auth"
	"github.com/fastfedi/fedigate/internal/config"
	"github.com/fastfedi/fedigate/internal/fedkey"
	"github.com/fastfedi/fedigate/internal/httpsig"
	"github.com/fastfedi/fedigate/internal/password"
	"github.com/fastfedi/fedigate/internal/store"
	"github.com/fastfedi/fedigate/internal/token"
	"github.com/fastfedi/fedigate/internal/totp"
)

// Server owns every long-lived component and the HTTP listener.
type Server struct {
	config     *config.Config
	logger     *slog.Logger
	store      store.Store
	resolver   *fedkey.Resolver
	httpServer *http.Server
}

// New builds a server from validated configuration. Nothing starts listening
// until Run.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	hasher, err := password.New(password.DefaultParams())
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating password hasher: %w", err)
	}

	issuer := token.NewIssuer(
		[]byte(cfg.Auth.JWTSecret),
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
		cfg.Auth.MagicTokenExpiry,
	)
	totpEngine := totp.NewEngine(cfg.Auth.TOTPIssuer, cfg.Auth.TOTPSkew)
	gate := auth.NewGate(st, hasher, totpEngine, issuer, &logMailer{logger: logger})

	resolver := fedkey.NewResolver(
		cfg.Federation.KeyFetchTimeout,
		cfg.Federation.KeyCacheTTL,
		cfg.Federation.KeyCacheSize,
	)
	verifier := httpsig.NewVerifier(resolver, cfg.Federation.ExternalHost)
	sigMiddleware := httpsig.NewMiddleware(verifier, cfg.Federation.MaxBodySize)
	authMiddleware := auth.NewMiddleware(issuer, st)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	auth.NewHandler(gate).Register(mux)
	mux.Handle("POST /inbox", sigMiddleware.Require(http.HandlerFunc(handleInbox)))

	// A scope-gated endpoint for clients to confirm who they are
	mux.Handle("GET /me", authMiddleware.Require(http.HandlerFunc(handleMe), auth.ScopeRead))

	s := &Server{
		config:   cfg,
		logger:   logger,
		store:    st,
		resolver: resolver,
		httpServer: &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	return s, nil
}

// Run starts the HTTP server and blocks until ctx is canceled or the server
// fails. Returns nil on graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.Server.HTTPAddr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := s.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown uses a fresh context since the run context is already canceled.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown stops the HTTP server and releases every held resource.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error

	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	s.resolver.Close()
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}

	return errors.Join(errs...)
}
