// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers principal CRUD, TOTP counter advancement, and refresh token persistence

package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestPrincipal(email string) *Principal {
	return &Principal{
		ID:         uuid.NewString(),
		Email:      email,
		IsActive:   true,
		IsApproved: true,
	}
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	// Verify the database file was created in the nested directory
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestCreateAndGetPrincipal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := newTestPrincipal("Alice@Example.ORG")
	if err := s.CreatePrincipal(ctx, p); err != nil {
		t.Fatalf("CreatePrincipal failed: %v", err)
	}

	got, err := s.GetPrincipal(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPrincipal failed: %v", err)
	}
	if got.Email != "alice@example.org" {
		t.Errorf("email = %q, want normalized lowercase", got.Email)
	}
	if !got.IsActive || got.IsDisabled {
		t.Errorf("flags = active:%v disabled:%v", got.IsActive, got.IsDisabled)
	}
	if got.HasTOTP() {
		t.Error("new principal should not have TOTP enrolled")
	}

	// Lookup by email is case-insensitive
	byEmail, err := s.GetPrincipalByEmail(ctx, "ALICE@example.org")
	if err != nil {
		t.Fatalf("GetPrincipalByEmail failed: %v", err)
	}
	if byEmail.ID != p.ID {
		t.Errorf("GetPrincipalByEmail returned %s, want %s", byEmail.ID, p.ID)
	}
}

func TestCreatePrincipal_DuplicateEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreatePrincipal(ctx, newTestPrincipal("bob@example.org")); err != nil {
		t.Fatalf("CreatePrincipal failed: %v", err)
	}

	err := s.CreatePrincipal(ctx, newTestPrincipal("BOB@example.org"))
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("CreatePrincipal error = %v, want ErrDuplicateEmail", err)
	}
}

func TestGetPrincipal_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetPrincipal(context.Background(), "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPrincipal error = %v, want ErrNotFound", err)
	}
}

func TestUpdatePassword(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := newTestPrincipal("carol@example.org")
	if err := s.CreatePrincipal(ctx, p); err != nil {
		t.Fatalf("CreatePrincipal failed: %v", err)
	}

	if err := s.UpdatePassword(ctx, p.ID, "$argon2id$fake-hash"); err != nil {
		t.Fatalf("UpdatePassword failed: %v", err)
	}

	got, _ := s.GetPrincipal(ctx, p.ID)
	if got.PasswordHash != "$argon2id$fake-hash" {
		t.Errorf("PasswordHash = %q", got.PasswordHash)
	}

	if err := s.UpdatePassword(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdatePassword for missing principal = %v, want ErrNotFound", err)
	}
}

func TestSetPrincipalFlags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := newTestPrincipal("dora@example.org")
	if err := s.CreatePrincipal(ctx, p); err != nil {
		t.Fatalf("CreatePrincipal failed: %v", err)
	}

	if err := s.SetPrincipalFlags(ctx, p.ID, false, true, false, false); err != nil {
		t.Fatalf("SetPrincipalFlags failed: %v", err)
	}

	got, _ := s.GetPrincipal(ctx, p.ID)
	if got.IsActive || !got.IsDisabled {
		t.Errorf("flags not updated: active:%v disabled:%v", got.IsActive, got.IsDisabled)
	}
}

func TestTOTPLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := newTestPrincipal("erin@example.org")
	if err := s.CreatePrincipal(ctx, p); err != nil {
		t.Fatalf("CreatePrincipal failed: %v", err)
	}

	if err := s.EnableTOTP(ctx, p.ID, "JBSWY3DPEHPK3PXP"); err != nil {
		t.Fatalf("EnableTOTP failed: %v", err)
	}

	got, _ := s.GetPrincipal(ctx, p.ID)
	if !got.HasTOTP() {
		t.Fatal("TOTP not enrolled after EnableTOTP")
	}
	if got.TOTPCounter != nil {
		t.Error("counter should be nil after fresh enrollment")
	}

	// First advance succeeds
	if err := s.AdvanceTOTPCounter(ctx, p.ID, 100); err != nil {
		t.Fatalf("AdvanceTOTPCounter failed: %v", err)
	}

	// Same counter is a replay
	if err := s.AdvanceTOTPCounter(ctx, p.ID, 100); !errors.Is(err, ErrCounterReplayed) {
		t.Errorf("replay of same counter = %v, want ErrCounterReplayed", err)
	}

	// Earlier counter is a replay
	if err := s.AdvanceTOTPCounter(ctx, p.ID, 99); !errors.Is(err, ErrCounterReplayed) {
		t.Errorf("earlier counter = %v, want ErrCounterReplayed", err)
	}

	// Strictly greater succeeds
	if err := s.AdvanceTOTPCounter(ctx, p.ID, 101); err != nil {
		t.Fatalf("AdvanceTOTPCounter(101) failed: %v", err)
	}

	// Missing principal is ErrNotFound, not a replay
	if err := s.AdvanceTOTPCounter(ctx, "missing", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("advance for missing principal = %v, want ErrNotFound", err)
	}

	if err := s.DisableTOTP(ctx, p.ID); err != nil {
		t.Fatalf("DisableTOTP failed: %v", err)
	}
	got, _ = s.GetPrincipal(ctx, p.ID)
	if got.HasTOTP() || got.TOTPCounter != nil {
		t.Error("secret and counter should be cleared after DisableTOTP")
	}
}

func TestAdvanceTOTPCounter_Concurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := newTestPrincipal("frank@example.org")
	if err := s.CreatePrincipal(ctx, p); err != nil {
		t.Fatalf("CreatePrincipal failed: %v", err)
	}
	if err := s.EnableTOTP(ctx, p.ID, "JBSWY3DPEHPK3PXP"); err != nil {
		t.Fatalf("EnableTOTP failed: %v", err)
	}

	// Two concurrent verifications of the same counter: exactly one may win.
	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.AdvanceTOTPCounter(ctx, p.ID, 42)
		}()
	}
	wg.Wait()
	close(results)

	var wins, replays int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrCounterReplayed):
			replays++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("wins = %d, want exactly 1", wins)
	}
	if replays != workers-1 {
		t.Errorf("replays = %d, want %d", replays, workers-1)
	}
}

func TestRefreshTokens(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := newTestPrincipal("grace@example.org")
	if err := s.CreatePrincipal(ctx, p); err != nil {
		t.Fatalf("CreatePrincipal failed: %v", err)
	}

	tok := &RefreshToken{Token: "tok-1", PrincipalID: p.ID, Scopes: "read write admin"}
	if err := s.SaveRefreshToken(ctx, tok); err != nil {
		t.Fatalf("SaveRefreshToken failed: %v", err)
	}

	got, err := s.GetRefreshToken(ctx, "tok-1", p.ID)
	if err != nil {
		t.Fatalf("GetRefreshToken failed: %v", err)
	}
	if got.Scopes != "read write admin" {
		t.Errorf("Scopes = %q", got.Scopes)
	}

	// A token is never honored for a different principal
	if _, err := s.GetRefreshToken(ctx, "tok-1", "other-principal"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRefreshToken with wrong principal = %v, want ErrNotFound", err)
	}

	if err := s.DeleteRefreshToken(ctx, "tok-1"); err != nil {
		t.Fatalf("DeleteRefreshToken failed: %v", err)
	}
	if _, err := s.GetRefreshToken(ctx, "tok-1", p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRefreshToken after delete = %v, want ErrNotFound", err)
	}
	if err := s.DeleteRefreshToken(ctx, "tok-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete = %v, want ErrNotFound", err)
	}
}

func TestDeleteRefreshTokensForPrincipal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := newTestPrincipal("heidi@example.org")
	if err := s.CreatePrincipal(ctx, p); err != nil {
		t.Fatalf("CreatePrincipal failed: %v", err)
	}

	for _, id := range []string{"a", "b", "c"} {
		if err := s.SaveRefreshToken(ctx, &RefreshToken{Token: id, PrincipalID: p.ID}); err != nil {
			t.Fatalf("SaveRefreshToken failed: %v", err)
		}
	}

	tokens, err := s.ListRefreshTokens(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListRefreshTokens failed: %v", err)
	}
	if len(tokens) != 3 {
		t.Fatalf("len(tokens) = %d, want 3", len(tokens))
	}

	if err := s.DeleteRefreshTokensForPrincipal(ctx, p.ID); err != nil {
		t.Fatalf("DeleteRefreshTokensForPrincipal failed: %v", err)
	}

	tokens, _ = s.ListRefreshTokens(ctx, p.ID)
	if len(tokens) != 0 {
		t.Errorf("len(tokens) after purge = %d, want 0", len(tokens))
	}
}

func TestCountPrincipals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	count, err := s.CountPrincipals(ctx)
	if err != nil {
		t.Fatalf("CountPrincipals failed: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}

	for _, e := range []string{"x@example.org", "y@example.org"} {
		if err := s.CreatePrincipal(ctx, newTestPrincipal(e)); err != nil {
			t.Fatalf("CreatePrincipal failed: %v", err)
		}
	}

	count, _ = s.CountPrincipals(ctx)
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}
