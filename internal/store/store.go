// ABOUTME: Store interface and data types for fedigate persistence
// ABOUTME: Defines Principal, RefreshToken structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned when creating a principal with an email that is already registered
var ErrDuplicateEmail = errors.New("email already registered")

// ErrCounterReplayed is returned by AdvanceTOTPCounter when the submitted counter
// does not strictly exceed the stored one. A consumed one-time code can never
// validate again.
var ErrCounterReplayed = errors.New("totp counter replayed")

// Principal represents a local account. A principal with no password hash can
// only authenticate via magic link.
type Principal struct {
	ID             string
	Email          string
	PasswordHash   string // empty means no password set
	TOTPSecret     string // empty means TOTP not enrolled
	TOTPCounter    *int64 // nil until first TOTP verification
	EmailValidated bool
	IsActive       bool
	IsDisabled     bool
	IsApproved     bool
	IsAdmin        bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasTOTP reports whether the principal has an enrolled TOTP secret.
func (p *Principal) HasTOTP() bool {
	return p.TOTPSecret != ""
}

// RefreshToken is one issued refresh token. One row per token; removed on
// revocation and on rotation.
type RefreshToken struct {
	Token       string
	PrincipalID string
	Scopes      string // space-separated scope names, may be empty
	CreatedAt   time.Time
}

// Store defines the interface for principal and refresh token persistence
type Store interface {
	// Principals
	CreatePrincipal(ctx context.Context, p *Principal) error
	GetPrincipal(ctx context.Context, id string) (*Principal, error)
	GetPrincipalByEmail(ctx context.Context, email string) (*Principal, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetEmailValidated(ctx context.Context, id string) error
	SetPrincipalFlags(ctx context.Context, id string, active, disabled, approved, admin bool) error
	ListPrincipals(ctx context.Context) ([]*Principal, error)
	CountPrincipals(ctx context.Context) (int, error)

	// TOTP enrollment and replay protection
	EnableTOTP(ctx context.Context, id, secret string) error
	DisableTOTP(ctx context.Context, id string) error
	AdvanceTOTPCounter(ctx context.Context, id string, newCounter int64) error

	// Refresh tokens
	SaveRefreshToken(ctx context.Context, tok *RefreshToken) error
	GetRefreshToken(ctx context.Context, token, principalID string) (*RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, token string) error
	DeleteRefreshTokensForPrincipal(ctx context.Context, principalID string) error
	ListRefreshTokens(ctx context.Context, principalID string) ([]*RefreshToken, error)

	// Close releases any resources held by the store
	Close() error
}
