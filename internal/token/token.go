// ABOUTME: JWT issuing and parsing for access, refresh, and magic-claim tokens
// ABOUTME: HS512 with a single process-wide secret; every parse failure is one generic error

package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrTokenInvalid is the only error parsing ever returns. Bad signature,
// expiry, malformed claims, and kind mismatch are indistinguishable to the
// caller; anything more specific would be an oracle.
var ErrTokenInvalid = errors.New("invalid token")

// Token kinds. Every token carries its kind as a claim; parsing a token as a
// kind other than its declared one fails, closing the claim-bag confusion
// where a magic token could double as a scope-less access token.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
	KindMagic   = "magic"
)

// AccessClaims is the claim set of an access token. TOTPPending marks a token
// issued after password or magic-link verification but before the TOTP step;
// such a token is only accepted by the TOTP completion endpoint.
type AccessClaims struct {
	jwt.RegisteredClaims
	Kind        string   `json:"kind"`
	Refresh     bool     `json:"refresh"`
	TOTPPending bool     `json:"totp"`
	Scopes      []string `json:"scopes"`
}

// RefreshClaims is the claim set of a refresh token. Refresh is always true;
// a refresh token must additionally be persisted in the store to be honored.
type RefreshClaims struct {
	jwt.RegisteredClaims
	Kind    string   `json:"kind"`
	Refresh bool     `json:"refresh"`
	Scopes  []string `json:"scopes"`
}

// Magic pair sides. Each half records which side it is, so one half presented
// twice can never redeem.
const (
	SideEmail = "email"
	SideClaim = "claim"
)

// MagicClaims is the claim set of one half of a magic-claim pair. Redemption
// requires both halves: equal subjects, equal fingerprints, opposite sides.
type MagicClaims struct {
	jwt.RegisteredClaims
	Kind        string `json:"kind"`
	Side        string `json:"side"`
	Fingerprint string `json:"fingerprint"`
}

// Issuer mints and parses all three token kinds with a single signing secret.
type Issuer struct {
	secret        []byte
	accessExpiry  time.Duration // 0 means access tokens do not expire
	refreshExpiry time.Duration
	magicExpiry   time.Duration
}

// NewIssuer creates an Issuer. The secret is loaded once at startup and never
// mutated. An accessExpiry of 0 issues non-expiring access tokens, bounded
// only by revocation of their backing refresh token.
func NewIssuer(secret []byte, accessExpiry, refreshExpiry, magicExpiry time.Duration) *Issuer {
	return &Issuer{
		secret:        secret,
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
		magicExpiry:   magicExpiry,
	}
}

// IssueAccess mints an access token for the subject carrying the given scopes.
func (i *Issuer) IssueAccess(subject string, scopes []string, totpPending bool) (string, error) {
	claims := AccessClaims{
		RegisteredClaims: i.registered(subject, i.accessExpiry),
		Kind:             KindAccess,
		TOTPPending:      totpPending,
		Scopes:           scopes,
	}
	return i.sign(claims)
}

// IssueRefresh mints a refresh token. The caller is responsible for persisting
// it; an unpersisted refresh token is never honored.
func (i *Issuer) IssueRefresh(subject string, scopes []string) (string, error) {
	claims := RefreshClaims{
		RegisteredClaims: i.registered(subject, i.refreshExpiry),
		Kind:             KindRefresh,
		Refresh:          true,
		Scopes:           scopes,
	}
	return i.sign(claims)
}

// IssueMagicPair mints the two halves of a magic-claim login: one delivered
// out-of-band by email, one returned to the requesting client. Both carry the
// same subject and the same pair fingerprint; redemption requires presenting
// both, so neither half alone is redeemable.
func (i *Issuer) IssueMagicPair(subject string) (emailToken, claimToken string, err error) {
	fingerprint := uuid.NewString()

	emailToken, err = i.sign(MagicClaims{
		RegisteredClaims: i.registered(subject, i.magicExpiry),
		Kind:             KindMagic,
		Side:             SideEmail,
		Fingerprint:      fingerprint,
	})
	if err != nil {
		return "", "", err
	}

	claimToken, err = i.sign(MagicClaims{
		RegisteredClaims: i.registered(subject, i.magicExpiry),
		Kind:             KindMagic,
		Side:             SideClaim,
		Fingerprint:      fingerprint,
	})
	if err != nil {
		return "", "", err
	}

	return emailToken, claimToken, nil
}

// ParseAccess validates an access token. A refresh token presented here fails
// with the same generic error as a forged one.
func (i *Issuer) ParseAccess(tokenString string) (*AccessClaims, error) {
	var claims AccessClaims
	if err := i.parse(tokenString, &claims); err != nil {
		return nil, err
	}
	if claims.Kind != KindAccess || claims.Refresh || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return &claims, nil
}

// ParseRefresh validates a refresh token. An access token presented here fails.
func (i *Issuer) ParseRefresh(tokenString string) (*RefreshClaims, error) {
	var claims RefreshClaims
	if err := i.parse(tokenString, &claims); err != nil {
		return nil, err
	}
	if claims.Kind != KindRefresh || !claims.Refresh || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return &claims, nil
}

// ParseMagic validates one half of a magic-claim pair.
func (i *Issuer) ParseMagic(tokenString string) (*MagicClaims, error) {
	var claims MagicClaims
	if err := i.parse(tokenString, &claims); err != nil {
		return nil, err
	}
	if claims.Kind != KindMagic || claims.Fingerprint == "" || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	if claims.Side != SideEmail && claims.Side != SideClaim {
		return nil, ErrTokenInvalid
	}
	return &claims, nil
}

func (i *Issuer) registered(subject string, expiry time.Duration) jwt.RegisteredClaims {
	now := time.Now()
	rc := jwt.RegisteredClaims{
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
		ID:       uuid.NewString(),
	}
	if expiry > 0 {
		rc.ExpiresAt = jwt.NewNumericDate(now.Add(expiry))
	}
	return rc
}

func (i *Issuer) sign(claims jwt.Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

func (i *Issuer) parse(tokenString string, claims jwt.Claims) error {
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		// Only the configured HMAC algorithm is ever acceptable
		if t.Method != jwt.SigningMethodHS512 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil || !parsed.Valid {
		return ErrTokenInvalid
	}
	return nil
}
