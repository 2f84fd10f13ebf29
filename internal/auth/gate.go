// ABOUTME: Multi-step login state machine: password or magic link, optional TOTP, token issuance
// ABOUTME: Every failure exit is the same generic error and burns the same work as success

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/fastfedi/fedigate/internal/password"
	"github.com/fastfedi/fedigate/internal/store"
	"github.com/fastfedi/fedigate/internal/token"
	"github.com/fastfedi/fedigate/internal/totp"
)

// Scope names granted at full login, intersected with what the principal may hold.
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
	ScopeAdmin = "admin"
)

// Mailer delivers the out-of-band half of a magic-claim pair. The token it
// receives must never appear in the synchronous response.
type Mailer interface {
	SendMagicLink(ctx context.Context, email, tokenString string) error
	SendPasswordReset(ctx context.Context, email, tokenString string) error
}

// TokenBundle is the success response of a completed login step.
type TokenBundle struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
}

// Gate orchestrates the login state machine. It owns no storage and no
// cryptography itself; it sequences the store, hasher, TOTP engine, and
// issuer and enforces the uniform failure shape.
type Gate struct {
	store  store.Store
	hasher *password.Hasher
	totp   *totp.Engine
	issuer *token.Issuer
	mailer Mailer
	logger *slog.Logger
}

// NewGate creates the authentication gate.
func NewGate(st store.Store, hasher *password.Hasher, totpEngine *totp.Engine, issuer *token.Issuer, mailer Mailer) *Gate {
	return &Gate{
		store:  st,
		hasher: hasher,
		totp:   totpEngine,
		issuer: issuer,
		mailer: mailer,
		logger: slog.Default().With("component", "auth"),
	}
}

// PasswordLogin verifies email+password and issues tokens. Unknown email,
// missing password, wrong password, and disabled account all run the same
// hashing work and return the same error.
func (g *Gate) PasswordLogin(ctx context.Context, email, pass string) (*TokenBundle, error) {
	p, err := g.store.GetPrincipalByEmail(ctx, email)
	if err != nil || p.PasswordHash == "" {
		// Burn the same hashing work as a real verification so response time
		// does not distinguish "unknown account" from "wrong password".
		g.hasher.VerifyDummy(pass)
		return nil, ErrInvalidCredentials
	}

	ok, err := g.hasher.Verify(pass, p.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}

	if !usable(p) {
		return nil, ErrInvalidCredentials
	}

	return g.finishLogin(ctx, p)
}

// RequestMagicLink is the first step of a passwordless login. The principal is
// created on first request. One half of the pair is emailed; the other half is
// returned to the caller for the redemption step.
func (g *Gate) RequestMagicLink(ctx context.Context, email string) (claim string, err error) {
	p, err := g.store.GetPrincipalByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		p = &store.Principal{
			ID:         uuid.NewString(),
			Email:      email,
			IsActive:   true,
			IsApproved: true,
		}
		if err := g.store.CreatePrincipal(ctx, p); err != nil {
			return "", ErrInvalidCredentials
		}
	} else if err != nil {
		return "", ErrInvalidCredentials
	}

	// Every non-active account gets the same ambiguous answer, so the response
	// never reveals whether the address is unapproved, disabled, or brand new.
	if !p.IsApproved || !usable(p) {
		return "", ErrActivationPending
	}

	emailToken, claimToken, err := g.issuer.IssueMagicPair(p.ID)
	if err != nil {
		return "", ErrInvalidCredentials
	}

	if err := g.mailer.SendMagicLink(ctx, p.Email, emailToken); err != nil {
		g.logger.Error("sending magic link", "error", err)
	}

	return claimToken, nil
}

// RedeemMagicClaim is the second step of a passwordless login. The caller
// presents the half it received synchronously and the half delivered by email;
// both must name the same subject and carry the same fingerprint.
func (g *Gate) RedeemMagicClaim(ctx context.Context, claimToken, emailToken string) (*TokenBundle, error) {
	claim, err := g.issuer.ParseMagic(claimToken)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	mailed, err := g.issuer.ParseMagic(emailToken)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if claim.Subject != mailed.Subject || claim.Fingerprint != mailed.Fingerprint {
		return nil, ErrInvalidCredentials
	}
	// One half replayed as both never redeems.
	if claim.Side != token.SideClaim || mailed.Side != token.SideEmail {
		return nil, ErrInvalidCredentials
	}

	p, err := g.store.GetPrincipal(ctx, mailed.Subject)
	if err != nil || !usable(p) {
		return nil, ErrInvalidCredentials
	}

	// Redeeming a link that arrived by email proves control of the mailbox
	if !p.EmailValidated {
		if err := g.store.SetEmailValidated(ctx, p.ID); err != nil {
			g.logger.Error("marking email validated", "error", err)
		}
	}

	return g.finishLogin(ctx, p)
}

// CompleteTOTP is the final login step for principals with an enrolled second
// factor. The presented access token must carry totp_pending; the verified
// counter is persisted before tokens are issued, so a replayed code fails.
func (g *Gate) CompleteTOTP(ctx context.Context, pendingToken, code string) (*TokenBundle, error) {
	claims, err := g.issuer.ParseAccess(pendingToken)
	if err != nil || !claims.TOTPPending {
		return nil, ErrInvalidCredentials
	}

	p, err := g.store.GetPrincipal(ctx, claims.Subject)
	if err != nil || !usable(p) || !p.HasTOTP() {
		return nil, ErrInvalidCredentials
	}

	newCounter, ok := g.totp.Verify(code, p.TOTPSecret, p.TOTPCounter)
	if !ok {
		return nil, ErrInvalidCredentials
	}

	// The store update is the serialization point: concurrent verifications
	// of the same code race here and only one can win.
	if err := g.store.AdvanceTOTPCounter(ctx, p.ID, newCounter); err != nil {
		return nil, ErrInvalidCredentials
	}

	return g.issueFullBundle(ctx, p)
}

// Refresh exchanges a persisted refresh token for a new token pair. Refresh
// tokens are single-use: the presented row is deleted in the same call that
// persists its replacement. Scopes carry over from the old token; they can
// never widen at refresh time.
func (g *Gate) Refresh(ctx context.Context, refreshToken string) (*TokenBundle, error) {
	claims, err := g.issuer.ParseRefresh(refreshToken)
	if err != nil {
		return nil, token.ErrTokenInvalid
	}

	row, err := g.store.GetRefreshToken(ctx, refreshToken, claims.Subject)
	if err != nil {
		return nil, token.ErrTokenInvalid
	}

	p, err := g.store.GetPrincipal(ctx, claims.Subject)
	if err != nil || !usable(p) {
		return nil, ErrInvalidCredentials
	}

	scopes := splitScopes(row.Scopes)

	if err := g.store.DeleteRefreshToken(ctx, row.Token); err != nil {
		return nil, token.ErrTokenInvalid
	}

	return g.issueBundle(ctx, p, scopes)
}

// Revoke deletes a persisted refresh token. Access tokens minted from it stop
// being refreshable immediately.
func (g *Gate) Revoke(ctx context.Context, refreshToken string) error {
	claims, err := g.issuer.ParseRefresh(refreshToken)
	if err != nil {
		return token.ErrTokenInvalid
	}

	if err := g.store.DeleteRefreshToken(ctx, refreshToken); err != nil {
		return token.ErrTokenInvalid
	}

	g.logger.Info("refresh token revoked", "principal", claims.Subject)
	return nil
}

// StartTOTPEnrollment generates enrollment material for the authenticated
// principal. Nothing is persisted until EnableTOTP verifies a first code.
func (g *Gate) StartTOTPEnrollment(ctx context.Context, accessToken string) (*totp.Enrollment, error) {
	p, err := g.principalFromAccess(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return g.totp.Enroll(p.Email)
}

// EnableTOTP turns on the second factor. A principal with a password must
// re-authenticate, and a first code must verify against the new secret before
// it is stored.
func (g *Gate) EnableTOTP(ctx context.Context, accessToken, pass, secret, code string) error {
	p, err := g.principalFromAccess(ctx, accessToken)
	if err != nil {
		return err
	}

	if p.PasswordHash != "" {
		ok, err := g.hasher.Verify(pass, p.PasswordHash)
		if err != nil || !ok {
			return ErrInvalidCredentials
		}
	}

	newCounter, ok := g.totp.Verify(code, secret, p.TOTPCounter)
	if !ok {
		return ErrInvalidCredentials
	}

	if err := g.store.EnableTOTP(ctx, p.ID, secret); err != nil {
		return ErrInvalidCredentials
	}
	if err := g.store.AdvanceTOTPCounter(ctx, p.ID, newCounter); err != nil {
		return ErrInvalidCredentials
	}

	g.logger.Info("totp enabled", "principal", p.ID)
	return nil
}

// DisableTOTP removes the second factor, re-authenticating first when a
// password exists.
func (g *Gate) DisableTOTP(ctx context.Context, accessToken, pass string) error {
	p, err := g.principalFromAccess(ctx, accessToken)
	if err != nil {
		return err
	}

	if p.PasswordHash != "" {
		ok, err := g.hasher.Verify(pass, p.PasswordHash)
		if err != nil || !ok {
			return ErrInvalidCredentials
		}
	}

	if err := g.store.DisableTOTP(ctx, p.ID); err != nil {
		return ErrInvalidCredentials
	}

	g.logger.Info("totp disabled", "principal", p.ID)
	return nil
}

// RecoverPassword issues a magic pair for a password reset. Whether the email
// exists is not revealed: an unknown or unusable account returns empty-handed
// and the HTTP layer answers with the same message either way.
func (g *Gate) RecoverPassword(ctx context.Context, email string) (claim string, err error) {
	p, err := g.store.GetPrincipalByEmail(ctx, email)
	if err != nil || !usable(p) {
		return "", nil
	}

	emailToken, claimToken, err := g.issuer.IssueMagicPair(p.ID)
	if err != nil {
		return "", nil
	}

	if err := g.mailer.SendPasswordReset(ctx, p.Email, emailToken); err != nil {
		g.logger.Error("sending password reset", "error", err)
	}

	return claimToken, nil
}

// ResetPassword completes a recovery: same pair checks as magic redemption,
// then the new password hash replaces the old one and every outstanding
// refresh token is revoked.
func (g *Gate) ResetPassword(ctx context.Context, claimToken, emailToken, newPassword string) error {
	claim, err := g.issuer.ParseMagic(claimToken)
	if err != nil {
		return ErrInvalidCredentials
	}
	mailed, err := g.issuer.ParseMagic(emailToken)
	if err != nil {
		return ErrInvalidCredentials
	}

	if claim.Subject != mailed.Subject || claim.Fingerprint != mailed.Fingerprint {
		return ErrInvalidCredentials
	}
	if claim.Side != token.SideClaim || mailed.Side != token.SideEmail {
		return ErrInvalidCredentials
	}

	p, err := g.store.GetPrincipal(ctx, mailed.Subject)
	if err != nil || !usable(p) {
		return ErrInvalidCredentials
	}

	hash, err := g.hasher.Hash(newPassword)
	if err != nil {
		return ErrInvalidCredentials
	}
	if err := g.store.UpdatePassword(ctx, p.ID, hash); err != nil {
		return ErrInvalidCredentials
	}

	// A reset invalidates every session the old password opened
	if err := g.store.DeleteRefreshTokensForPrincipal(ctx, p.ID); err != nil {
		g.logger.Error("revoking refresh tokens after reset", "error", err)
	}

	g.logger.Info("password reset", "principal", p.ID)
	return nil
}

// finishLogin issues tokens for a verified principal: a pending access token
// when TOTP is enrolled, the full bundle otherwise.
func (g *Gate) finishLogin(ctx context.Context, p *store.Principal) (*TokenBundle, error) {
	if p.HasTOTP() {
		access, err := g.issuer.IssueAccess(p.ID, nil, true)
		if err != nil {
			return nil, ErrInvalidCredentials
		}
		return &TokenBundle{AccessToken: access, TokenType: "bearer"}, nil
	}
	return g.issueFullBundle(ctx, p)
}

func (g *Gate) issueFullBundle(ctx context.Context, p *store.Principal) (*TokenBundle, error) {
	return g.issueBundle(ctx, p, grantedScopes(p))
}

func (g *Gate) issueBundle(ctx context.Context, p *store.Principal, scopes []string) (*TokenBundle, error) {
	refresh, err := g.issuer.IssueRefresh(p.ID, scopes)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := g.store.SaveRefreshToken(ctx, &store.RefreshToken{
		Token:       refresh,
		PrincipalID: p.ID,
		Scopes:      strings.Join(scopes, " "),
	}); err != nil {
		return nil, ErrInvalidCredentials
	}

	access, err := g.issuer.IssueAccess(p.ID, scopes, false)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	return &TokenBundle{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
	}, nil
}

// principalFromAccess resolves a full (non-pending) access token to a usable principal.
func (g *Gate) principalFromAccess(ctx context.Context, accessToken string) (*store.Principal, error) {
	claims, err := g.issuer.ParseAccess(accessToken)
	if err != nil || claims.TOTPPending {
		return nil, ErrInvalidCredentials
	}
	p, err := g.store.GetPrincipal(ctx, claims.Subject)
	if err != nil || !usable(p) {
		return nil, ErrInvalidCredentials
	}
	return p, nil
}

// grantedScopes is the full scope set intersected with what the principal may hold.
func grantedScopes(p *store.Principal) []string {
	scopes := []string{ScopeRead, ScopeWrite}
	if p.IsAdmin {
		scopes = append(scopes, ScopeAdmin)
	}
	return scopes
}

// usable reports whether the principal may authenticate at all.
func usable(p *store.Principal) bool {
	return p.IsActive && !p.IsDisabled
}

func splitScopes(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}
