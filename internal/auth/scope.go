// ABOUTME: Scope authorization over parsed access claims
// ABOUTME: Pending and refresh tokens never authorize anything

package auth

import "github.com/fastfedi/fedigate/internal/token"

// Authorize checks that claims represent a completed login carrying every
// required scope. A totp_pending token and a refresh token fail regardless of
// scopes.
func Authorize(claims *token.AccessClaims, required ...string) error {
	if claims == nil || claims.TOTPPending || claims.Refresh {
		return ErrInsufficientScope
	}
	for _, want := range required {
		if !hasScope(claims.Scopes, want) {
			return ErrInsufficientScope
		}
	}
	return nil
}

func hasScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}
