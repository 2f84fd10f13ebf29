// ABOUTME: HTTP middleware that turns a bearer access token into an AuthContext
// ABOUTME: Pending tokens and unusable principals are rejected before the handler runs

package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fastfedi/fedigate/internal/store"
	"github.com/fastfedi/fedigate/internal/token"
)

// Middleware authenticates requests with a bearer access token and attaches
// an AuthContext for downstream handlers.
type Middleware struct {
	issuer *token.Issuer
	store  store.Store
	logger *slog.Logger
}

// NewMiddleware creates the bearer-token middleware.
func NewMiddleware(issuer *token.Issuer, st store.Store) *Middleware {
	return &Middleware{
		issuer: issuer,
		store:  st,
		logger: slog.Default().With("component", "auth"),
	}
}

// Require wraps a handler, rejecting requests without a valid completed-login
// access token. Scopes, when given, must all be present on the token.
func (m *Middleware) Require(next http.Handler, scopes ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bearer := bearerToken(r)
		if bearer == "" {
			writeError(w, http.StatusUnauthorized, ErrInvalidCredentials.Error())
			return
		}

		claims, err := m.issuer.ParseAccess(bearer)
		if err != nil {
			writeError(w, http.StatusUnauthorized, ErrInvalidCredentials.Error())
			return
		}

		if err := Authorize(claims, scopes...); err != nil {
			writeError(w, http.StatusForbidden, err.Error())
			return
		}

		p, err := m.store.GetPrincipal(r.Context(), claims.Subject)
		if err != nil || !usable(p) {
			writeError(w, http.StatusUnauthorized, ErrInvalidCredentials.Error())
			return
		}

		ctx := WithAuth(r.Context(), &AuthContext{
			PrincipalID: p.ID,
			Scopes:      claims.Scopes,
			IsAdmin:     p.IsAdmin,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the token from the Authorization header, or returns "".
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
