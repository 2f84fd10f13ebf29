// ABOUTME: HTTP handlers for the login state machine: password, magic link, TOTP, refresh
// ABOUTME: Failures share one generic JSON shape so responses leak nothing about accounts

package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// Handler exposes the gate over HTTP.
type Handler struct {
	gate   *Gate
	logger *slog.Logger
}

// NewHandler creates the auth HTTP handler.
func NewHandler(gate *Gate) *Handler {
	return &Handler{
		gate:   gate,
		logger: slog.Default().With("component", "auth"),
	}
}

// Register mounts the auth routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /oauth/login", h.login)
	mux.HandleFunc("POST /oauth/magic/{email}", h.magic)
	mux.HandleFunc("POST /oauth/claim", h.claim)
	mux.HandleFunc("POST /oauth/totp", h.totp)
	mux.HandleFunc("GET /oauth/totp", h.totpEnroll)
	mux.HandleFunc("PUT /oauth/totp", h.totpEnable)
	mux.HandleFunc("DELETE /oauth/totp", h.totpDisable)
	mux.HandleFunc("POST /oauth/refresh", h.refresh)
	mux.HandleFunc("POST /oauth/revoke", h.revoke)
	mux.HandleFunc("POST /oauth/recover/{email}", h.recover)
	mux.HandleFunc("POST /oauth/reset", h.reset)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}

	bundle, err := h.gate.PasswordLogin(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, ErrInvalidCredentials.Error())
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (h *Handler) magic(w http.ResponseWriter, r *http.Request) {
	email := r.PathValue("email")
	if email == "" {
		writeError(w, http.StatusBadRequest, "missing email")
		return
	}

	claim, err := h.gate.RequestMagicLink(r.Context(), email)
	switch {
	case errors.Is(err, ErrActivationPending):
		// Same status as success; the wording confirms nothing about the account
		writeJSON(w, http.StatusOK, map[string]string{"detail": ErrActivationPending.Error()})
	case err != nil:
		writeError(w, http.StatusUnauthorized, ErrInvalidCredentials.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"claim": claim})
	}
}

func (h *Handler) claim(w http.ResponseWriter, r *http.Request) {
	claimToken := bearerToken(r)
	var body struct {
		Claim string `json:"claim"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	bundle, err := h.gate.RedeemMagicClaim(r.Context(), claimToken, body.Claim)
	if err != nil {
		writeError(w, http.StatusUnauthorized, ErrInvalidCredentials.Error())
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (h *Handler) totp(w http.ResponseWriter, r *http.Request) {
	pending := bearerToken(r)
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	bundle, err := h.gate.CompleteTOTP(r.Context(), pending, body.Code)
	if err != nil {
		writeError(w, http.StatusUnauthorized, ErrInvalidCredentials.Error())
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

// totpEnroll hands out fresh enrollment material for the authenticated caller.
// Nothing is persisted until a first code verifies via PUT.
func (h *Handler) totpEnroll(w http.ResponseWriter, r *http.Request) {
	enrollment, err := h.gate.StartTOTPEnrollment(r.Context(), bearerToken(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, ErrInvalidCredentials.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"secret": enrollment.Secret,
		"uri":    enrollment.URI,
	})
}

func (h *Handler) totpEnable(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
		Secret   string `json:"secret"`
		Code     string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	if err := h.gate.EnableTOTP(r.Context(), bearerToken(r), body.Password, body.Secret, body.Code); err != nil {
		writeError(w, http.StatusUnauthorized, ErrInvalidCredentials.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"detail": "totp enabled"})
}

func (h *Handler) totpDisable(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	if err := h.gate.DisableTOTP(r.Context(), bearerToken(r), body.Password); err != nil {
		writeError(w, http.StatusUnauthorized, ErrInvalidCredentials.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"detail": "totp disabled"})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	// The underlying sentinel stays server-side; a rotten token and a disabled
	// account must read identically to the caller.
	bundle, err := h.gate.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, ErrInvalidCredentials.Error())
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	if err := h.gate.Revoke(r.Context(), body.RefreshToken); err != nil {
		writeError(w, http.StatusUnauthorized, ErrInvalidCredentials.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"detail": "revoked"})
}

func (h *Handler) recover(w http.ResponseWriter, r *http.Request) {
	email := r.PathValue("email")
	if email == "" {
		writeError(w, http.StatusBadRequest, "missing email")
		return
	}

	claim, err := h.gate.RecoverPassword(r.Context(), email)
	if err != nil {
		h.logger.Error("password recovery", "error", err)
	}
	// Same shape whether or not the account exists
	writeJSON(w, http.StatusOK, map[string]string{"claim": claim})
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	claimToken := bearerToken(r)
	var body struct {
		Claim    string `json:"claim"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	if err := h.gate.ResetPassword(r.Context(), claimToken, body.Claim, body.Password); err != nil {
		writeError(w, http.StatusUnauthorized, ErrInvalidCredentials.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"detail": "password updated"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
