// ABOUTME: The server's own HTTP handlers: the federated inbox and identity echo
// ABOUTME: Both run behind middleware that already authenticated the caller

package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/fastfedi/fedigate/internal/auth"
	"github.com/fastfedi/fedigate/internal/httpsig"
)

// handleInbox accepts a signed federated delivery. The signature middleware
// already verified the sender and capped the body.
func handleInbox(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		// MaxBytesReader reports bodies that exceed the cap mid-read
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": httpsig.ErrPayloadTooLarge.Error()})
		return
	}

	var activity map[string]any
	if err := json.Unmarshal(body, &activity); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid activity"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"actor": httpsig.RemoteActor(r.Context()),
	})
}

// handleMe echoes the authenticated principal back to the client.
func handleMe(w http.ResponseWriter, r *http.Request) {
	ac := auth.MustFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"principal_id": ac.PrincipalID,
		"scopes":       ac.Scopes,
		"is_admin":     ac.IsAdmin,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
