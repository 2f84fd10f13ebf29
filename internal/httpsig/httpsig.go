// ABOUTME: HTTP signature verification for inbound federated requests (cavage draft)
// ABOUTME: Reconstructs the signing string in declared header order and checks RSA-SHA256

package httpsig

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fastfedi/fedigate/internal/fedkey"
)

var (
	// ErrSignatureInvalid covers every verification failure: missing header,
	// malformed parameters, unknown algorithm, and a signature that does not
	// check out. Callers get no finer detail.
	ErrSignatureInvalid = errors.New("signature invalid")

	// ErrPayloadTooLarge means the request body exceeded the configured cap.
	// The body is rejected before any key fetch or crypto runs.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// requestTarget is the pseudo-header covering the method and path.
const requestTarget = "(request-target)"

// signatureParams are the parsed fields of a Signature header.
type signatureParams struct {
	keyID     string
	algorithm string
	headers   []string
	signature []byte
}

// KeyResolver yields the public key named by a key ID.
type KeyResolver interface {
	Resolve(ctx context.Context, keyID string) (*fedkey.ActorKey, error)
}

// Verifier checks HTTP signatures on inbound requests. externalHost, when
// set, is the public hostname remote servers signed against; it overrides
// whatever host the request reached the backend with.
type Verifier struct {
	resolver     KeyResolver
	externalHost string
	logger       *slog.Logger
}

// NewVerifier creates a signature verifier backed by resolver.
func NewVerifier(resolver KeyResolver, externalHost string) *Verifier {
	return &Verifier{
		resolver:     resolver,
		externalHost: externalHost,
		logger:       slog.Default().With("component", "httpsig"),
	}
}

// Verify checks the request's Signature header and returns the key owner's
// actor URL on success. The request body is not read.
func (v *Verifier) Verify(ctx context.Context, r *http.Request) (string, error) {
	params, err := parseSignatureHeader(r.Header.Get("Signature"))
	if err != nil {
		return "", ErrSignatureInvalid
	}

	signingString, err := buildSigningString(r, params.headers, v.externalHost)
	if err != nil {
		return "", ErrSignatureInvalid
	}

	key, err := v.resolver.Resolve(ctx, params.keyID)
	if err != nil {
		v.logger.Warn("key resolution failed", "key_id", params.keyID, "error", err)
		return "", ErrSignatureInvalid
	}

	digest := sha256.Sum256([]byte(signingString))
	if err := rsa.VerifyPKCS1v15(key.PublicKey, crypto.SHA256, digest[:], params.signature); err != nil {
		return "", ErrSignatureInvalid
	}

	owner := key.Owner
	if owner == "" {
		owner = key.ID
	}
	return owner, nil
}

// parseSignatureHeader parses the comma-separated key="value" parameter list.
func parseSignatureHeader(header string) (*signatureParams, error) {
	if header == "" {
		return nil, errors.New("missing signature header")
	}

	params := &signatureParams{}
	for _, part := range splitParams(header) {
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("malformed parameter %q", part)
		}
		value = strings.Trim(value, `"`)

		switch strings.ToLower(strings.TrimSpace(name)) {
		case "keyid":
			params.keyID = value
		case "algorithm":
			params.algorithm = value
		case "headers":
			for _, h := range strings.Fields(value) {
				params.headers = append(params.headers, strings.ToLower(h))
			}
		case "signature":
			sig, err := base64.StdEncoding.DecodeString(value)
			if err != nil {
				return nil, fmt.Errorf("decoding signature: %w", err)
			}
			params.signature = sig
		}
	}

	if params.keyID == "" || len(params.signature) == 0 {
		return nil, errors.New("incomplete signature header")
	}

	switch params.algorithm {
	case "", "rsa-sha256", "hs2019":
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", params.algorithm)
	}

	// Per the draft, an absent headers list means the Date header alone
	if len(params.headers) == 0 {
		params.headers = []string{"date"}
	}

	return params, nil
}

// splitParams splits the header on commas outside quoted values.
func splitParams(header string) []string {
	var parts []string
	var b strings.Builder
	inQuotes := false
	for _, r := range header {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			b.WriteRune(r)
		case r == ',' && !inQuotes:
			parts = append(parts, strings.TrimSpace(b.String()))
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() > 0 {
		parts = append(parts, strings.TrimSpace(b.String()))
	}
	return parts
}

// buildSigningString reconstructs the string the sender signed, one
// "name: value" line per declared header, in the declared order.
func buildSigningString(r *http.Request, headers []string, externalHost string) (string, error) {
	lines := make([]string, 0, len(headers))
	for _, name := range headers {
		switch name {
		case requestTarget:
			target := r.URL.Path
			if target == "" {
				target = "/"
			}
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}
			lines = append(lines, fmt.Sprintf("%s: %s %s", requestTarget, strings.ToLower(r.Method), target))
		case "host":
			// Behind a reverse proxy the sender signed the public host
			value := externalHost
			if value == "" {
				value = r.Header.Get("X-Forwarded-Host")
			}
			if value == "" {
				value = r.Host
			}
			lines = append(lines, "host: "+value)
		default:
			value := r.Header.Get(name)
			if value == "" {
				return "", fmt.Errorf("declared header %q absent", name)
			}
			lines = append(lines, name+": "+value)
		}
	}
	return strings.Join(lines, "\n"), nil
}
