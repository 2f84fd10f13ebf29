// ABOUTME: Fetches and caches the public keys of remote federated actors
// ABOUTME: Concurrent resolves of one key coalesce into a single network fetch

package fedkey

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrKeyNotFound means the remote end did not serve a key document.
	ErrKeyNotFound = errors.New("actor key not found")

	// ErrKeyInvalid means a document was served but no usable RSA key came out of it.
	ErrKeyInvalid = errors.New("actor key invalid")
)

// maxKeyDocumentSize caps the key document read. Remote servers are untrusted.
const maxKeyDocumentSize = 64 * 1024

// ActorKey is a remote actor's public key as served by its key document.
type ActorKey struct {
	ID        string
	Owner     string
	PublicKey *rsa.PublicKey
}

// keyDocument is the JSON shape of a fetched actor or key document. Servers
// either inline the key fields at the top level or nest them under publicKey.
type keyDocument struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	PublicKeyPem string `json:"publicKeyPem"`
	PublicKey    *struct {
		ID           string `json:"id"`
		Owner        string `json:"owner"`
		PublicKeyPem string `json:"publicKeyPem"`
	} `json:"publicKey"`
}

// Resolver fetches remote actor keys over HTTPS and caches them. In-flight
// fetches for the same key ID are shared across callers.
type Resolver struct {
	client *http.Client
	cache  *keyCache
	group  singleflight.Group
	logger *slog.Logger
}

// NewResolver creates a key resolver. fetchTimeout bounds each network fetch;
// cacheTTL and cacheSize bound the cache.
func NewResolver(fetchTimeout, cacheTTL time.Duration, cacheSize int) *Resolver {
	return &Resolver{
		client: &http.Client{Timeout: fetchTimeout},
		cache:  newKeyCache(cacheTTL, cacheSize),
		logger: slog.Default().With("component", "fedkey"),
	}
}

// Resolve returns the public key named by keyID, from cache when fresh. A cold
// resolve fetches the key document; concurrent cold resolves of the same keyID
// wait on one shared fetch.
func (r *Resolver) Resolve(ctx context.Context, keyID string) (*ActorKey, error) {
	if key, ok := r.cache.get(keyID); ok {
		return key, nil
	}

	v, err, _ := r.group.Do(keyID, func() (interface{}, error) {
		// A racing resolve may have filled the cache while we waited our turn
		if key, ok := r.cache.get(keyID); ok {
			return key, nil
		}

		key, err := r.fetch(ctx, keyID)
		if err != nil {
			return nil, err
		}
		r.cache.put(keyID, key)
		return key, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ActorKey), nil
}

// Invalidate drops a cached key so the next resolve refetches. Used when a
// verification fails against a cached key that may have rotated.
func (r *Resolver) Invalidate(keyID string) {
	r.cache.mu.Lock()
	defer r.cache.mu.Unlock()
	if entry, ok := r.cache.entries[keyID]; ok {
		r.cache.order.Remove(entry.element)
		delete(r.cache.entries, keyID)
	}
}

// Close releases the cache's background goroutine.
func (r *Resolver) Close() {
	r.cache.close()
}

func (r *Resolver) fetch(ctx context.Context, keyID string) (*ActorKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, keyID, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, keyID)
	}
	req.Header.Set("Accept", "application/activity+json, application/ld+json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("key fetch failed", "key_id", keyID, "error", err)
		return nil, ErrKeyNotFound
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.logger.Warn("key fetch rejected", "key_id", keyID, "status", resp.StatusCode)
		return nil, ErrKeyNotFound
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKeyDocumentSize))
	if err != nil {
		return nil, ErrKeyNotFound
	}

	var doc keyDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, ErrKeyInvalid
	}

	id, owner, pemText := doc.ID, doc.Owner, doc.PublicKeyPem
	if pemText == "" && doc.PublicKey != nil {
		id, owner, pemText = doc.PublicKey.ID, doc.PublicKey.Owner, doc.PublicKey.PublicKeyPem
	}
	if pemText == "" {
		return nil, ErrKeyInvalid
	}
	if id == "" {
		id = keyID
	}

	pub, err := parseRSAPublicKey(pemText)
	if err != nil {
		r.logger.Warn("unusable public key", "key_id", keyID, "error", err)
		return nil, ErrKeyInvalid
	}

	return &ActorKey{ID: id, Owner: owner, PublicKey: pub}, nil
}

// parseRSAPublicKey accepts both PKIX "PUBLIC KEY" and PKCS#1 "RSA PUBLIC KEY" blocks.
func parseRSAPublicKey(pemText string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, errors.New("no PEM block")
	}

	if pub, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("not an RSA key")
		}
		return rsaPub, nil
	}

	return x509.ParsePKCS1PublicKey(block.Bytes)
}
