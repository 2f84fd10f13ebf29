// ABOUTME: Documentation for the server package
// ABOUTME: Component wiring and HTTP lifecycle

// Package server assembles the store, password hasher, token issuer, TOTP
// engine, key resolver, and signature verifier into one HTTP server with a
// graceful shutdown path.
package server
