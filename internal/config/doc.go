// Package config handles configuration loading for fedigate.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${FEDIGATE_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	auth:
//	  refresh_token_expiry: "720h"
//	  magic_token_expiry: "10m"
//
// access_token_expiry is special: "0" (or omitting it) issues non-expiring
// access tokens that are bounded only by their backing refresh token.
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Database:
//
//	database:
//	  path: "/var/lib/fedigate/fedigate.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${FEDIGATE_JWT_SECRET}"  # Required, min 32 bytes
//	  totp_issuer: "fedigate"               # Name shown in authenticator apps
//	  totp_skew: 1                          # Accepted time-step drift
//	  access_token_expiry: "0"
//	  refresh_token_expiry: "720h"
//	  magic_token_expiry: "10m"
//
// Federation:
//
//	federation:
//	  external_host: "example.org"   # Host the reverse proxy forwards for
//	  max_body_size: 51200           # Inbound activity size cap (bytes)
//	  key_fetch_timeout: "10s"
//	  key_cache_ttl: "1h"
//	  key_cache_size: 1024
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - JWT secret minimum length (32 bytes)
//   - Server address and database path presence
//   - Duration format validity
package config
