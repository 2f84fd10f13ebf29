// ABOUTME: Documentation for the token package
// ABOUTME: JWT issuance and validation for every token kind

// Package token mints and validates the three token kinds: access, refresh,
// and the two-half magic pair. Every token carries an explicit kind claim, so
// a token of one kind can never be validated as another. Signing is HS512
// with a single process-lifetime secret.
package token
