// ABOUTME: Documentation for the totp package
// ABOUTME: Time-based one-time passwords with replay-proof counters

// Package totp implements RFC 6238 time-based one-time passwords over RFC
// 4226 HOTP. Verification is anchored to a persisted counter: a matched code
// yields the counter the caller must store, and candidates at or below the
// stored counter are never accepted, so a code cannot be replayed even inside
// its validity window.
package totp
