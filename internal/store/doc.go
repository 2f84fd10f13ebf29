// Package store provides persistence for fedigate principals and refresh tokens.
//
// # Overview
//
// The Store interface is the sole data access boundary for the credential core.
// It holds no policy: callers decide what a missing row or a replayed counter
// means for authentication.
//
// # SQLite Implementation
//
// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no cgo).
// The schema is created automatically on first open, WAL mode is enabled for
// concurrent readers, and foreign keys are enforced.
//
// # Replay Protection
//
// AdvanceTOTPCounter is the serialization point for TOTP replay prevention.
// It issues a single guarded UPDATE (counter must strictly increase); under
// concurrent verifications of the same code exactly one caller wins and the
// rest receive ErrCounterReplayed. Callers must not implement this as a
// read-compare-write sequence.
//
// # Email Normalization
//
// Emails are unique and case-normalized. NormalizeEmail is applied on every
// read and write touching the email column.
package store
