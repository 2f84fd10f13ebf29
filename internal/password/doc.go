// ABOUTME: Documentation for the password package
// ABOUTME: Argon2id hashing with constant-time verification

// Package password hashes and verifies passwords with Argon2id, using the PHC
// string format for storage. Verification never short-circuits, and a dummy
// verification is available so failed lookups cost the same as real ones.
package password
