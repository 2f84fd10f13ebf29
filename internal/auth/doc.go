// ABOUTME: Documentation for the auth package
// ABOUTME: Login state machine, scope checks, and bearer-token middleware

// Package auth implements the multi-step login state machine and the HTTP
// surface around it.
//
// A login begins with either a password or a magic-link request. Principals
// with an enrolled TOTP secret receive a pending access token that authorizes
// nothing until the code verification step completes. Completed logins receive
// an access token plus a single-use refresh token; refreshing rotates the pair
// and can never widen scopes.
//
// Every authentication failure surfaces as the same generic error so that
// responses do not reveal whether an account exists, is disabled, or simply
// got the password wrong.
package auth
