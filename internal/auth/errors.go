// ABOUTME: Sentinel errors for the authentication gate and scope authorizer
// ABOUTME: External surfaces only ever see these generic messages

package auth

import "errors"

// ErrInvalidCredentials covers every authentication failure: unknown email,
// wrong password, disabled account, failed TOTP, bad magic claim. One message
// for all of them, so the failure mode is not observable externally.
var ErrInvalidCredentials = errors.New("login failed; invalid credentials")

// ErrInsufficientScope is returned when a valid token lacks a required scope.
// Which scope was missing is not reported.
var ErrInsufficientScope = errors.New("not enough permissions")

// ErrActivationPending is returned when a magic link is requested for an
// account that cannot log in yet. The HTTP layer maps it to the same message
// the success path uses, so account existence is not confirmed.
var ErrActivationPending = errors.New("a link to activate your account has been emailed")
