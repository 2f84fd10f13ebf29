// ABOUTME: Development mailer that logs instead of sending
// ABOUTME: Tokens go to the debug log only, never to the info stream

package server

import (
	"context"
	"log/slog"
)

// logMailer stands in for outbound email. The emailed half of a token pair is
// logged at debug so a developer can complete the flow locally.
type logMailer struct {
	logger *slog.Logger
}

func (m *logMailer) SendMagicLink(_ context.Context, email, tokenString string) error {
	m.logger.Info("magic link requested", "email", email)
	m.logger.Debug("magic link token", "email", email, "token", tokenString)
	return nil
}

func (m *logMailer) SendPasswordReset(_ context.Context, email, tokenString string) error {
	m.logger.Info("password reset requested", "email", email)
	m.logger.Debug("password reset token", "email", email, "token", tokenString)
	return nil
}
