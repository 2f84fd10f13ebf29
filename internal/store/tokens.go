// ABOUTME: Refresh token persistence methods for SQLiteStore
// ABOUTME: One row per issued refresh token, deleted on revocation or rotation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SaveRefreshToken persists an issued refresh token
func (s *SQLiteStore) SaveRefreshToken(ctx context.Context, tok *RefreshToken) error {
	tok.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token, principal_id, scopes, created_at)
		VALUES (?, ?, ?, ?)`,
		tok.Token, tok.PrincipalID, tok.Scopes, tok.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("inserting refresh token: %w", err)
	}

	return nil
}

// GetRefreshToken retrieves a refresh token. The principal ID is part of the
// lookup so a token can never be honored for a different principal.
func (s *SQLiteStore) GetRefreshToken(ctx context.Context, token, principalID string) (*RefreshToken, error) {
	var tok RefreshToken
	var createdAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT token, principal_id, scopes, created_at FROM refresh_tokens
		WHERE token = ? AND principal_id = ?`, token, principalID).
		Scan(&tok.Token, &tok.PrincipalID, &tok.Scopes, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning refresh token: %w", err)
	}

	tok.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &tok, nil
}

// DeleteRefreshToken removes one refresh token row
func (s *SQLiteStore) DeleteRefreshToken(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("deleting refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting refresh token: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRefreshTokensForPrincipal removes every refresh token held by a principal
func (s *SQLiteStore) DeleteRefreshTokensForPrincipal(ctx context.Context, principalID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE principal_id = ?`, principalID)
	if err != nil {
		return fmt.Errorf("deleting refresh tokens for principal: %w", err)
	}
	return nil
}

// ListRefreshTokens returns all refresh tokens held by a principal
func (s *SQLiteStore) ListRefreshTokens(ctx context.Context, principalID string) ([]*RefreshToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token, principal_id, scopes, created_at FROM refresh_tokens
		WHERE principal_id = ? ORDER BY created_at`, principalID)
	if err != nil {
		return nil, fmt.Errorf("listing refresh tokens: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tokens []*RefreshToken
	for rows.Next() {
		var tok RefreshToken
		var createdAt string
		if err := rows.Scan(&tok.Token, &tok.PrincipalID, &tok.Scopes, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning refresh token: %w", err)
		}
		tok.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		tokens = append(tokens, &tok)
	}
	return tokens, rows.Err()
}
