// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides principal persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	// Concurrent writers wait instead of failing with SQLITE_BUSY
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS principals (
			id              TEXT PRIMARY KEY,
			email           TEXT NOT NULL UNIQUE,
			password_hash   TEXT,
			totp_secret     TEXT,
			totp_counter    INTEGER,
			email_validated INTEGER NOT NULL DEFAULT 0,
			is_active       INTEGER NOT NULL DEFAULT 1,
			is_disabled     INTEGER NOT NULL DEFAULT 0,
			is_approved     INTEGER NOT NULL DEFAULT 1,
			is_admin        INTEGER NOT NULL DEFAULT 0,
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_principals_email ON principals(email);

		CREATE TABLE IF NOT EXISTS refresh_tokens (
			token        TEXT PRIMARY KEY,
			principal_id TEXT NOT NULL,
			scopes       TEXT NOT NULL DEFAULT '',
			created_at   TEXT NOT NULL,

			FOREIGN KEY (principal_id) REFERENCES principals(id)
		);

		CREATE INDEX IF NOT EXISTS idx_refresh_tokens_principal ON refresh_tokens(principal_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}

	return nil
}

// NormalizeEmail lowercases and trims an email address. Every read and write
// that touches the email column goes through this.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreatePrincipal inserts a new principal row
func (s *SQLiteStore) CreatePrincipal(ctx context.Context, p *Principal) error {
	now := time.Now().UTC()
	p.Email = NormalizeEmail(p.Email)
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO principals (id, email, password_hash, totp_secret, totp_counter,
			email_validated, is_active, is_disabled, is_approved, is_admin, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Email, nullString(p.PasswordHash), nullString(p.TOTPSecret), p.TOTPCounter,
		p.EmailValidated, p.IsActive, p.IsDisabled, p.IsApproved, p.IsAdmin,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("inserting principal: %w", err)
	}

	s.logger.Info("principal created", "id", p.ID)
	return nil
}

const principalColumns = `id, email, password_hash, totp_secret, totp_counter,
	email_validated, is_active, is_disabled, is_approved, is_admin, created_at, updated_at`

// GetPrincipal retrieves a principal by ID
func (s *SQLiteStore) GetPrincipal(ctx context.Context, id string) (*Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE id = ?`, id)
	return scanPrincipal(row)
}

// GetPrincipalByEmail retrieves a principal by case-normalized email
func (s *SQLiteStore) GetPrincipalByEmail(ctx context.Context, email string) (*Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE email = ?`, NormalizeEmail(email))
	return scanPrincipal(row)
}

// rowScanner abstracts sql.Row and sql.Rows for scanPrincipal
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(row rowScanner) (*Principal, error) {
	var p Principal
	var passwordHash, totpSecret sql.NullString
	var totpCounter sql.NullInt64
	var createdAt, updatedAt string

	err := row.Scan(&p.ID, &p.Email, &passwordHash, &totpSecret, &totpCounter,
		&p.EmailValidated, &p.IsActive, &p.IsDisabled, &p.IsApproved, &p.IsAdmin,
		&createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning principal: %w", err)
	}

	p.PasswordHash = passwordHash.String
	p.TOTPSecret = totpSecret.String
	if totpCounter.Valid {
		c := totpCounter.Int64
		p.TOTPCounter = &c
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	return &p, nil
}

// UpdatePassword replaces the principal's password hash
func (s *SQLiteStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return s.updatePrincipal(ctx, id,
		`UPDATE principals SET password_hash = ?, updated_at = ? WHERE id = ?`,
		nullString(passwordHash), now(), id)
}

// SetEmailValidated marks the principal's email as validated
func (s *SQLiteStore) SetEmailValidated(ctx context.Context, id string) error {
	return s.updatePrincipal(ctx, id,
		`UPDATE principals SET email_validated = 1, updated_at = ? WHERE id = ?`,
		now(), id)
}

// SetPrincipalFlags updates the account state flags
func (s *SQLiteStore) SetPrincipalFlags(ctx context.Context, id string, active, disabled, approved, admin bool) error {
	return s.updatePrincipal(ctx, id,
		`UPDATE principals SET is_active = ?, is_disabled = ?, is_approved = ?, is_admin = ?, updated_at = ?
		 WHERE id = ?`,
		active, disabled, approved, admin, now(), id)
}

// EnableTOTP stores the enrolled secret and resets the counter
func (s *SQLiteStore) EnableTOTP(ctx context.Context, id, secret string) error {
	return s.updatePrincipal(ctx, id,
		`UPDATE principals SET totp_secret = ?, totp_counter = NULL, updated_at = ? WHERE id = ?`,
		secret, now(), id)
}

// DisableTOTP clears the secret and counter
func (s *SQLiteStore) DisableTOTP(ctx context.Context, id string) error {
	return s.updatePrincipal(ctx, id,
		`UPDATE principals SET totp_secret = NULL, totp_counter = NULL, updated_at = ? WHERE id = ?`,
		now(), id)
}

// AdvanceTOTPCounter persists a consumed TOTP counter. The guard in the WHERE
// clause makes this the serialization point for replay prevention: under
// concurrent verifications of the same code only one UPDATE can match, the
// rest return ErrCounterReplayed.
func (s *SQLiteStore) AdvanceTOTPCounter(ctx context.Context, id string, newCounter int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE principals SET totp_counter = ?, updated_at = ?
		 WHERE id = ? AND (totp_counter IS NULL OR totp_counter < ?)`,
		newCounter, now(), id, newCounter)
	if err != nil {
		return fmt.Errorf("advancing totp counter: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("advancing totp counter: %w", err)
	}
	if n == 0 {
		// Either the principal is missing or the counter did not advance.
		if _, err := s.GetPrincipal(ctx, id); err != nil {
			return err
		}
		return ErrCounterReplayed
	}

	return nil
}

// ListPrincipals returns all principals ordered by creation time
func (s *SQLiteStore) ListPrincipals(ctx context.Context) ([]*Principal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+principalColumns+` FROM principals ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing principals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var principals []*Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		principals = append(principals, p)
	}
	return principals, rows.Err()
}

// CountPrincipals returns the number of principal rows
func (s *SQLiteStore) CountPrincipals(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM principals`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting principals: %w", err)
	}
	return count, nil
}

// updatePrincipal runs an UPDATE that must touch exactly one principal row
func (s *SQLiteStore) updatePrincipal(ctx context.Context, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating principal %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating principal %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// isUniqueConstraintError checks if an error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	// SQLite returns "UNIQUE constraint failed" in the error message
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") || strings.Contains(err.Error(), "unique constraint"))
}
