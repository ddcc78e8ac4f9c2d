// ABOUTME: Persistence for web login credentials in the web_users table
// ABOUTME: Rows live in the same database file so a user wipe removes them too

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreateCredential inserts a new credential row. An existing uid yields ErrAlreadyExists.
func (s *SQLiteStore) CreateCredential(ctx context.Context, c *Credential) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO web_users (uid, password_hash, salt, email) VALUES (?, ?, ?, ?)`,
		c.UID, c.PasswordHash, c.Salt, nullString(c.Email),
	)
	if isConstraintViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("inserting credential: %w", err)
	}

	s.logger.Debug("created credential", "uid", c.UID)
	return nil
}

// GetCredential returns the credential of uid or ErrNotFound.
func (s *SQLiteStore) GetCredential(ctx context.Context, uid string) (*Credential, error) {
	var (
		c     Credential
		email sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT uid, password_hash, salt, email FROM web_users WHERE uid = ?`, uid,
	).Scan(&c.UID, &c.PasswordHash, &c.Salt, &email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying credential: %w", err)
	}
	if email.Valid {
		c.Email = &email.String
	}
	return &c, nil
}

// UpdateCredential overwrites the hash and salt of uid.
func (s *SQLiteStore) UpdateCredential(ctx context.Context, uid, passwordHash, salt string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE web_users SET password_hash = ?, salt = ? WHERE uid = ?`, passwordHash, salt, uid,
	)
	if err != nil {
		return fmt.Errorf("updating credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating credential: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated credential", "uid", uid)
	return nil
}

// DeleteCredential removes the credential of uid. Missing rows are not an error.
func (s *SQLiteStore) DeleteCredential(ctx context.Context, uid string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM web_users WHERE uid = ?`, uid); err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}
	return nil
}
