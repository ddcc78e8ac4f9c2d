// ABOUTME: User key management on the meta table
// ABOUTME: Creates users with unique short keys, rotates keys and resolves uid/key lookups

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ShortKeyLen is the length of the key handed to game clients.
const ShortKeyLen = 16

// newKeyPair returns a 32-hex full key and its 16-hex prefix.
func newKeyPair() (full, short string) {
	full = strings.ReplaceAll(uuid.NewString(), "-", "")
	return full, full[:ShortKeyLen]
}

// LookupUIDByKey returns the uid owning key, or "" when key is empty or unknown.
func (s *SQLiteStore) LookupUIDByKey(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}
	var uid string
	err := s.db.QueryRowContext(ctx, `SELECT uid FROM meta WHERE key = ? LIMIT 1`, key).Scan(&uid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("looking up uid by key: %w", err)
	}
	return uid, nil
}

// LookupKeyByUID returns the short key of uid, or "" when uid is empty or unknown.
func (s *SQLiteStore) LookupKeyByUID(ctx context.Context, uid string) (string, error) {
	if uid == "" {
		return "", nil
	}
	var key sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT key FROM meta WHERE uid = ? LIMIT 1`, uid).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("looking up key by uid: %w", err)
	}
	return key.String, nil
}

// GetUser returns the meta row of uid.
func (s *SQLiteStore) GetUser(ctx context.Context, uid string) (*UserRecord, error) {
	var (
		u        UserRecord
		key      sql.NullString
		keyFull  sql.NullString
		register sql.NullBool
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT uid, key, keyfull, registered FROM meta WHERE uid = ?`, uid,
	).Scan(&u.UID, &key, &keyFull, &register)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	u.Key = key.String
	u.KeyFull = keyFull.String
	u.Registered = register.Bool
	return &u, nil
}

// ListUsers returns every meta row ordered by creation.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*UserRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT uid, key, keyfull, registered FROM meta ORDER BY iid`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []*UserRecord
	for rows.Next() {
		var (
			u        UserRecord
			key      sql.NullString
			keyFull  sql.NullString
			register sql.NullBool
		)
		if err := rows.Scan(&u.UID, &key, &keyFull, &register); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		u.Key = key.String
		u.KeyFull = keyFull.String
		u.Registered = register.Bool
		users = append(users, &u)
	}
	return users, rows.Err()
}

// CountUsers returns the number of meta rows.
func (s *SQLiteStore) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM meta`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

// CreateUser allocates a key for uid. If uid already has a key and
// forceNewKey is false, the existing key is returned with created=false.
func (s *SQLiteStore) CreateUser(ctx context.Context, uid string, forceNewKey bool) (string, bool, error) {
	if uid == "" {
		return "", false, fmt.Errorf("creating user: empty uid")
	}

	s.keyMu.Lock()
	defer s.keyMu.Unlock()

	existing, err := s.LookupKeyByUID(ctx, uid)
	if err != nil {
		return "", false, err
	}
	if existing != "" && !forceNewKey {
		return existing, false, nil
	}

	full, key, err := s.uniqueKeyPair(ctx)
	if err != nil {
		return "", false, err
	}

	if s.init != nil {
		if err := s.init(ctx, uid); err != nil {
			return "", false, fmt.Errorf("initializing user %s: %w", uid, err)
		}
	}

	_, err = s.db.ExecContext(ctx,
		`REPLACE INTO meta (uid, key, keyfull, registered) VALUES (?, ?, ?, 1)`,
		uid, key, full,
	)
	if err != nil {
		return "", false, fmt.Errorf("inserting user: %w", err)
	}

	s.logger.Debug("created user", "uid", uid, "forced", forceNewKey)
	return key, true, nil
}

// RotateKey replaces the key pair of an existing uid.
func (s *SQLiteStore) RotateKey(ctx context.Context, uid string) (string, error) {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()

	full, key, err := s.uniqueKeyPair(ctx)
	if err != nil {
		return "", err
	}

	res, err := s.db.ExecContext(ctx, `UPDATE meta SET keyfull = ?, key = ? WHERE uid = ?`, full, key, uid)
	if err != nil {
		return "", fmt.Errorf("rotating key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("rotating key: %w", err)
	}
	if n == 0 {
		return "", ErrNotFound
	}

	s.logger.Debug("rotated key", "uid", uid)
	return key, nil
}

// SetRegistered flips the registered flag of uid.
func (s *SQLiteStore) SetRegistered(ctx context.Context, uid string, registered bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE meta SET registered = ? WHERE uid = ?`, registered, uid)
	if err != nil {
		return fmt.Errorf("updating registered flag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating registered flag: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// uniqueKeyPair draws key pairs until the short key is unused. Callers hold keyMu.
func (s *SQLiteStore) uniqueKeyPair(ctx context.Context) (string, string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", "", err
		}
		full, key := newKeyPair()
		owner, err := s.LookupUIDByKey(ctx, key)
		if err != nil {
			return "", "", err
		}
		if owner == "" {
			return full, key, nil
		}
		s.logger.Debug("short key collision, retrying")
	}
}
