// ABOUTME: Removal of every row belonging to a uid across all tables
// ABOUTME: Also purges stale unregistered uids that own no other data

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// uidTablesQuery lists every real table that has a uid column.
const uidTablesQuery = `
	SELECT m.name FROM sqlite_master AS m
	JOIN pragma_table_info(m.name) AS p
	WHERE m.type = 'table' AND p.name = 'uid'
	ORDER BY m.name`

// uidTables returns the names of every table with a uid column.
func uidTables(ctx context.Context, q interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}) ([]string, error) {
	rows, err := q.QueryContext(ctx, uidTablesQuery)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// Wipe deletes every row keyed by uid in one transaction. A table whose
// delete fails is logged and skipped; only transaction faults are returned.
func (s *SQLiteStore) Wipe(ctx context.Context, uid string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning wipe: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	tables, err := uidTables(ctx, tx)
	if err != nil {
		return err
	}

	var removed int64
	for _, table := range tables {
		res, err := tx.ExecContext(ctx, "DELETE FROM "+quoteIdent(table)+" WHERE uid = ?", uid)
		if err != nil {
			s.logger.Warn("skipping table during wipe", "uid", uid, "table", table, "error", err)
			continue
		}
		if n, err := res.RowsAffected(); err == nil {
			removed += n
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing wipe: %w", err)
	}

	s.logger.Info("wiped user data", "uid", uid, "rows", removed)
	return nil
}

// CheckCleanup wipes uid when its meta row is unregistered and no other
// table holds data for it. It reports whether a wipe happened.
func (s *SQLiteStore) CheckCleanup(ctx context.Context, uid string) (bool, error) {
	var registered sql.NullBool
	err := s.db.QueryRowContext(ctx, `SELECT registered FROM meta WHERE uid = ? LIMIT 1`, uid).Scan(&registered)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading registered flag: %w", err)
	}
	if registered.Bool {
		return false, nil
	}

	tables, err := uidTables(ctx, s.db)
	if err != nil {
		return false, err
	}
	for _, table := range tables {
		if table == "meta" {
			continue
		}
		var one int
		err := s.db.QueryRowContext(ctx, "SELECT 1 FROM "+quoteIdent(table)+" WHERE uid = ? LIMIT 1", uid).Scan(&one)
		if err == nil {
			return false, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("probing %s: %w", table, err)
		}
	}

	if err := s.Wipe(ctx, uid); err != nil {
		return false, err
	}
	return true, nil
}
