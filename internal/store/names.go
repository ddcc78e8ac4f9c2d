// ABOUTME: Logical to physical table name resolution for typed records and file blobs
// ABOUTME: Registers names in the data/file catalogs and exposes per-name compatibility views

package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// illegalChars are removed from physical table names.
const illegalChars = "`´'\"^[]\\/"

// sanitizeName strips illegal characters. When anything was stripped a short
// digest of the original is appended, so "a'b" and "ab" stay distinct.
func sanitizeName(name string) string {
	clean := strings.Map(func(r rune) rune {
		if strings.ContainsRune(illegalChars, r) {
			return -1
		}
		return r
	}, name)
	if clean == name {
		return clean
	}
	sum := sha256.Sum256([]byte(name))
	return clean + "~" + hex.EncodeToString(sum[:4])
}

// realName is the namespaced logical name stored in the data catalog.
func (s *SQLiteStore) realName(logicalName string) string {
	return s.real + "." + s.module + "." + logicalName
}

// DataTableName returns the physical name for a typed record name without registering it.
func (s *SQLiteStore) DataTableName(logicalName string) string {
	return sanitizeName("data." + s.realName(logicalName))
}

// FileTableName returns the physical name for a file name without registering it.
func FileTableName(name string) string {
	return sanitizeName("file." + name)
}

// typeDescriptor mirrors the assembly-qualified type string the game server expects.
func (s *SQLiteStore) typeDescriptor(logicalName string) string {
	return fmt.Sprintf("%s, %s, Version=%s, Culture=neutral, PublicKeyToken=null",
		s.realName(logicalName), s.module, s.version)
}

// tableRef locates the rows of one logical name. When legacy is set the name
// is bound to a per-name table that already existed in the database file
// (written by the game server or an older tool) and rows live there.
// Otherwise rows live in the shared tables under catalog id id.
type tableRef struct {
	id     int64
	legacy string
}

// EnsureDataTable registers logicalName in the data catalog and returns its
// physical name. Repeated calls return the same name.
func (s *SQLiteStore) EnsureDataTable(ctx context.Context, logicalName string) (string, error) {
	_, name, err := s.ensureDataTable(ctx, logicalName)
	return name, err
}

func (s *SQLiteStore) ensureDataTable(ctx context.Context, logicalName string) (tableRef, string, error) {
	name := s.DataTableName(logicalName)

	s.tablesMu.RLock()
	ref, ok := s.dataTables[logicalName]
	s.tablesMu.RUnlock()
	if ok {
		return ref, name, nil
	}

	real := s.realName(logicalName)
	ref, err := s.registerTable(ctx, registration{
		insert: `INSERT OR IGNORE INTO data (name, real, type) VALUES (?, ?, ?)`,
		args:   []any{name, real, s.typeDescriptor(logicalName)},
		lookup: `SELECT iid FROM data WHERE real = ?`,
		real:   real,
		name:   name,
		view: func(id int64) []string {
			return []string{
				fmt.Sprintf(`CREATE VIEW IF NOT EXISTS %s AS
					SELECT iid, uid, format, value FROM data_records WHERE table_id = %d`, quoteIdent(name), id),
				fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %s INSTEAD OF INSERT ON %s BEGIN
					INSERT OR REPLACE INTO data_records (table_id, uid, format, value)
					VALUES (%d, NEW.uid, NEW.format, NEW.value);
				END`, quoteIdent(name+".insert"), quoteIdent(name), id),
				fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %s INSTEAD OF DELETE ON %s BEGIN
					DELETE FROM data_records WHERE table_id = %d AND uid = OLD.uid;
				END`, quoteIdent(name+".delete"), quoteIdent(name), id),
			}
		},
	})
	if err != nil {
		return tableRef{}, "", fmt.Errorf("registering data table %q: %w", logicalName, err)
	}

	s.tablesMu.Lock()
	s.dataTables[logicalName] = ref
	s.tablesMu.Unlock()

	s.logger.Debug("data table ready", "logical", logicalName, "table", name, "id", ref.id, "legacy", ref.legacy != "")
	return ref, name, nil
}

// EnsureFileTable registers a file name in the file catalog and returns its physical name.
func (s *SQLiteStore) EnsureFileTable(ctx context.Context, fileName string) (string, error) {
	_, name, err := s.ensureFileTable(ctx, fileName)
	return name, err
}

func (s *SQLiteStore) ensureFileTable(ctx context.Context, fileName string) (tableRef, string, error) {
	name := FileTableName(fileName)

	s.tablesMu.RLock()
	ref, ok := s.fileTables[fileName]
	s.tablesMu.RUnlock()
	if ok {
		return ref, name, nil
	}

	ref, err := s.registerTable(ctx, registration{
		insert: `INSERT OR IGNORE INTO file (name, real) VALUES (?, ?)`,
		args:   []any{name, fileName},
		lookup: `SELECT iid FROM file WHERE real = ?`,
		real:   fileName,
		name:   name,
		view: func(id int64) []string {
			return []string{
				fmt.Sprintf(`CREATE VIEW IF NOT EXISTS %s AS
					SELECT iid, uid, value FROM file_records WHERE table_id = %d`, quoteIdent(name), id),
			}
		},
	})
	if err != nil {
		return tableRef{}, "", fmt.Errorf("registering file table %q: %w", fileName, err)
	}

	s.tablesMu.Lock()
	s.fileTables[fileName] = ref
	s.tablesMu.Unlock()

	s.logger.Debug("file table ready", "logical", fileName, "table", name, "id", ref.id, "legacy", ref.legacy != "")
	return ref, name, nil
}

// lookupDataTable locates a logical name without creating it. ok is false
// when the name was never registered and no per-name table exists.
func (s *SQLiteStore) lookupDataTable(ctx context.Context, logicalName string) (tableRef, bool, error) {
	s.tablesMu.RLock()
	ref, ok := s.dataTables[logicalName]
	s.tablesMu.RUnlock()
	if ok {
		return ref, true, nil
	}
	ref, ok, err := s.lookupTable(ctx, s.DataTableName(logicalName),
		`SELECT iid FROM data WHERE real = ?`, s.realName(logicalName))
	if err != nil {
		return tableRef{}, false, fmt.Errorf("looking up data table %q: %w", logicalName, err)
	}
	return ref, ok, nil
}

func (s *SQLiteStore) lookupFileTable(ctx context.Context, fileName string) (tableRef, bool, error) {
	s.tablesMu.RLock()
	ref, ok := s.fileTables[fileName]
	s.tablesMu.RUnlock()
	if ok {
		return ref, true, nil
	}
	ref, ok, err := s.lookupTable(ctx, FileTableName(fileName), `SELECT iid FROM file WHERE real = ?`, fileName)
	if err != nil {
		return tableRef{}, false, fmt.Errorf("looking up file table %q: %w", fileName, err)
	}
	return ref, ok, nil
}

func (s *SQLiteStore) lookupTable(ctx context.Context, name, lookup, real string) (tableRef, bool, error) {
	kind, err := schemaKind(ctx, s.db, name)
	if err != nil {
		return tableRef{}, false, err
	}
	if kind == "table" {
		return tableRef{legacy: name}, true, nil
	}

	var id int64
	err = s.db.QueryRowContext(ctx, lookup, real).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return tableRef{}, false, nil
	}
	if err != nil {
		return tableRef{}, false, err
	}
	return tableRef{id: id}, true, nil
}

// schemaKind returns the sqlite_master type of name ("table", "view") or "" when absent.
func schemaKind(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, name string) (string, error) {
	var kind string
	err := q.QueryRowContext(ctx, `SELECT type FROM sqlite_master WHERE name = ?`, name).Scan(&kind)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("inspecting schema: %w", err)
	}
	return kind, nil
}

type registration struct {
	insert string
	args   []any
	lookup string
	real   string
	name   string
	view   func(id int64) []string
}

// registerTable inserts the catalog row and its views in one transaction.
// If the physical name is already owned by a different logical name the
// insert is ignored and the lookup misses, which reports ErrNameCollision.
// A real table already carrying the physical name is adopted as is.
func (s *SQLiteStore) registerTable(ctx context.Context, r registration) (tableRef, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return tableRef{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, r.insert, r.args...); err != nil {
		return tableRef{}, fmt.Errorf("inserting catalog row: %w", err)
	}

	var ref tableRef
	err = tx.QueryRowContext(ctx, r.lookup, r.real).Scan(&ref.id)
	if errors.Is(err, sql.ErrNoRows) {
		return tableRef{}, fmt.Errorf("%w: %s", ErrNameCollision, r.name)
	}
	if err != nil {
		return tableRef{}, fmt.Errorf("reading catalog row: %w", err)
	}

	kind, err := schemaKind(ctx, tx, r.name)
	if err != nil {
		return tableRef{}, err
	}
	switch kind {
	case "", "view":
		for _, stmt := range r.view(ref.id) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return tableRef{}, fmt.Errorf("creating compatibility view: %w", err)
			}
		}
	case "table":
		ref.legacy = r.name
		s.logger.Info("using existing per-name table", "table", r.name)
	default:
		return tableRef{}, fmt.Errorf("%w: %s is a %s", ErrNameCollision, r.name, kind)
	}

	if err := tx.Commit(); err != nil {
		return tableRef{}, fmt.Errorf("committing catalog row: %w", err)
	}
	return ref, nil
}
