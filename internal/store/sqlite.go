// ABOUTME: SQLite implementation of the Store interface over one shared connection pool
// ABOUTME: Opens the database file, applies pragmas and creates the fixed schema on every open

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Driver names accepted by Open.
const (
	DriverCGo  = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPure = "sqlite"  // modernc.org/sqlite
)

// Default naming used by the CelesteNet server for its record tables.
const (
	DefaultReal    = "Celeste.Mod"
	DefaultModule  = "CelesteNet.Server"
	DefaultVersion = "2.0.0.0"
)

// Options configures a SQLiteStore.
type Options struct {
	Driver  string
	Real    string
	Module  string
	Version string

	// Initializer runs during CreateUser before the meta row is written.
	Initializer UserInitializer
	Logger      *slog.Logger
}

// SQLiteStore implements Store on top of a *sql.DB owned by the caller.
type SQLiteStore struct {
	db      *sql.DB
	logger  *slog.Logger
	driver  string
	real    string
	module  string
	version string
	init    UserInitializer

	// keyMu serializes key allocation so two creations cannot pick the same short key.
	keyMu sync.Mutex

	tablesMu   sync.RWMutex
	dataTables map[string]tableRef
	fileTables map[string]tableRef
}

// Open opens the database file at path with the given driver, creating
// parent directories as needed.
func Open(driver, path string) (*sql.DB, error) {
	if driver == "" {
		driver = DriverCGo
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	var dsn string
	switch driver {
	case DriverCGo:
		dsn = "file:" + path + "?_busy_timeout=5000"
	case DriverPure:
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)"
	default:
		return nil, fmt.Errorf("unsupported sqlite driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	return db, nil
}

// NewSQLiteStore wraps db and makes sure the schema exists.
// The caller keeps ownership of db; Close closes it.
func NewSQLiteStore(ctx context.Context, db *sql.DB, opts Options) (*SQLiteStore, error) {
	s := newStore(db, opts)
	if err := s.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	s.logger.Info("SQLite store initialized", "driver", s.driver, "namespace", s.real+"."+s.module)
	return s, nil
}

func newStore(db *sql.DB, opts Options) *SQLiteStore {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &SQLiteStore{
		db:         db,
		logger:     logger.With("component", "store"),
		driver:     opts.Driver,
		real:       opts.Real,
		module:     opts.Module,
		version:    opts.Version,
		init:       opts.Initializer,
		dataTables: make(map[string]tableRef),
		fileTables: make(map[string]tableRef),
	}
	if s.driver == "" {
		s.driver = DriverCGo
	}
	if s.real == "" {
		s.real = DefaultReal
	}
	if s.module == "" {
		s.module = DefaultModule
	}
	if s.version == "" {
		s.version = DefaultVersion
	}
	return s
}

// Initialize creates the catalog, record and credential tables if absent.
// It is safe to call on every open.
func (s *SQLiteStore) Initialize(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS meta (
			iid INTEGER PRIMARY KEY AUTOINCREMENT,
			uid VARCHAR(255) UNIQUE,
			key VARCHAR(255),
			keyfull VARCHAR(255),
			registered BOOLEAN
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_meta_key ON meta(key);

		CREATE TABLE IF NOT EXISTS data (
			iid INTEGER PRIMARY KEY AUTOINCREMENT,
			name VARCHAR(255) UNIQUE,
			real VARCHAR(255) UNIQUE,
			type VARCHAR(255) UNIQUE
		);

		CREATE TABLE IF NOT EXISTS file (
			iid INTEGER PRIMARY KEY AUTOINCREMENT,
			name VARCHAR(255) UNIQUE,
			real VARCHAR(255) UNIQUE
		);

		CREATE TABLE IF NOT EXISTS data_records (
			iid INTEGER PRIMARY KEY AUTOINCREMENT,
			table_id INTEGER NOT NULL REFERENCES data(iid),
			uid VARCHAR(255) NOT NULL,
			format INTEGER NOT NULL,
			value BLOB,
			UNIQUE(table_id, uid)
		);

		CREATE TABLE IF NOT EXISTS file_records (
			iid INTEGER PRIMARY KEY AUTOINCREMENT,
			table_id INTEGER NOT NULL REFERENCES file(iid),
			uid VARCHAR(255) NOT NULL,
			value BLOB,
			UNIQUE(table_id, uid)
		);

		CREATE INDEX IF NOT EXISTS idx_data_records_uid ON data_records(uid);
		CREATE INDEX IF NOT EXISTS idx_file_records_uid ON file_records(uid);

		CREATE TABLE IF NOT EXISTS web_users (
			uid TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL,
			salt TEXT NOT NULL,
			email TEXT
		);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}
	return nil
}

// DB returns the underlying connection pool.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection pool.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isConstraintViolation checks if an error is a SQLite unique constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// nullString returns nil for empty strings, otherwise the string
func nullString(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

// quoteIdent quotes a table name read from sqlite_master for use in DDL/DML.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Compile-time interface check
var _ Store = (*SQLiteStore)(nil)
