// ABOUTME: Tests for SQLite store setup
// ABOUTME: Covers opening, directory creation, idempotent schema creation and driver selection

package store

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
)

// newTestStore opens a fresh store in a temp directory.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	return newTestStoreWith(t, Options{})
}

func newTestStoreWith(t *testing.T, opts Options) *SQLiteStore {
	t.Helper()
	db, err := Open(opts.Driver, filepath.Join(t.TempDir(), "main.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	s, err := NewSQLiteStore(context.Background(), db, opts)
	if err != nil {
		db.Close()
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "main.db")

	db, err := Open(DriverCGo, dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if _, err := NewSQLiteStore(context.Background(), db, Options{}); err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open("postgres", filepath.Join(t.TempDir(), "main.db")); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestInitialize_Idempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "main.db")

	db, err := Open(DriverCGo, path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	s, err := NewSQLiteStore(ctx, db, Options{})
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	key, _, err := s.CreateUser(ctx, "madeline", false)
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("second Initialize failed: %v", err)
	}
	s.Close()

	// Reopening must keep existing rows.
	db, err = Open(DriverCGo, path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	s, err = NewSQLiteStore(ctx, db, Options{})
	if err != nil {
		t.Fatalf("NewSQLiteStore on existing file failed: %v", err)
	}
	defer s.Close()

	got, err := s.LookupKeyByUID(ctx, "madeline")
	if err != nil {
		t.Fatalf("LookupKeyByUID failed: %v", err)
	}
	if got != key {
		t.Errorf("key after reopen = %q, want %q", got, key)
	}
}

func TestNewSQLiteStore_Defaults(t *testing.T) {
	s := newTestStore(t)

	if s.real != DefaultReal || s.module != DefaultModule || s.version != DefaultVersion {
		t.Errorf("namespace = %s/%s/%s, want defaults", s.real, s.module, s.version)
	}
	if s.driver != DriverCGo {
		t.Errorf("driver = %q, want %q", s.driver, DriverCGo)
	}
}

func TestPureDriver_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStoreWith(t, Options{Driver: DriverPure})

	if _, _, err := s.CreateUser(ctx, "badeline", false); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	buf := s.OpenWriteBuffer("badeline", "avatar.png")
	if _, err := buf.Write([]byte("png-bytes")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := s.Commit(ctx, buf); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	rc, found, err := s.ReadBlob(ctx, "badeline", "avatar.png")
	if err != nil || !found {
		t.Fatalf("ReadBlob found=%v err=%v", found, err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "png-bytes" {
		t.Errorf("blob = %q, want %q", data, "png-bytes")
	}
}
