// ABOUTME: Two-phase binary file writes and blob reads
// ABOUTME: Commit stores the buffered bytes as one bound parameter in a single upsert

package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"
)

// MaxBlobSize bounds a single stored file.
const MaxBlobSize = 16 << 20

// ErrBlobTooLarge is returned when buffered file contents exceed MaxBlobSize.
var ErrBlobTooLarge = errors.New("file too large")

// WriteBuffer collects the bytes of one file before they are committed.
// It is not safe for concurrent writers.
type WriteBuffer struct {
	uid      string
	fileName string

	mu        sync.Mutex
	buf       bytes.Buffer
	committed bool
	discarded bool
}

// OpenWriteBuffer starts a write of fileName for uid. Nothing touches the
// database until Commit.
func (s *SQLiteStore) OpenWriteBuffer(uid, fileName string) *WriteBuffer {
	return &WriteBuffer{uid: uid, fileName: fileName}
}

// Write appends p to the pending contents.
func (b *WriteBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.committed || b.discarded {
		return 0, fmt.Errorf("write to closed buffer for %s/%s", b.uid, b.fileName)
	}
	if b.buf.Len()+len(p) > MaxBlobSize {
		return 0, fmt.Errorf("%w: %s/%s", ErrBlobTooLarge, b.uid, b.fileName)
	}
	return b.buf.Write(p)
}

// ReadFrom appends everything from r to the pending contents.
func (b *WriteBuffer) ReadFrom(r io.Reader) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.committed || b.discarded {
		return 0, fmt.Errorf("write to closed buffer for %s/%s", b.uid, b.fileName)
	}
	// Read one byte past the limit so oversized input is detected, not truncated.
	limit := int64(MaxBlobSize - b.buf.Len())
	n, err := b.buf.ReadFrom(io.LimitReader(r, limit+1))
	if err != nil {
		return n, err
	}
	if n > limit {
		return n, fmt.Errorf("%w: %s/%s", ErrBlobTooLarge, b.uid, b.fileName)
	}
	return n, nil
}

// Len returns the number of pending bytes.
func (b *WriteBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

// Discard drops the pending bytes. It is a no-op after Commit.
func (b *WriteBuffer) Discard() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.committed {
		b.discarded = true
		b.buf.Reset()
	}
}

// Commit persists buf as the single file record of (uid, fileName).
// Committing an already committed buffer does nothing.
func (s *SQLiteStore) Commit(ctx context.Context, buf *WriteBuffer) error {
	buf.mu.Lock()
	defer buf.mu.Unlock()

	if buf.committed {
		return nil
	}
	if buf.discarded {
		return fmt.Errorf("committing discarded buffer for %s/%s", buf.uid, buf.fileName)
	}

	if buf.buf.Len() > MaxBlobSize {
		return fmt.Errorf("%w: %s/%s", ErrBlobTooLarge, buf.uid, buf.fileName)
	}

	ref, _, err := s.ensureFileTable(ctx, buf.fileName)
	if err != nil {
		return err
	}

	if err := s.writeBlob(ctx, ref, buf.uid, buf.buf.Bytes()); err != nil {
		return fmt.Errorf("writing %s for %s: %w", buf.fileName, buf.uid, err)
	}

	buf.committed = true
	s.logger.Debug("committed file", "uid", buf.uid, "name", buf.fileName, "bytes", buf.buf.Len())
	buf.buf.Reset()
	return nil
}

// writeBlob replaces the file row of uid in one statement.
func (s *SQLiteStore) writeBlob(ctx context.Context, ref tableRef, uid string, data []byte) error {
	if data == nil {
		data = []byte{}
	}

	var (
		res sql.Result
		err error
	)
	if ref.legacy != "" {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO `+quoteIdent(ref.legacy)+` (uid, value) VALUES (?, ?)
			ON CONFLICT(uid) DO UPDATE SET value = excluded.value`,
			uid, data,
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO file_records (table_id, uid, value) VALUES (?, ?, ?)
			ON CONFLICT(table_id, uid) DO UPDATE SET value = excluded.value`,
			ref.id, uid, data,
		)
	}
	if err != nil {
		return fmt.Errorf("storing blob: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storing blob: %w", err)
	}
	if n == 0 {
		return ErrWriteFailed
	}
	return nil
}

// ReadBlob returns the contents of (uid, fileName). found is false when no file is stored.
func (s *SQLiteStore) ReadBlob(ctx context.Context, uid, fileName string) (io.ReadCloser, bool, error) {
	ref, ok, err := s.lookupFileTable(ctx, fileName)
	if err != nil || !ok {
		return nil, false, err
	}

	var row *sql.Row
	if ref.legacy != "" {
		row = s.db.QueryRowContext(ctx, `SELECT value FROM `+quoteIdent(ref.legacy)+` WHERE uid = ?`, uid)
	} else {
		row = s.db.QueryRowContext(ctx,
			`SELECT value FROM file_records WHERE table_id = ? AND uid = ?`, ref.id, uid)
	}
	var value []byte
	err = row.Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %s for %s: %w", fileName, uid, err)
	}
	return io.NopCloser(bytes.NewReader(value)), true, nil
}
