// ABOUTME: Typed per-user records stored in data_records, one row per (uid, name)
// ABOUTME: Payloads are MessagePack encoded so the game server can decode them directly

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Encode serializes v in the record wire format.
func Encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

// Decode deserializes a record value produced by Encode or the game server.
func Decode(data []byte, out any) error {
	return msgpack.Unmarshal(data, out)
}

// UpsertTypedRecord encodes payload and stores it for (uid, logicalName),
// replacing any previous record.
func (s *SQLiteStore) UpsertTypedRecord(ctx context.Context, uid, logicalName string, payload any) error {
	value, err := Encode(payload)
	if err != nil {
		return fmt.Errorf("encoding %s record: %w", logicalName, err)
	}
	return s.UpsertRawRecord(ctx, uid, logicalName, FormatMessagePack, value)
}

// UpsertRawRecord stores an already encoded value for (uid, logicalName).
func (s *SQLiteStore) UpsertRawRecord(ctx context.Context, uid, logicalName string, format int, value []byte) error {
	ref, _, err := s.ensureDataTable(ctx, logicalName)
	if err != nil {
		return err
	}

	var res sql.Result
	if ref.legacy != "" {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO `+quoteIdent(ref.legacy)+` (uid, format, value) VALUES (?, ?, ?)
			ON CONFLICT(uid) DO UPDATE SET format = excluded.format, value = excluded.value`,
			uid, format, value,
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`REPLACE INTO data_records (table_id, uid, format, value) VALUES (?, ?, ?, ?)`,
			ref.id, uid, format, value,
		)
	}
	if err != nil {
		return fmt.Errorf("upserting %s record: %w", logicalName, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("upserting %s record: %w", logicalName, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s for %s", ErrWriteFailed, logicalName, uid)
	}

	s.logger.Debug("upserted record", "uid", uid, "name", logicalName, "bytes", len(value))
	return nil
}

// GetRawRecord returns the stored format and bytes of (uid, logicalName).
// found is false when the name was never registered or uid has no row.
func (s *SQLiteStore) GetRawRecord(ctx context.Context, uid, logicalName string) (format int, value []byte, found bool, err error) {
	ref, ok, err := s.lookupDataTable(ctx, logicalName)
	if err != nil || !ok {
		return 0, nil, false, err
	}

	var row *sql.Row
	if ref.legacy != "" {
		row = s.db.QueryRowContext(ctx,
			`SELECT format, value FROM `+quoteIdent(ref.legacy)+` WHERE uid = ?`, uid)
	} else {
		row = s.db.QueryRowContext(ctx,
			`SELECT format, value FROM data_records WHERE table_id = ? AND uid = ?`, ref.id, uid)
	}
	var f sql.NullInt64
	err = row.Scan(&f, &value)
	format = int(f.Int64)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, fmt.Errorf("querying %s record: %w", logicalName, err)
	}
	return format, value, true, nil
}

// GetTypedRecord decodes the record of (uid, logicalName) into out.
func (s *SQLiteStore) GetTypedRecord(ctx context.Context, uid, logicalName string, out any) (bool, error) {
	format, value, found, err := s.GetRawRecord(ctx, uid, logicalName)
	if err != nil || !found {
		return false, err
	}
	if format != FormatMessagePack {
		return false, fmt.Errorf("decoding %s record: unsupported format %d", logicalName, format)
	}
	if err := Decode(value, out); err != nil {
		return false, fmt.Errorf("decoding %s record: %w", logicalName, err)
	}
	return true, nil
}

// DeleteTypedRecord removes the record of (uid, logicalName) and reports whether one existed.
func (s *SQLiteStore) DeleteTypedRecord(ctx context.Context, uid, logicalName string) (bool, error) {
	ref, ok, err := s.lookupDataTable(ctx, logicalName)
	if err != nil || !ok {
		return false, err
	}

	var res sql.Result
	if ref.legacy != "" {
		res, err = s.db.ExecContext(ctx, `DELETE FROM `+quoteIdent(ref.legacy)+` WHERE uid = ?`, uid)
	} else {
		res, err = s.db.ExecContext(ctx, `DELETE FROM data_records WHERE table_id = ? AND uid = ?`, ref.id, uid)
	}
	if err != nil {
		return false, fmt.Errorf("deleting %s record: %w", logicalName, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting %s record: %w", logicalName, err)
	}

	s.logger.Debug("deleted record", "uid", uid, "name", logicalName, "deleted", n > 0)
	return n > 0, nil
}
