// ABOUTME: Tests for typed per-user records
// ABOUTME: Covers upsert replacement, absent records, deletion and the zero-rows write failure

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testBan struct {
	UID    string     `msgpack:"UID"`
	Reason string     `msgpack:"Reason"`
	From   time.Time  `msgpack:"From"`
	To     *time.Time `msgpack:"To"`
}

func TestUpsertTypedRecord_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	from := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	in := testBan{UID: "madeline", Reason: "cheating", From: from}
	require.NoError(t, s.UpsertTypedRecord(ctx, "madeline", "BanInfo", in))

	var out testBan
	found, err := s.GetTypedRecord(ctx, "madeline", "BanInfo", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "cheating", out.Reason)
	assert.True(t, out.From.Equal(from))
	assert.Nil(t, out.To)
}

func TestUpsertTypedRecord_ReplacesSingleRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertTypedRecord(ctx, "madeline", "BanInfo", testBan{Reason: "first"}))
	require.NoError(t, s.UpsertTypedRecord(ctx, "madeline", "BanInfo", testBan{Reason: "second"}))

	var count int
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM data_records WHERE uid = ?`, "madeline").Scan(&count))
	assert.Equal(t, 1, count)

	var out testBan
	_, err := s.GetTypedRecord(ctx, "madeline", "BanInfo", &out)
	require.NoError(t, err)
	assert.Equal(t, "second", out.Reason)
}

func TestGetTypedRecord_Absent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var out testBan
	found, err := s.GetTypedRecord(ctx, "madeline", "NeverRegistered", &out)
	require.NoError(t, err)
	assert.False(t, found)

	_, err = s.EnsureDataTable(ctx, "BanInfo")
	require.NoError(t, err)
	found, err = s.GetTypedRecord(ctx, "madeline", "BanInfo", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteTypedRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	deleted, err := s.DeleteTypedRecord(ctx, "madeline", "BanInfo")
	require.NoError(t, err)
	assert.False(t, deleted)

	require.NoError(t, s.UpsertTypedRecord(ctx, "madeline", "BanInfo", testBan{Reason: "x"}))
	deleted, err = s.DeleteTypedRecord(ctx, "madeline", "BanInfo")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.DeleteTypedRecord(ctx, "madeline", "BanInfo")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestUpsertRawRecord_UnsupportedFormatOnRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertRawRecord(ctx, "madeline", "Notes", FormatYAML, []byte("a: 1")))

	var out map[string]any
	_, err := s.GetTypedRecord(ctx, "madeline", "Notes", &out)
	assert.Error(t, err)

	format, value, found, err := s.GetRawRecord(ctx, "madeline", "Notes")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, FormatYAML, format)
	assert.Equal(t, "a: 1", string(value))
}

func TestUpsertRawRecord_ZeroRowsIsWriteFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	s := newStore(db, Options{})
	s.dataTables["BanInfo"] = tableRef{id: 7}

	mock.ExpectExec(`REPLACE INTO data_records`).
		WithArgs(int64(7), "madeline", FormatMessagePack, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = s.UpsertTypedRecord(context.Background(), "madeline", "BanInfo", testBan{Reason: "x"})
	if !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("err = %v, want ErrWriteFailed", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
