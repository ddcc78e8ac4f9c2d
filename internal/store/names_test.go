// ABOUTME: Tests for logical to physical table name resolution
// ABOUTME: Covers sanitizing, determinism, collision freedom and the compatibility views

package store

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		clean string
	}{
		{"untouched", "data.Celeste.Mod.CelesteNet.Server.BanInfo", "data.Celeste.Mod.CelesteNet.Server.BanInfo"},
		{"quote", "a'b", "ab~"},
		{"brackets", "[x]", "x~"},
		{"slashes", `a/b\c`, "abc~"},
		{"backtick and acute", "a`´b", "ab~"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeName(tt.input)
			if !strings.HasPrefix(got, tt.clean) {
				t.Errorf("sanitizeName(%q) = %q, want prefix %q", tt.input, got, tt.clean)
			}
			if strings.ContainsAny(got, illegalChars) {
				t.Errorf("sanitizeName(%q) = %q still contains illegal characters", tt.input, got)
			}
		})
	}
}

func TestEnsureDataTable_Deterministic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.EnsureDataTable(ctx, "BasicUserInfo")
	require.NoError(t, err)
	second, err := s.EnsureDataTable(ctx, "BasicUserInfo")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "data.Celeste.Mod.CelesteNet.Server.BasicUserInfo", first)

	var typ string
	err = s.db.QueryRowContext(ctx, `SELECT type FROM data WHERE name = ?`, first).Scan(&typ)
	require.NoError(t, err)
	assert.Equal(t, "Celeste.Mod.CelesteNet.Server.BasicUserInfo, CelesteNet.Server, Version=2.0.0.0, Culture=neutral, PublicKeyToken=null", typ)
}

func TestEnsureDataTable_DistinctNamesNeverCollide(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	names := []string{"ab", "a'b", `a"b`, "a[b]", "a/b", "[ab]"}
	seen := make(map[string]string)
	for _, n := range names {
		phys, err := s.EnsureDataTable(ctx, n)
		require.NoError(t, err, n)
		if prev, ok := seen[phys]; ok {
			t.Fatalf("logical names %q and %q share physical name %q", prev, n, phys)
		}
		seen[phys] = n
	}

	// Records stay separated per logical name.
	require.NoError(t, s.UpsertTypedRecord(ctx, "u1", "ab", map[string]string{"v": "plain"}))
	require.NoError(t, s.UpsertTypedRecord(ctx, "u1", "a'b", map[string]string{"v": "quoted"}))

	var got map[string]string
	found, err := s.GetTypedRecord(ctx, "u1", "ab", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "plain", got["v"])
}

func TestEnsureFileTable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	name, err := s.EnsureFileTable(ctx, "avatar.png")
	require.NoError(t, err)
	assert.Equal(t, "file.avatar.png", name)

	var real string
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT real FROM file WHERE name = ?`, name).Scan(&real))
	assert.Equal(t, "avatar.png", real)
}

func TestCompatibilityView(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertTypedRecord(ctx, "madeline", "BasicUserInfo", map[string]any{"Name": "Madeline"}))

	table := s.DataTableName("BasicUserInfo")
	var (
		format int
		value  []byte
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT format, value FROM "+quoteIdent(table)+" WHERE uid = ?", "madeline",
	).Scan(&format, &value)
	require.NoError(t, err)
	assert.Equal(t, FormatMessagePack, format)

	var decoded map[string]any
	require.NoError(t, Decode(value, &decoded))
	assert.Equal(t, "Madeline", decoded["Name"])

	// The game server writes through the view.
	encoded, err := Encode(map[string]any{"Name": "Theo"})
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO "+quoteIdent(table)+" (uid, format, value) VALUES (?, ?, ?)", "theo", FormatMessagePack, encoded)
	require.NoError(t, err)

	var out map[string]any
	found, err := s.GetTypedRecord(ctx, "theo", "BasicUserInfo", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Theo", out["Name"])
}
