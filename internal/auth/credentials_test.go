// ABOUTME: Tests for the credential service against a real SQLite store
// ABOUTME: Covers registration, verification, password change and email lookup

package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LyceenAiro/CelesteNet-UserTool/internal/store"
)

func newTestCredentials(t *testing.T) *Credentials {
	t.Helper()
	db, err := store.Open(store.DriverCGo, filepath.Join(t.TempDir(), "main.db"))
	require.NoError(t, err)
	s, err := store.NewSQLiteStore(context.Background(), db, store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewCredentials(s, nil)
}

func TestCredentials_RegisterAndVerify(t *testing.T) {
	c := newTestCredentials(t)
	ctx := context.Background()

	email := "madeline@summit.example"
	require.NoError(t, c.Register(ctx, "madeline", "strawberry", &email))

	ok, err := c.VerifyPassword(ctx, "madeline", "strawberry")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.VerifyPassword(ctx, "madeline", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := c.Email(ctx, "madeline")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, email, *got)
}

func TestCredentials_RegisterDuplicate(t *testing.T) {
	c := newTestCredentials(t)
	ctx := context.Background()

	require.NoError(t, c.Register(ctx, "madeline", "strawberry", nil))
	err := c.Register(ctx, "madeline", "other", nil)
	assert.True(t, errors.Is(err, store.ErrAlreadyExists), "err = %v", err)
}

func TestCredentials_RegisterEmptyPassword(t *testing.T) {
	c := newTestCredentials(t)
	assert.ErrorIs(t, c.Register(context.Background(), "madeline", "", nil), ErrEmptyPassword)
}

func TestCredentials_VerifyUnknown(t *testing.T) {
	c := newTestCredentials(t)

	ok, err := c.VerifyPassword(context.Background(), "nobody", "anything")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCredentials_UpdatePassword(t *testing.T) {
	c := newTestCredentials(t)
	ctx := context.Background()

	require.NoError(t, c.Register(ctx, "theo", "old-pass", nil))
	require.NoError(t, c.UpdatePassword(ctx, "theo", "new-pass"))

	ok, _ := c.VerifyPassword(ctx, "theo", "old-pass")
	assert.False(t, ok)
	ok, _ = c.VerifyPassword(ctx, "theo", "new-pass")
	assert.True(t, ok)

	err := c.UpdatePassword(ctx, "nobody", "x")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCredentials_EmailAbsent(t *testing.T) {
	c := newTestCredentials(t)
	ctx := context.Background()

	got, err := c.Email(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.Register(ctx, "theo", "pw", nil))
	got, err = c.Email(ctx, "theo")
	require.NoError(t, err)
	assert.Nil(t, got)
}
