// ABOUTME: Tests for user key management
// ABOUTME: Covers creation, forced re-keying, rotation, lookups and key uniqueness under concurrency

package store

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var shortKeyPattern = regexp.MustCompile(`^[0-9a-f]{16}$`)

func TestCreateUser_New(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	key, created, err := s.CreateUser(ctx, "madeline", false)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Regexp(t, shortKeyPattern, key)

	u, err := s.GetUser(ctx, "madeline")
	require.NoError(t, err)
	assert.Equal(t, key, u.Key)
	assert.Len(t, u.KeyFull, 32)
	assert.Equal(t, u.KeyFull[:16], u.Key)
	assert.True(t, u.Registered)

	uid, err := s.LookupUIDByKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "madeline", uid)
}

func TestCreateUser_ExistingReturnsSameKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	key, _, err := s.CreateUser(ctx, "madeline", false)
	require.NoError(t, err)

	again, created, err := s.CreateUser(ctx, "madeline", false)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, key, again)
}

func TestCreateUser_ForceNewKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old, _, err := s.CreateUser(ctx, "madeline", false)
	require.NoError(t, err)

	fresh, created, err := s.CreateUser(ctx, "madeline", true)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, old, fresh)

	uid, err := s.LookupUIDByKey(ctx, old)
	require.NoError(t, err)
	assert.Empty(t, uid, "old key must no longer resolve")
}

func TestCreateUser_Initializer(t *testing.T) {
	ctx := context.Background()
	var called []string
	s := newTestStoreWith(t, Options{Initializer: func(ctx context.Context, uid string) error {
		called = append(called, uid)
		return nil
	}})

	_, _, err := s.CreateUser(ctx, "theo", false)
	require.NoError(t, err)
	_, _, err = s.CreateUser(ctx, "theo", false)
	require.NoError(t, err)

	assert.Equal(t, []string{"theo"}, called, "initializer runs only when a key is allocated")
}

func TestCreateUser_InitializerFailureAborts(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")
	s := newTestStoreWith(t, Options{Initializer: func(ctx context.Context, uid string) error {
		return boom
	}})

	_, _, err := s.CreateUser(ctx, "theo", false)
	require.ErrorIs(t, err, boom)

	_, err = s.GetUser(ctx, "theo")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateUser_EmptyUID(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.CreateUser(context.Background(), "", false)
	assert.Error(t, err)
}

func TestLookups_EmptyAndUnknown(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, input := range []string{"", "nobody"} {
		key, err := s.LookupKeyByUID(ctx, input)
		require.NoError(t, err)
		assert.Empty(t, key)

		uid, err := s.LookupUIDByKey(ctx, input)
		require.NoError(t, err)
		assert.Empty(t, uid)
	}
}

func TestRotateKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old, _, err := s.CreateUser(ctx, "granny", false)
	require.NoError(t, err)

	fresh, err := s.RotateKey(ctx, "granny")
	require.NoError(t, err)
	assert.Regexp(t, shortKeyPattern, fresh)
	assert.NotEqual(t, old, fresh)

	u, err := s.GetUser(ctx, "granny")
	require.NoError(t, err)
	assert.Equal(t, fresh, u.Key)
	assert.Equal(t, u.KeyFull[:16], u.Key)

	uid, err := s.LookupUIDByKey(ctx, old)
	require.NoError(t, err)
	assert.Empty(t, uid)
}

func TestRotateKey_Unknown(t *testing.T) {
	s := newTestStore(t)
	_, err := s.RotateKey(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateUser_ConcurrentKeysUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const n = 32
	keys := make([]string, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			keys[i], _, errs[i] = s.CreateUser(ctx, "user"+string(rune('A'+i)), false)
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i, k := range keys {
		require.NoError(t, errs[i])
		assert.False(t, seen[k], "duplicate key %s", k)
		seen[k] = true
	}

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, n)

	count, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, count)
}

func TestSetRegistered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _, err := s.CreateUser(ctx, "oshiro", false)
	require.NoError(t, err)
	require.NoError(t, s.SetRegistered(ctx, "oshiro", false))

	u, err := s.GetUser(ctx, "oshiro")
	require.NoError(t, err)
	assert.False(t, u.Registered)

	assert.ErrorIs(t, s.SetRegistered(ctx, "nobody", true), ErrNotFound)
}
