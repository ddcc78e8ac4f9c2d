// ABOUTME: Tests for the user lifecycle service against a real SQLite store and profile root
// ABOUTME: Covers creation, profile edits, super admins, user info lookup and removal

package users

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LyceenAiro/CelesteNet-UserTool/internal/auth"
	"github.com/LyceenAiro/CelesteNet-UserTool/internal/profile"
	"github.com/LyceenAiro/CelesteNet-UserTool/internal/store"
)

type testEnv struct {
	svc      *Service
	store    *store.SQLiteStore
	profiles *profile.Store
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	root := t.TempDir()
	profiles := profile.NewStore(root)

	db, err := store.Open(store.DriverCGo, filepath.Join(root, "main.db"))
	require.NoError(t, err)
	s, err := store.NewSQLiteStore(context.Background(), db, store.Options{Initializer: profiles.Create})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return &testEnv{
		svc:      New(s, profiles, auth.NewCredentials(s, nil), opts),
		store:    s,
		profiles: profiles,
	}
}

func ptr(s string) *string { return &s }

func TestCreateUserData_WithoutPassword(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	key, err := env.svc.CreateUserData(ctx, "madeline", nil, nil)
	require.NoError(t, err)
	assert.Len(t, key, store.ShortKeyLen)

	info, err := env.profiles.Load("madeline")
	require.NoError(t, err)
	assert.Equal(t, "madeline", info.Name)

	var rec profile.BasicUserInfo
	found, err := env.store.GetTypedRecord(ctx, "madeline", RecordBasicUserInfo, &rec)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "madeline", rec.Name)
	assert.Equal(t, []string{profile.TagUser}, rec.Tags)
}

func TestCreateUserData_Twice(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	_, err := env.svc.CreateUserData(ctx, "madeline", nil, nil)
	require.NoError(t, err)

	_, err = env.svc.CreateUserData(ctx, "madeline", nil, nil)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestCreateUserData_WithPassword(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	_, err := env.svc.CreateUserData(ctx, "theo", ptr("selfie"), ptr("theo@summit.example"))
	require.NoError(t, err)

	ok, err := env.svc.Credentials().VerifyPassword(ctx, "theo", "selfie")
	require.NoError(t, err)
	assert.True(t, ok)

	// The credential conflict aborts before a second key could be issued.
	_, err = env.svc.CreateUserData(ctx, "theo", ptr("other"), nil)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestCreateUserData_KeyWithoutCredentialRollsBack(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	_, err := env.svc.CreateUserData(ctx, "granny", nil, nil)
	require.NoError(t, err)

	_, err = env.svc.CreateUserData(ctx, "granny", ptr("pw"), nil)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	_, err = env.store.GetCredential(ctx, "granny")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestChangeNameAndOps(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	_, err := env.svc.CreateUserData(ctx, "badeline", nil, nil)
	require.NoError(t, err)

	require.NoError(t, env.svc.ChangeName(ctx, "badeline", "Part of You"))
	require.NoError(t, env.svc.GiveOp(ctx, "badeline"))
	require.NoError(t, env.svc.GiveOp(ctx, "badeline"))

	var rec profile.BasicUserInfo
	_, err = env.store.GetTypedRecord(ctx, "badeline", RecordBasicUserInfo, &rec)
	require.NoError(t, err)
	assert.Equal(t, "Part of You", rec.Name)
	assert.Equal(t, []string{profile.TagUser, profile.TagAdmin}, rec.Tags)

	admin, err := env.svc.IsAdmin(ctx, "badeline")
	require.NoError(t, err)
	assert.True(t, admin)

	require.NoError(t, env.svc.DeOp(ctx, "badeline"))
	require.NoError(t, env.svc.DeOp(ctx, "badeline"))
	admin, err = env.svc.IsAdmin(ctx, "badeline")
	require.NoError(t, err)
	assert.False(t, admin)
}

func TestChangeName_NoProfile(t *testing.T) {
	env := newTestEnv(t, Options{})
	err := env.svc.ChangeName(context.Background(), "ghost", "Boo")
	assert.ErrorIs(t, err, ErrNoProfile)
}

func TestApplySuperAdmins(t *testing.T) {
	env := newTestEnv(t, Options{
		SuperAdmins:       []string{"madeline", "missing"},
		RemoveSuperAdmins: []string{"theo"},
	})
	ctx := context.Background()
	for _, uid := range []string{"madeline", "theo"} {
		_, err := env.svc.CreateUserData(ctx, uid, nil, nil)
		require.NoError(t, err)
	}
	require.NoError(t, env.svc.GiveOp(ctx, "theo"))

	env.svc.ApplySuperAdmins(ctx)

	admin, _ := env.svc.IsAdmin(ctx, "madeline")
	assert.True(t, admin)
	admin, _ = env.svc.IsAdmin(ctx, "theo")
	assert.False(t, admin)
	assert.True(t, env.svc.IsSuperAdmin("madeline"))
	assert.False(t, env.svc.IsSuperAdmin("theo"))
}

func TestGetUserInfo(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	key, err := env.svc.CreateUserData(ctx, "madeline", ptr("pw"), ptr("m@summit.example"))
	require.NoError(t, err)
	require.NoError(t, env.svc.GiveOp(ctx, "madeline"))

	byUID, err := env.svc.GetUserInfo(ctx, "madeline")
	require.NoError(t, err)
	require.NotNil(t, byUID)
	assert.Equal(t, key, byUID.Key)
	assert.True(t, byUID.Admin)
	assert.False(t, byUID.Avatar)
	require.NotNil(t, byUID.Email)
	assert.Equal(t, "m@summit.example", *byUID.Email)

	byKey, err := env.svc.GetUserInfo(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, byUID, byKey)

	none, err := env.svc.GetUserInfo(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, none)

	none, err = env.svc.GetUserInfo(ctx, "0123456789abcdef")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestRemoveUser(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	_, err := env.svc.CreateUserData(ctx, "madeline", ptr("pw"), nil)
	require.NoError(t, err)
	_, err = env.svc.BanUser(ctx, "madeline", 5, 0, "")
	require.NoError(t, err)

	require.NoError(t, env.svc.RemoveUser(ctx, "madeline"))

	key, err := env.store.LookupKeyByUID(ctx, "madeline")
	require.NoError(t, err)
	assert.Empty(t, key)
	_, err = env.store.GetCredential(ctx, "madeline")
	assert.ErrorIs(t, err, store.ErrNotFound)
	ban, err := env.svc.GetBanInfo(ctx, "madeline")
	require.NoError(t, err)
	assert.Nil(t, ban)
	_, err = os.Stat(env.profiles.UserDir("madeline"))
	assert.True(t, os.IsNotExist(err))

	// A second removal finds nothing and still succeeds.
	assert.NoError(t, env.svc.RemoveUser(ctx, "madeline"))
}

func TestRotateKey(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	old, err := env.svc.CreateUserData(ctx, "madeline", nil, nil)
	require.NoError(t, err)

	fresh, err := env.svc.RotateKey(ctx, "madeline")
	require.NoError(t, err)
	assert.NotEqual(t, old, fresh)

	_, err = env.svc.RotateKey(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDisplayZone(t *testing.T) {
	z := DisplayZone(8)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).In(z)
	assert.Equal(t, 8, ts.Hour())
}

func TestListAndCountUsers(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	for _, uid := range []string{"madeline", "theo", "granny"} {
		_, err := env.svc.CreateUserData(ctx, uid, nil, nil)
		require.NoError(t, err)
	}

	list, err := env.svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "madeline", list[0].UID)

	n, err := env.svc.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
