// ABOUTME: Tests for filesystem profile documents
// ABOUTME: Covers default creation, tag edits, unknown fields, avatars and directory removal

package profile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate_DefaultProfile(t *testing.T) {
	s := NewStore(t.TempDir())

	require.NoError(t, s.Create(context.Background(), "madeline"))

	info, err := s.Load("madeline")
	require.NoError(t, err)
	assert.Equal(t, "madeline", info.Name)
	assert.Equal(t, "", info.Discrim)
	assert.Equal(t, []string{TagUser}, info.Tags)
}

func TestLoad_Missing(t *testing.T) {
	s := NewStore(t.TempDir())

	_, err := s.Load("nobody")
	assert.True(t, errors.Is(err, ErrNoProfile), "err = %v", err)
}

func TestInvalidUID(t *testing.T) {
	s := NewStore(t.TempDir())

	for _, uid := range []string{"", "..", "a/b", `a\b`} {
		_, err := s.Load(uid)
		assert.ErrorIs(t, err, ErrInvalidUID, uid)
		assert.ErrorIs(t, s.RemoveUserDir(uid), ErrInvalidUID, uid)
	}
}

func TestTags(t *testing.T) {
	info := &BasicUserInfo{Tags: []string{TagUser}}

	assert.True(t, info.AddTag(TagAdmin))
	assert.False(t, info.AddTag(TagAdmin))
	assert.True(t, info.HasTag(TagAdmin))

	assert.True(t, info.RemoveTag(TagAdmin))
	assert.False(t, info.RemoveTag(TagAdmin))
	assert.Equal(t, []string{TagUser}, info.Tags)
}

func TestUpdate(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, s.Create(context.Background(), "theo"))

	info, err := s.Update("theo", func(b *BasicUserInfo) bool {
		b.Name = "Theo the Great"
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, "Theo the Great", info.Name)

	reloaded, err := s.Load("theo")
	require.NoError(t, err)
	assert.Equal(t, "Theo the Great", reloaded.Name)
}

func TestDocument_KeepsUnknownFields(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)
	dir := filepath.Join(root, UserDirName, "granny")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProfileFileName),
		[]byte("Name: Granny\nDiscrim: ''\nTags: [user]\nColor: '#ff00ff'\n"), 0644))

	doc, err := s.Document("granny")
	require.NoError(t, err)
	assert.Equal(t, "#ff00ff", doc["Color"])
	assert.Equal(t, "Granny", doc["Name"])

	// A tag edit keeps the extra field.
	_, err = s.Update("granny", func(b *BasicUserInfo) bool { return b.AddTag(TagAdmin) })
	require.NoError(t, err)
	doc, err = s.Document("granny")
	require.NoError(t, err)
	assert.Equal(t, "#ff00ff", doc["Color"])
}

func TestHasAvatarAndRemove(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, s.Create(context.Background(), "badeline"))

	assert.False(t, s.HasAvatar("badeline"))
	require.NoError(t, os.WriteFile(s.AvatarPath("badeline"), []byte("png"), 0644))
	assert.True(t, s.HasAvatar("badeline"))

	require.NoError(t, s.RemoveUserDir("badeline"))
	_, err := os.Stat(s.UserDir("badeline"))
	assert.True(t, os.IsNotExist(err))

	// Removing again is fine.
	assert.NoError(t, s.RemoveUserDir("badeline"))
}
