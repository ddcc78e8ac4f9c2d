// ABOUTME: Filesystem profile documents under {root}/User/{uid}/BasicUserInfo.yaml
// ABOUTME: Loads, saves and removes per-user directories and reports avatar presence

package profile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// File and directory names inside the data root.
const (
	UserDirName         = "User"
	GlobalAvatarDirName = "GlobalAvatar"
	ProfileFileName     = "BasicUserInfo.yaml"
	AvatarFileName      = "avatar.png"
)

// Tags carried by every profile.
const (
	TagUser  = "user"
	TagAdmin = "admin"
)

// ErrNoProfile is returned when a uid has no profile document.
var ErrNoProfile = errors.New("profile not found")

// ErrInvalidUID is returned for uids that would escape the data root.
var ErrInvalidUID = errors.New("invalid uid")

// BasicUserInfo is the profile document read by the game server.
type BasicUserInfo struct {
	Name    string   `yaml:"Name"`
	Discrim string   `yaml:"Discrim"`
	Tags    []string `yaml:"Tags"`

	// Extra keeps fields written by other tools across a load/save cycle.
	Extra map[string]any `yaml:",inline"`
}

// HasTag reports whether tag is present.
func (b *BasicUserInfo) HasTag(tag string) bool {
	return slices.Contains(b.Tags, tag)
}

// AddTag adds tag if missing and reports whether anything changed.
func (b *BasicUserInfo) AddTag(tag string) bool {
	if b.HasTag(tag) {
		return false
	}
	b.Tags = append(b.Tags, tag)
	return true
}

// RemoveTag removes every occurrence of tag and reports whether anything changed.
func (b *BasicUserInfo) RemoveTag(tag string) bool {
	before := len(b.Tags)
	b.Tags = slices.DeleteFunc(b.Tags, func(t string) bool { return t == tag })
	return len(b.Tags) != before
}

// Store reads and writes profile files below a data root.
type Store struct {
	root string
}

// NewStore returns a profile store rooted at root.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Root returns the data root.
func (s *Store) Root() string { return s.root }

func checkUID(uid string) error {
	if uid == "" || uid == "." || uid == ".." || strings.ContainsAny(uid, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidUID, uid)
	}
	return nil
}

// UserDir is {root}/User/{uid}.
func (s *Store) UserDir(uid string) string {
	return filepath.Join(s.root, UserDirName, uid)
}

// ProfilePath is {root}/User/{uid}/BasicUserInfo.yaml.
func (s *Store) ProfilePath(uid string) string {
	return filepath.Join(s.UserDir(uid), ProfileFileName)
}

// AvatarPath is {root}/User/{uid}/avatar.png.
func (s *Store) AvatarPath(uid string) string {
	return filepath.Join(s.UserDir(uid), AvatarFileName)
}

// GlobalAvatarDir is {root}/GlobalAvatar.
func (s *Store) GlobalAvatarDir() string {
	return filepath.Join(s.root, GlobalAvatarDirName)
}

// GlobalAvatarPath is {root}/GlobalAvatar/{uid}.png.
func (s *Store) GlobalAvatarPath(uid string) string {
	return filepath.Join(s.GlobalAvatarDir(), uid+".png")
}

// Create writes the default profile for a new uid, replacing any existing one.
// Its signature matches store.UserInitializer.
func (s *Store) Create(ctx context.Context, uid string) error {
	return s.Save(uid, &BasicUserInfo{Name: uid, Discrim: "", Tags: []string{TagUser}})
}

// Load reads the profile of uid.
func (s *Store) Load(uid string) (*BasicUserInfo, error) {
	data, err := s.Raw(uid)
	if err != nil {
		return nil, err
	}
	var info BasicUserInfo
	if err := yaml.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parsing profile of %s: %w", uid, err)
	}
	return &info, nil
}

// Raw returns the profile file bytes of uid.
func (s *Store) Raw(uid string) ([]byte, error) {
	if err := checkUID(uid); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.ProfilePath(uid))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoProfile, uid)
	}
	if err != nil {
		return nil, fmt.Errorf("reading profile of %s: %w", uid, err)
	}
	return data, nil
}

// Document returns the profile of uid as a generic map, keeping fields
// this package does not model.
func (s *Store) Document(uid string) (map[string]any, error) {
	data, err := s.Raw(uid)
	if err != nil {
		return nil, err
	}
	doc := map[string]any{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing profile of %s: %w", uid, err)
	}
	return doc, nil
}

// Save writes info as the profile of uid, creating the user directory.
func (s *Store) Save(uid string, info *BasicUserInfo) error {
	if err := checkUID(uid); err != nil {
		return err
	}
	if err := os.MkdirAll(s.UserDir(uid), 0755); err != nil {
		return fmt.Errorf("creating user directory: %w", err)
	}
	data, err := yaml.Marshal(info)
	if err != nil {
		return fmt.Errorf("encoding profile of %s: %w", uid, err)
	}

	// Write to a temp file and rename so readers never see a partial document.
	tmp := s.ProfilePath(uid) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing profile of %s: %w", uid, err)
	}
	if err := os.Rename(tmp, s.ProfilePath(uid)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("writing profile of %s: %w", uid, err)
	}
	return nil
}

// Update loads the profile of uid, applies fn and saves the result when fn reports a change.
func (s *Store) Update(uid string, fn func(*BasicUserInfo) bool) (*BasicUserInfo, error) {
	info, err := s.Load(uid)
	if err != nil {
		return nil, err
	}
	if !fn(info) {
		return info, nil
	}
	if err := s.Save(uid, info); err != nil {
		return nil, err
	}
	return info, nil
}

// HasAvatar reports whether the local avatar file of uid exists.
func (s *Store) HasAvatar(uid string) bool {
	if checkUID(uid) != nil {
		return false
	}
	_, err := os.Stat(s.AvatarPath(uid))
	return err == nil
}

// RemoveUserDir deletes {root}/User/{uid} recursively. A missing directory is not an error.
func (s *Store) RemoveUserDir(uid string) error {
	if err := checkUID(uid); err != nil {
		return err
	}
	dir := s.UserDir(uid)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return os.RemoveAll(dir)
}
