// ABOUTME: Avatar handling: global upload cache, 64x64 thumbnail and file table upload
// ABOUTME: The thumbnail step is best effort; the upload step reports every fault

package users

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/LyceenAiro/CelesteNet-UserTool/internal/avatar"
)

// SaveGlobalAvatar decodes an uploaded image and stores it as GlobalAvatar/{uid}.png.
func (s *Service) SaveGlobalAvatar(uid string, r io.Reader) error {
	if err := os.MkdirAll(s.profiles.GlobalAvatarDir(), 0755); err != nil {
		return fmt.Errorf("creating avatar directory: %w", err)
	}
	dst := s.profiles.GlobalAvatarPath(uid)
	tmp := dst + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating avatar file: %w", err)
	}
	if err := avatar.ToPNG(r, f); err != nil {
		f.Close()
		removeQuiet(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		removeQuiet(tmp)
		return fmt.Errorf("writing avatar file: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		removeQuiet(tmp)
		return fmt.Errorf("writing avatar file: %w", err)
	}
	return nil
}

// thumbnailGlobal writes User/{uid}/avatar.png from GlobalAvatar/{uid}.png.
func (s *Service) thumbnailGlobal(uid string) error {
	src, err := os.Open(s.profiles.GlobalAvatarPath(uid))
	if err != nil {
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(s.profiles.UserDir(uid), 0755); err != nil {
		return err
	}
	dst, err := os.Create(s.profiles.AvatarPath(uid))
	if err != nil {
		return err
	}
	if err := avatar.Thumbnail(src, dst); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// InsertAvatar refreshes the local thumbnail from the global cache when one
// exists and uploads User/{uid}/avatar.png to the avatar file table.
func (s *Service) InsertAvatar(ctx context.Context, uid string) error {
	if err := os.MkdirAll(s.profiles.GlobalAvatarDir(), 0755); err != nil {
		s.logger.Warn("creating avatar directory failed", "error", err)
	}
	switch err := s.thumbnailGlobal(uid); {
	case err == nil:
		s.logger.Info("global avatar resized", "uid", uid)
	case errors.Is(err, fs.ErrNotExist):
	default:
		s.logger.Error("resizing global avatar failed", "uid", uid, "error", err)
	}

	f, err := os.Open(s.profiles.AvatarPath(uid))
	if err != nil {
		return fmt.Errorf("opening avatar of %s: %w", uid, err)
	}
	defer f.Close()

	buf := s.store.OpenWriteBuffer(uid, FileAvatar)
	if _, err := buf.ReadFrom(f); err != nil {
		buf.Discard()
		return fmt.Errorf("reading avatar of %s: %w", uid, err)
	}
	size := buf.Len()
	if err := s.store.Commit(ctx, buf); err != nil {
		s.logger.Error("avatar upload failed", "uid", uid, "error", err)
		return err
	}
	s.logger.Info("avatar updated", "uid", uid, "bytes", size)
	return nil
}

// Avatar opens the stored avatar of uid. found is false when none is stored.
func (s *Service) Avatar(ctx context.Context, uid string) (io.ReadCloser, bool, error) {
	return s.store.ReadBlob(ctx, uid, FileAvatar)
}
