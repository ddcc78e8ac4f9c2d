// ABOUTME: User lifecycle operations combining keys, profile documents, bans, avatars and credentials
// ABOUTME: Shared by the web API, the lookup service and the command line tool

package users

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"time"

	"github.com/LyceenAiro/CelesteNet-UserTool/internal/auth"
	"github.com/LyceenAiro/CelesteNet-UserTool/internal/profile"
	"github.com/LyceenAiro/CelesteNet-UserTool/internal/store"
)

// Logical record and file names read by the game server.
const (
	RecordBasicUserInfo = "BasicUserInfo"
	RecordBanInfo       = "BanInfo"
	FileAvatar          = "avatar.png"
)

var (
	// ErrAlreadyRegistered is returned when creating a uid that already has a key.
	ErrAlreadyRegistered = errors.New("user already registered")

	// ErrInvalidDuration is returned for negative ban durations.
	ErrInvalidDuration = errors.New("ban duration must not be negative")

	// ErrNoProfile is returned when an operation needs a profile that does not exist.
	ErrNoProfile = profile.ErrNoProfile
)

var hexKeyPattern = regexp.MustCompile(`^[0-9a-fA-F]{16}$`)

// Options configures a Service.
type Options struct {
	// SuperAdmins are granted admin on boot and may manage other admins.
	SuperAdmins []string
	// RemoveSuperAdmins lose admin on boot.
	RemoveSuperAdmins []string
	// DisplayZone formats ban timestamps. Defaults to UTC+8.
	DisplayZone *time.Location
	Logger      *slog.Logger
	// Now is replaced in tests.
	Now func() time.Time
}

// Service implements the user lifecycle on top of the storage engine.
type Service struct {
	store       store.Store
	profiles    *profile.Store
	creds       *auth.Credentials
	superAdmins []string
	removals    []string
	zone        *time.Location
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a Service. The store's user initializer should be profiles.Create
// so new users get a default profile before their key is committed.
func New(s store.Store, profiles *profile.Store, creds *auth.Credentials, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DisplayZone == nil {
		opts.DisplayZone = DisplayZone(8)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:       s,
		profiles:    profiles,
		creds:       creds,
		superAdmins: opts.SuperAdmins,
		removals:    opts.RemoveSuperAdmins,
		zone:        opts.DisplayZone,
		logger:      opts.Logger.With("component", "users"),
		now:         opts.Now,
	}
}

// DisplayZone returns a fixed zone hours east of UTC.
func DisplayZone(hours int) *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", hours), hours*3600)
}

// Profiles exposes the profile store for path lookups.
func (s *Service) Profiles() *profile.Store { return s.profiles }

// Credentials exposes the credential service.
func (s *Service) Credentials() *auth.Credentials { return s.creds }

// CreateUserData registers uid. With a password, web credentials are stored
// first and a conflict aborts before the storage engine is touched.
func (s *Service) CreateUserData(ctx context.Context, uid string, password, email *string) (string, error) {
	if password != nil {
		if err := s.creds.Register(ctx, uid, *password, email); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return "", fmt.Errorf("%w: %s", ErrAlreadyRegistered, uid)
			}
			return "", err
		}
	}

	key, created, err := s.store.CreateUser(ctx, uid, false)
	if err == nil && !created {
		err = fmt.Errorf("%w: %s", ErrAlreadyRegistered, uid)
	}
	if err != nil {
		if password != nil {
			if rmErr := s.creds.Remove(ctx, uid); rmErr != nil {
				s.logger.Warn("rolling back credential failed", "uid", uid, "error", rmErr)
			}
		}
		s.logger.Error("create user failed", "uid", uid, "error", err)
		return "", err
	}
	s.logger.Info("user created", "uid", uid, "key", key)

	if err := s.pushProfile(ctx, uid); err != nil {
		return key, err
	}
	return key, nil
}

// RotateKey issues a new key for uid.
func (s *Service) RotateKey(ctx context.Context, uid string) (string, error) {
	key, err := s.store.RotateKey(ctx, uid)
	if err != nil {
		return "", err
	}
	s.logger.Info("key rotated", "uid", uid, "key", key)
	return key, nil
}

// pushProfile copies the profile document into the BasicUserInfo record.
func (s *Service) pushProfile(ctx context.Context, uid string) error {
	doc, err := s.profiles.Document(uid)
	if err != nil {
		return err
	}
	if err := s.store.UpsertTypedRecord(ctx, uid, RecordBasicUserInfo, doc); err != nil {
		return fmt.Errorf("storing profile of %s: %w", uid, err)
	}
	return nil
}

func (s *Service) editProfile(ctx context.Context, uid, op string, fn func(*profile.BasicUserInfo) bool) error {
	if _, err := s.profiles.Update(uid, fn); err != nil {
		s.logger.Error(op+" failed", "uid", uid, "error", err)
		return err
	}
	if err := s.pushProfile(ctx, uid); err != nil {
		s.logger.Error(op+" failed", "uid", uid, "error", err)
		return err
	}
	s.logger.Info(op, "uid", uid)
	return nil
}

// ChangeName sets the display name of uid.
func (s *Service) ChangeName(ctx context.Context, uid, name string) error {
	return s.editProfile(ctx, uid, "name changed", func(b *profile.BasicUserInfo) bool {
		b.Name = name
		return true
	})
}

// GiveOp adds the admin tag. Granting twice is not an error.
func (s *Service) GiveOp(ctx context.Context, uid string) error {
	return s.editProfile(ctx, uid, "admin granted", func(b *profile.BasicUserInfo) bool {
		return b.AddTag(profile.TagAdmin)
	})
}

// DeOp removes the admin tag. Revoking an absent tag is not an error.
func (s *Service) DeOp(ctx context.Context, uid string) error {
	return s.editProfile(ctx, uid, "admin revoked", func(b *profile.BasicUserInfo) bool {
		return b.RemoveTag(profile.TagAdmin)
	})
}

// IsAdmin reports whether the profile of uid carries the admin tag. A
// missing profile is not an admin.
func (s *Service) IsAdmin(ctx context.Context, uid string) (bool, error) {
	info, err := s.profiles.Load(uid)
	if isMissingUser(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.HasTag(profile.TagAdmin), nil
}

// IsSuperAdmin reports whether uid is a configured super admin.
func (s *Service) IsSuperAdmin(uid string) bool {
	return slices.Contains(s.superAdmins, uid)
}

// ApplySuperAdmins grants admin to configured super admins and revokes it
// from configured removals. Users without a profile are skipped.
func (s *Service) ApplySuperAdmins(ctx context.Context) {
	apply := func(uids []string, fn func(context.Context, string) error, what string) {
		for _, uid := range uids {
			err := fn(ctx, uid)
			switch {
			case isMissingUser(err):
				s.logger.Warn(what+" skipped, no profile", "uid", uid)
			case err != nil:
				s.logger.Error(what+" failed", "uid", uid, "error", err)
			}
		}
	}
	apply(s.superAdmins, s.GiveOp, "super admin grant")
	apply(s.removals, s.DeOp, "super admin revoke")
}

// UserInfo is the merged view of one user.
type UserInfo struct {
	UID    string  `json:"uid"`
	Key    string  `json:"key"`
	Name   string  `json:"name"`
	Avatar bool    `json:"Avatar"`
	Admin  bool    `json:"Admin"`
	Email  *string `json:"Email"`
}

// GetUserInfo resolves identifier, a 16-hex key or a uid, and merges the
// profile, avatar presence and credential email. It returns nil when the
// identifier does not resolve.
func (s *Service) GetUserInfo(ctx context.Context, identifier string) (*UserInfo, error) {
	info := &UserInfo{}
	var err error
	if hexKeyPattern.MatchString(identifier) {
		info.Key = identifier
		info.UID, err = s.store.LookupUIDByKey(ctx, identifier)
	} else {
		info.UID = identifier
		info.Key, err = s.store.LookupKeyByUID(ctx, identifier)
	}
	if err != nil {
		return nil, err
	}
	if info.UID == "" || info.Key == "" {
		s.logger.Warn("no user matches identifier", "identifier", identifier)
		return nil, nil
	}

	if info.Email, err = s.creds.Email(ctx, info.UID); err != nil {
		return nil, err
	}

	p, err := s.profiles.Load(info.UID)
	switch {
	case errors.Is(err, profile.ErrNoProfile):
		info.Name = info.UID
	case err != nil:
		return nil, err
	default:
		info.Name = p.Name
		info.Admin = p.HasTag(profile.TagAdmin)
	}
	info.Avatar = s.profiles.HasAvatar(info.UID)
	return info, nil
}

// CheckCleanup removes every stored row of uid when it has no key.
func (s *Service) CheckCleanup(ctx context.Context, uid string) (bool, error) {
	cleaned, err := s.store.CheckCleanup(ctx, uid)
	if err != nil {
		return false, err
	}
	if cleaned {
		s.logger.Info("orphaned rows removed", "uid", uid)
	}
	return cleaned, nil
}

// RemoveUser wipes every stored row of uid and deletes its user directory.
// Storage failures abort. Filesystem failures after a successful wipe are
// logged only.
func (s *Service) RemoveUser(ctx context.Context, uid string) error {
	if err := s.store.Wipe(ctx, uid); err != nil {
		s.logger.Error("wipe failed", "uid", uid, "error", err)
		return err
	}
	s.logger.Info("user data removed", "uid", uid)

	err := s.profiles.RemoveUserDir(uid)
	switch {
	case err == nil, errors.Is(err, fs.ErrNotExist):
	case errors.Is(err, fs.ErrPermission):
		s.logger.Warn("removing user directory: permission denied", "uid", uid, "error", err)
	default:
		s.logger.Warn("removing user directory failed", "uid", uid, "error", err)
	}
	return nil
}

// ListUsers returns every meta row.
func (s *Service) ListUsers(ctx context.Context) ([]*store.UserRecord, error) {
	return s.store.ListUsers(ctx)
}

// CountUsers returns how many uids hold a key.
func (s *Service) CountUsers(ctx context.Context) (int, error) {
	return s.store.CountUsers(ctx)
}

func removeQuiet(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Default().Debug("removing temp file", "path", path, "error", err)
	}
}
