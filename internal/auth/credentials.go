// ABOUTME: Web credential service: registration, password verification and password change
// ABOUTME: Wraps the web_users persistence with salted PBKDF2 hashing

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/LyceenAiro/CelesteNet-UserTool/internal/store"
)

// ErrEmptyPassword is returned when registering or changing to an empty password.
var ErrEmptyPassword = errors.New("password must not be empty")

// dummySalt keeps unknown-uid verification as slow as a real one.
const dummySalt = "00000000000000000000000000000000"

// Credentials manages web login credentials.
type Credentials struct {
	store  store.CredentialStore
	logger *slog.Logger
}

// NewCredentials creates a credential service backed by s.
func NewCredentials(s store.CredentialStore, logger *slog.Logger) *Credentials {
	if logger == nil {
		logger = slog.Default()
	}
	return &Credentials{store: s, logger: logger.With("component", "credentials")}
}

// Register stores a new credential for uid. An existing uid yields store.ErrAlreadyExists.
func (c *Credentials) Register(ctx context.Context, uid, password string, email *string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	salt, err := NewSalt()
	if err != nil {
		return err
	}

	err = c.store.CreateCredential(ctx, &store.Credential{
		UID:          uid,
		PasswordHash: HashPassword(password, salt),
		Salt:         salt,
		Email:        email,
	})
	if err != nil {
		return fmt.Errorf("registering %s: %w", uid, err)
	}

	c.logger.Info("registered web user", "uid", uid)
	return nil
}

// VerifyPassword reports whether password is correct for uid. Unknown uids
// verify as false without an error.
func (c *Credentials) VerifyPassword(ctx context.Context, uid, password string) (bool, error) {
	cred, err := c.store.GetCredential(ctx, uid)
	if errors.Is(err, store.ErrNotFound) {
		_ = HashPassword(password, dummySalt)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading credential: %w", err)
	}
	return CheckPassword(password, cred.Salt, cred.PasswordHash), nil
}

// UpdatePassword replaces the salt and hash of uid. Unknown uids yield store.ErrNotFound.
func (c *Credentials) UpdatePassword(ctx context.Context, uid, newPassword string) error {
	if newPassword == "" {
		return ErrEmptyPassword
	}
	salt, err := NewSalt()
	if err != nil {
		return err
	}
	if err := c.store.UpdateCredential(ctx, uid, HashPassword(newPassword, salt), salt); err != nil {
		return fmt.Errorf("updating password for %s: %w", uid, err)
	}

	c.logger.Info("password updated", "uid", uid)
	return nil
}

// Email returns the email stored for uid, or nil when none is stored.
func (c *Credentials) Email(ctx context.Context, uid string) (*string, error) {
	cred, err := c.store.GetCredential(ctx, uid)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cred.Email, nil
}

// Remove deletes the credential of uid.
func (c *Credentials) Remove(ctx context.Context, uid string) error {
	return c.store.DeleteCredential(ctx, uid)
}
