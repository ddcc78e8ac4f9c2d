// ABOUTME: Salted PBKDF2-HMAC-SHA256 password hashing
// ABOUTME: Hex salts from 16 random bytes, 100k iterations, constant-time verification

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// Hashing parameters. Changing them invalidates every stored hash.
const (
	PasswordIterations = 100_000
	SaltBytes          = 16
	hashBytes          = sha256.Size
)

// NewSalt returns a random salt as lowercase hex.
func NewSalt() (string, error) {
	b := make([]byte, SaltBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashPassword derives the hex hash of password. The salt is used as its
// hex text, not decoded, so hashes match those written by earlier tooling.
func HashPassword(password, salt string) string {
	key := pbkdf2.Key([]byte(password), []byte(salt), PasswordIterations, hashBytes, sha256.New)
	return hex.EncodeToString(key)
}

// CheckPassword reports whether password matches storedHash under salt.
func CheckPassword(password, salt, storedHash string) bool {
	computed := HashPassword(password, salt)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}
