// ABOUTME: Store interfaces and data types for CelesteNet user persistence
// ABOUTME: Defines user keys, typed records, file blobs, credentials and the Store contract

package store

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when a unique row (uid, credential) already exists
var ErrAlreadyExists = errors.New("already exists")

// ErrWriteFailed is returned when an upsert reports zero affected rows
var ErrWriteFailed = errors.New("write failed")

// ErrNameCollision is returned when two distinct logical names would share one physical table name
var ErrNameCollision = errors.New("table name collision")

// Record formats stored in the format column of typed records.
const (
	FormatMessagePack = 0
	FormatYAML        = 1
)

// UserRecord is one row of the meta table. Key is always the 16-character
// prefix of KeyFull.
type UserRecord struct {
	UID        string
	Key        string
	KeyFull    string
	Registered bool
}

// Credential is a web login record. PasswordHash and Salt are lowercase hex.
type Credential struct {
	UID          string
	PasswordHash string
	Salt         string
	Email        *string
}

// UserInitializer runs inside user creation, after a fresh key has been
// chosen and before the meta row is written. A failing initializer aborts
// the creation.
type UserInitializer func(ctx context.Context, uid string) error

// KeyStore maps uids to access keys and back.
type KeyStore interface {
	CreateUser(ctx context.Context, uid string, forceNewKey bool) (key string, created bool, err error)
	RotateKey(ctx context.Context, uid string) (string, error)
	LookupUIDByKey(ctx context.Context, key string) (string, error)
	LookupKeyByUID(ctx context.Context, uid string) (string, error)
}

// RecordStore holds typed per-user records keyed by logical name.
type RecordStore interface {
	EnsureDataTable(ctx context.Context, logicalName string) (string, error)
	UpsertTypedRecord(ctx context.Context, uid, logicalName string, payload any) error
	UpsertRawRecord(ctx context.Context, uid, logicalName string, format int, value []byte) error
	GetTypedRecord(ctx context.Context, uid, logicalName string, out any) (bool, error)
	DeleteTypedRecord(ctx context.Context, uid, logicalName string) (bool, error)
}

// BlobStore holds per-user binary files.
type BlobStore interface {
	EnsureFileTable(ctx context.Context, name string) (string, error)
	OpenWriteBuffer(uid, fileName string) *WriteBuffer
	Commit(ctx context.Context, buf *WriteBuffer) error
	ReadBlob(ctx context.Context, uid, fileName string) (io.ReadCloser, bool, error)
}

// CredentialStore persists web login credentials.
type CredentialStore interface {
	CreateCredential(ctx context.Context, c *Credential) error
	GetCredential(ctx context.Context, uid string) (*Credential, error)
	UpdateCredential(ctx context.Context, uid, passwordHash, salt string) error
	DeleteCredential(ctx context.Context, uid string) error
}

// Store is the full persistence contract used by the user lifecycle layer.
type Store interface {
	KeyStore
	RecordStore
	BlobStore
	CredentialStore

	GetUser(ctx context.Context, uid string) (*UserRecord, error)
	ListUsers(ctx context.Context) ([]*UserRecord, error)
	CountUsers(ctx context.Context) (int, error)
	SetRegistered(ctx context.Context, uid string, registered bool) error
	Wipe(ctx context.Context, uid string) error
	CheckCleanup(ctx context.Context, uid string) (bool, error)
	Close() error
}
