// ABOUTME: Mock KeyStore implementation for testing
// ABOUTME: Allows key lookup consumers to run without SQLite

package store

import (
	"context"
	"fmt"
	"sync"
)

// MockStore is an in-memory KeyStore implementation for testing.
type MockStore struct {
	mu    sync.RWMutex
	keys  map[string]string // uid -> short key
	uids  map[string]string // short key -> uid
	bans  map[string][]byte // uid -> encoded BanInfo record
	calls int
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		keys: make(map[string]string),
		uids: make(map[string]string),
		bans: make(map[string][]byte),
	}
}

// CreateUser assigns a fresh key unless one exists and forceNewKey is false.
func (m *MockStore) CreateUser(ctx context.Context, uid string, forceNewKey bool) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if key, ok := m.keys[uid]; ok && !forceNewKey {
		return key, false, nil
	}
	_, key := newKeyPair()
	m.setKeyLocked(uid, key)
	return key, true, nil
}

// RotateKey replaces the key of an existing uid.
func (m *MockStore) RotateKey(ctx context.Context, uid string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if _, ok := m.keys[uid]; !ok {
		return "", ErrNotFound
	}
	_, key := newKeyPair()
	m.setKeyLocked(uid, key)
	return key, nil
}

// LookupUIDByKey returns the uid owning key or "".
func (m *MockStore) LookupUIDByKey(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.uids[key], nil
}

// LookupKeyByUID returns the key of uid or "".
func (m *MockStore) LookupKeyByUID(ctx context.Context, uid string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.keys[uid], nil
}

// SetKey forces a specific key for uid.
func (m *MockStore) SetKey(uid, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setKeyLocked(uid, key)
}

// PutRecord stores payload for uid under BanInfo-like names. Only one name is tracked per uid.
func (m *MockStore) PutRecord(uid string, payload any) error {
	data, err := Encode(payload)
	if err != nil {
		return fmt.Errorf("encoding mock record: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bans[uid] = data
	return nil
}

// GetTypedRecord decodes the record stored with PutRecord.
func (m *MockStore) GetTypedRecord(ctx context.Context, uid, logicalName string, out any) (bool, error) {
	m.mu.RLock()
	data, ok := m.bans[uid]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, Decode(data, out)
}

// Calls returns how many mutating calls were made.
func (m *MockStore) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

func (m *MockStore) setKeyLocked(uid, key string) {
	if old, ok := m.keys[uid]; ok {
		delete(m.uids, old)
	}
	m.keys[uid] = key
	m.uids[key] = uid
}

// Compile-time interface check
var _ KeyStore = (*MockStore)(nil)
