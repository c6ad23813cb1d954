// Package storage provides durable blob stores for the persistent cache
// tier: an in-memory store, a directory of atomically written files and a
// SQL table through bun.
package storage

import "sync"

// MemoryStore keeps blobs in a map. It is the fallback when no durable store
// is configured and is handy in tests.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// ReadBlob returns a copy of the blob stored under key.
func (m *MemoryStore) ReadBlob(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

// WriteBlob stores a copy of data under key.
func (m *MemoryStore) WriteBlob(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), data...)
	return nil
}

// RemoveBlob deletes key. Removing an absent key is not an error.
func (m *MemoryStore) RemoveBlob(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}
