package store

import (
	"context"
	"sync"
)

// MemoryStore implements Store with plain maps. It is the fallback when the
// database cannot be opened: sessions keep working for the lifetime of the
// process, they just lose resume-after-restart.
type MemoryStore struct {
	mu    sync.RWMutex
	state map[string]string
	cache map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: make(map[string]string),
		cache: make(map[string][]byte),
	}
}

func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) GetState(_ context.Context, key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	val, ok := m.state[key]
	return val, ok
}

func (m *MemoryStore) SetState(_ context.Context, key, val string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state[key] = val
	return nil
}

func (m *MemoryStore) DeleteState(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state, key)
	return nil
}

func (m *MemoryStore) GetCache(_ context.Context, key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	val, ok := m.cache[key]
	return val, ok
}

func (m *MemoryStore) HasCache(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.cache[key]
	return ok, nil
}

func (m *MemoryStore) SetCache(_ context.Context, key string, val []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[key] = val
	return nil
}
