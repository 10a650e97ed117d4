package store

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps values in process memory. It backs tests and the
// --memory serve mode.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte

	// FailPut, when set, is returned by every Put. Tests use it to exercise
	// persist-failure paths.
	FailPut error
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return slices.Clone(v), ok, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPut != nil {
		return m.FailPut
	}
	m.data[key] = slices.Clone(value)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// SetFailPut sets FailPut under the store lock.
func (m *MemoryStore) SetFailPut(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailPut = err
}
