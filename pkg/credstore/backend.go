package credstore

import (
	"context"
	"maps"
	"sync"
)

// KV is a persistent local key-value backend.
type KV interface {
	// Get returns ErrNotFound when key is absent.
	Get(ctx context.Context, key string) (string, error)

	// Put writes values atomically. An empty value deletes the key.
	Put(ctx context.Context, values map[string]string) error

	// Delete removes keys, absent keys are ignored.
	Delete(ctx context.Context, keys ...string) error
}

// MemoryKV is an in-process KV. It does not survive restarts.
type MemoryKV struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{values: make(map[string]string)}
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryKV) Put(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, v := range values {
		if v == "" {
			delete(m.values, k)
			continue
		}
		m.values[k] = v
	}
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

// Snapshot copies the current contents, for tests and debugging.
func (m *MemoryKV) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.values)
}
