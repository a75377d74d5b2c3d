package storage

import (
	"context"
	"io"
	"sync"
)

var _ Provider = (*MemoryProvider)(nil)

// MemoryProvider is a thread-safe Fake for testing.
// It stores object bodies in a map keyed by object name.
type MemoryProvider struct {
	mu      sync.RWMutex
	objects map[string][]byte
	puts    int

	// FailPut, when set, makes Put return it once FailAfterN puts have
	// succeeded. Lets tests exercise the upload-failure and rollback paths.
	FailPut    error
	FailAfterN int
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{objects: make(map[string][]byte)}
}

func (m *MemoryProvider) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (Object, error) {
	m.mu.Lock()
	if m.FailPut != nil && m.puts >= m.FailAfterN {
		m.mu.Unlock()
		return Object{}, m.FailPut
	}
	m.puts++
	m.mu.Unlock()

	data, err := io.ReadAll(r)
	if err != nil {
		return Object{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data

	return Object{Key: key, URL: "memory://" + key}, nil
}

func (m *MemoryProvider) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Real stores don't error on deleting a missing key, so neither do we.
	delete(m.objects, key)
	return nil
}

// --- Test Helper Methods (Not part of Provider interface) ---

// Has reports whether an object with the given key was stored.
func (m *MemoryProvider) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok
}

// Len reports how many objects are currently stored.
func (m *MemoryProvider) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// Keys returns the stored object names, for asserting on key shapes.
func (m *MemoryProvider) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}
