package store

import (
	"sync"

	"github.com/reachcore/journal/digest"
)

// MemoryBackend is an in-process Backend: a mutex-guarded map from digest
// to packed bytes. Safe under concurrent commits of equal content, as
// required by spec.md section 4.3.
type MemoryBackend struct {
	mu      sync.RWMutex
	objects map[digest.Digest][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{objects: make(map[digest.Digest][]byte)}
}

func (m *MemoryBackend) Commit(d digest.Digest, packed []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.objects[d]; exists {
		return nil
	}
	cp := make([]byte, len(packed))
	copy(cp, packed)
	m.objects[d] = cp
	return nil
}

func (m *MemoryBackend) Has(d digest.Digest) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[d]
	return ok, nil
}

func (m *MemoryBackend) Get(d digest.Digest) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objects[d]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp, nil
}

// GC is a no-op: a MemoryBackend has no debris beyond the map entries
// themselves, and those are live digests it must never remove unasked.
func (m *MemoryBackend) GC() (int, error) { return 0, nil }

func (m *MemoryBackend) Stats() (count int, bytes int64, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.objects {
		count++
		bytes += int64(len(b))
	}
	return count, bytes, nil
}
