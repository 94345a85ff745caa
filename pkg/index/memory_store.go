package index

import (
	"context"
	"sync"
)

// MemoryStore keeps indexes in process memory. Used by tests and ephemeral runs.
type MemoryStore struct {
	mu      sync.RWMutex
	indexes map[string]memoryIndex
}

type memoryIndex struct {
	manifest Manifest
	entries  []Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{indexes: make(map[string]memoryIndex)}
}

func (s *MemoryStore) Replace(_ context.Context, m Manifest, entries []Entry) error {
	cp := make([]Entry, len(entries))
	for i, e := range entries {
		cp[i] = cloneEntry(e)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes[m.Name] = memoryIndex{manifest: m, entries: cp}
	return nil
}

func (s *MemoryStore) Manifest(_ context.Context, name string) (Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ix, ok := s.indexes[name]
	if !ok {
		return Manifest{}, ErrIndexNotFound
	}
	return ix.manifest, nil
}

func (s *MemoryStore) Search(_ context.Context, name string, vec []float32, k int) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ix, ok := s.indexes[name]
	if !ok {
		return nil, ErrIndexNotFound
	}
	return rank(vec, ix.entries, k), nil
}

func (s *MemoryStore) Close() error { return nil }
