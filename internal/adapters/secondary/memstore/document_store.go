// Package memstore provides in-memory implementations of the engine's
// storage ports, suitable for single-process deployments and tests.
package memstore

import (
	"context"
	"sync"

	"github.com/sufield/fan/internal/core/domain"
	"github.com/sufield/fan/internal/core/ports"
)

// DocumentStore implements ports.DocumentStore over a map guarded by a
// read-write mutex. Reads share the lock, so concurrent lookups of
// unrelated keys never serialize on anything slower than the map itself.
type DocumentStore struct {
	mu      sync.RWMutex
	entries map[string]*domain.CacheEntry
}

// NewDocumentStore creates an empty DocumentStore.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{entries: make(map[string]*domain.CacheEntry)}
}

var _ ports.DocumentStore = (*DocumentStore)(nil)

// Get returns the entry stored under key, or ErrNotFound.
func (s *DocumentStore) Get(ctx context.Context, key string) (*domain.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return entry, nil
}

// Put stores entry under key, replacing any previous entry.
func (s *DocumentStore) Put(ctx context.Context, key string, entry *domain.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
	return nil
}

// Delete removes the entry under key.
func (s *DocumentStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// DeleteDomain removes every entry whose document is bound to domainName
// and returns how many were dropped.
func (s *DocumentStore) DeleteDomain(ctx context.Context, domainName string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for key, entry := range s.entries {
		if entry.DID().Domain() == domainName {
			delete(s.entries, key)
			dropped++
		}
	}
	return dropped, nil
}

// Len returns how many entries the store currently holds.
func (s *DocumentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
