// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httpcache persists API responses keyed by request fingerprint.
// The store is injected into the API client so tests can substitute an
// in-memory implementation.
package httpcache

import (
	"sort"
	"sync"
	"time"

	"github.com/seqlab/negscan/pkg/types"
)

// Store is a durable key→response mapping. Expiry is lazy: readers
// decide whether an entry is too old; EvictExpired exists for explicit
// housekeeping.
type Store interface {
	// Get returns the entry for key, whether it was found, and any
	// storage error. Found entries may still be expired by TTL; the
	// caller checks SavedAt.
	Get(key string) (*types.CacheEntry, bool, error)

	// Put stores or overwrites the entry for key.
	Put(key string, entry *types.CacheEntry) error

	// EvictExpired deletes entries saved before cutoff and returns
	// the number removed.
	EvictExpired(cutoff time.Time) (int, error)

	// Clear removes all entries.
	Clear() error

	// Close releases underlying resources.
	Close() error
}

// MemoryStore is a map-backed Store for tests and cache-off mode.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]types.CacheEntry
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]types.CacheEntry)}
}

// Get implements Store.
func (m *MemoryStore) Get(key string) (*types.CacheEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	out := e
	return &out, true, nil
}

// Put implements Store.
func (m *MemoryStore) Put(key string, entry *types.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = *entry
	return nil
}

// EvictExpired implements Store.
func (m *MemoryStore) EvictExpired(cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for k, e := range m.entries {
		if e.SavedAt.Before(cutoff) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed, nil
}

// Clear implements Store.
func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]types.CacheEntry)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }

// Keys returns the stored keys in sorted order. Test helper.
func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
