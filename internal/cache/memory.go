package cache

import (
	"sync"
	"time"
)

type memoryEntry struct {
	value    any
	storedAt time.Time
	ttl      time.Duration
}

// MemoryStore is the first cache layer: a keyed in-memory map with per-entry
// time-to-live. Expiry is checked lazily on read; there is no background sweep.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory cache layer.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns the cached value, removing and missing entries past their TTL.
func (m *MemoryStore) Get(key string) (any, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if m.now().Sub(e.storedAt) > e.ttl {
		m.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have refreshed it.
		if cur, still := m.entries[key]; still && m.now().Sub(cur.storedAt) > cur.ttl {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Set stores the value under the key with the given TTL.
func (m *MemoryStore) Set(key string, value any, ttl time.Duration) {
	m.mu.Lock()
	m.entries[key] = memoryEntry{value: value, storedAt: m.now(), ttl: ttl}
	m.mu.Unlock()
}

// Has reports whether a live entry exists for the key.
func (m *MemoryStore) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Delete removes the entry for the key, if any.
func (m *MemoryStore) Delete(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// Clear drops every entry.
func (m *MemoryStore) Clear() {
	m.mu.Lock()
	m.entries = make(map[string]memoryEntry)
	m.mu.Unlock()
}
