// Package cache provides the in-memory TTL map and the cache-key
// derivation rules shared by the caching layers.
package cache

import (
	"sync"
	"time"
)

// TTLMap is a key→value store with a single expiry horizon. Expiry is
// checked lazily at read time; there is no background sweep. An entry
// read at exactly its deadline is still a hit.
type TTLMap[V any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]ttlEntry[V]
	now     func() time.Time
}

type ttlEntry[V any] struct {
	value     V
	writtenAt time.Time
}

// NewTTLMap creates a TTLMap whose entries live for ttl after each write.
func NewTTLMap[V any](ttl time.Duration) *TTLMap[V] {
	return &TTLMap[V]{
		ttl:     ttl,
		entries: make(map[string]ttlEntry[V]),
		now:     time.Now,
	}
}

// Get returns the value for key if present and unexpired. An expired
// entry is deleted on detection and reported as a miss.
func (m *TTLMap[V]) Get(key string) (V, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if m.now().Sub(e.writtenAt) > m.ttl {
		m.mu.Lock()
		// Re-check under the write lock; another writer may have
		// refreshed the entry between the two lock acquisitions.
		if cur, still := m.entries[key]; still && m.now().Sub(cur.writtenAt) > m.ttl {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, resetting its expiry clock.
func (m *TTLMap[V]) Set(key string, value V) {
	m.mu.Lock()
	m.entries[key] = ttlEntry[V]{value: value, writtenAt: m.now()}
	m.mu.Unlock()
}

// Delete removes key if present.
func (m *TTLMap[V]) Delete(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// Len reports the number of stored entries, expired ones included.
func (m *TTLMap[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
