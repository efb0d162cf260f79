package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Entry is a single cached value together with its expiry metadata.
type Entry struct {
	Value     interface{}
	CreatedAt time.Time
	ExpiresAt time.Time
}

// expired reports whether the entry has passed its expiry time.
func (e *Entry) expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Stats describes the current state of the store.
type Stats struct {
	TotalEntries   int     `json:"total_entries"`
	ExpiredEntries int     `json:"expired_entries"`
	ActiveEntries  int     `json:"active_entries"`
	TotalSizeBytes int     `json:"total_size_bytes"`
	TotalSizeKB    float64 `json:"total_size_kb"`
}

// Store is a thread-safe in-memory key/value store with per-entry TTL.
// Expired entries are removed lazily on read and in bulk by Sweep.
type Store struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*Entry),
	}
}

// Get returns the value stored under key if it exists and has not expired.
// A hit on an expired entry removes the entry as a side effect and reports
// the key as absent.
func (s *Store) Get(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if entry.expired(time.Now()) {
		delete(s.entries, key)
		return nil, false
	}
	return entry.Value, true
}

// Set inserts or overwrites the value under key with the given TTL.
// The store does not enforce an upper bound on the TTL.
func (s *Store) Set(key string, value interface{}, ttl time.Duration) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &Entry{
		Value:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Delete removes the entry under key, if any.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Clear removes all entries when namespace is empty, otherwise only the
// entries whose key is prefixed by the namespace. It returns the number of
// entries removed.
func (s *Store) Clear(namespace string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if namespace == "" {
		removed := len(s.entries)
		s.entries = make(map[string]*Entry)
		return removed
	}

	removed := 0
	for key := range s.entries {
		if strings.HasPrefix(key, namespace) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Sweep removes every entry whose expiry has passed and returns how many
// were removed. It is intended to be run periodically, independent of Get.
func (s *Store) Sweep() int {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if entry.expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries currently held, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stats returns entry counts and an approximate total serialized size.
// The size is estimated from the JSON encoding of each value; values that
// cannot be encoded contribute nothing.
func (s *Store) Stats() Stats {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{TotalEntries: len(s.entries)}
	for _, entry := range s.entries {
		if entry.expired(now) {
			st.ExpiredEntries++
		}
		if data, err := json.Marshal(entry.Value); err == nil {
			st.TotalSizeBytes += len(data)
		}
	}
	st.ActiveEntries = st.TotalEntries - st.ExpiredEntries
	st.TotalSizeKB = float64(st.TotalSizeBytes) / 1024
	return st
}

// StartJanitor starts a goroutine that sweeps expired entries every
// interval until the context is cancelled.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}
