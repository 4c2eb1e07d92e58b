package cache

import (
	"sync"
	"time"

	"portfoliodash/internal/provider"
)

// DefaultTTL is the freshness window used when none is configured.
const DefaultTTL = 60 * time.Second

// Entry is the last known quote for a symbol.
// ExpiresAt is always FetchedAt + TTL.
type Entry struct {
	Data      provider.Data
	FetchedAt time.Time
	ExpiresAt time.Time
}

// Store caches quote data per normalized symbol for a TTL.
// Entries are never removed; an expired entry stays readable until the
// next successful fetch overwrites it.
type Store struct {
	ttl time.Duration

	mu    sync.RWMutex
	items map[string]Entry // key: normalized symbol
}

func New(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{ttl: ttl, items: make(map[string]Entry)}
}

func (s *Store) TTL() time.Duration { return s.ttl }

// Get returns the entry for symbol regardless of freshness.
func (s *Store) Get(symbol string) (Entry, bool) {
	s.mu.RLock()
	e, ok := s.items[provider.Normalize(symbol)]
	s.mu.RUnlock()
	return e, ok
}

// Put replaces the entry for symbol as a whole record.
func (s *Store) Put(symbol string, data provider.Data, now time.Time) Entry {
	e := Entry{Data: data, FetchedAt: now, ExpiresAt: now.Add(s.ttl)}
	s.mu.Lock()
	s.items[provider.Normalize(symbol)] = e
	s.mu.Unlock()
	return e
}

// IsFresh reports whether symbol has an entry that has not expired at now.
func (s *Store) IsFresh(symbol string, now time.Time) bool {
	e, ok := s.Get(symbol)
	return ok && now.Before(e.ExpiresAt)
}

// Len is the number of distinct symbols ever stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
