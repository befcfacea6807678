package search

import (
	"sync"

	"github.com/mirrorlens/mirrorlens/internal/metrics"
)

// Slot is the single cached (query, filter, results) triple for a session.
type Slot struct {
	Query   string
	Filter  FilterKind
	Results []Result
}

// SessionStore is the session-scoped storage behind the result cache.
type SessionStore interface {
	Get(session string) (*Slot, bool)
	Put(session string, slot *Slot)
}

// ResultCache memoizes the most recent search per session so that paging
// through results does not recompute them. One slot per session; a new
// (query, filter) pair overwrites it unconditionally.
type ResultCache struct {
	sessions SessionStore
}

// NewResultCache creates a result cache over the given session store.
func NewResultCache(sessions SessionStore) *ResultCache {
	return &ResultCache{sessions: sessions}
}

// Get returns the cached results for the session iff both query and filter
// match the stored slot exactly.
func (c *ResultCache) Get(session, query string, filter FilterKind) ([]Result, bool) {
	slot, ok := c.sessions.Get(session)
	if !ok || slot.Query != query || slot.Filter != filter {
		metrics.RecordResultCache(false)
		return nil, false
	}
	metrics.RecordResultCache(true)
	return slot.Results, true
}

// Put replaces the session's slot.
func (c *ResultCache) Put(session, query string, filter FilterKind, results []Result) {
	c.sessions.Put(session, &Slot{Query: query, Filter: filter, Results: results})
}

// MemorySessionStore is an in-process SessionStore.
type MemorySessionStore struct {
	mu    sync.RWMutex
	slots map[string]*Slot
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{slots: make(map[string]*Slot)}
}

// Get returns the session's slot.
func (s *MemorySessionStore) Get(session string) (*Slot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.slots[session]
	return slot, ok
}

// Put stores the session's slot.
func (s *MemorySessionStore) Put(session string, slot *Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[session] = slot
}
