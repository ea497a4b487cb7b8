package store

import (
	"container/list"
	"sync"
	"time"
)

// lruEntry is the list payload: key stays alongside the value so eviction
// can unmap the tail without a reverse lookup.
type lruEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// LRU is a bounded store evicting the least-recently-used entry.
// Front of the list is the most recently used position.
type LRU struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List
}

// NewLRU creates an LRU store. A capacity <= 0 disables the store: Put
// becomes a no-op and Get always misses.
func NewLRU(capacity int) *LRU {
	return &LRU{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the value for key and marks it most recently used.
func (s *LRU) Get(key string) ([]byte, bool) {
	e, ok := s.GetEntry(key)
	if !ok {
		return nil, false
	}
	return e.Value, true
}

// GetEntry returns the entry for key and marks it most recently used.
func (s *LRU) GetEntry(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		return Entry{}, false
	}
	ent := elem.Value.(*lruEntry)
	if !ent.expiresAt.IsZero() && time.Now().After(ent.expiresAt) {
		s.removeLocked(elem, ent)
		return Entry{}, false
	}
	s.order.MoveToFront(elem)
	return Entry{Value: ent.value, ExpiresAt: ent.expiresAt}, true
}

// Put inserts or updates key as the most recently used entry, evicting the
// least recently used entry when at capacity.
func (s *LRU) Put(key string, value []byte, ttl time.Duration) {
	if s.capacity <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		ent := elem.Value.(*lruEntry)
		ent.value = value
		ent.expiresAt = deadline(ttl)
		s.order.MoveToFront(elem)
		return
	}

	if s.order.Len() >= s.capacity {
		if tail := s.order.Back(); tail != nil {
			s.removeLocked(tail, tail.Value.(*lruEntry))
		}
	}

	ent := &lruEntry{key: key, value: value, expiresAt: deadline(ttl)}
	s.items[key] = s.order.PushFront(ent)
}

// Delete removes key and reports whether it was present.
func (s *LRU) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		return false
	}
	s.removeLocked(elem, elem.Value.(*lruEntry))
	return true
}

// Len returns the number of resident entries.
func (s *LRU) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// Keys returns a snapshot of resident keys.
func (s *LRU) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	return keys
}

func (s *LRU) removeLocked(elem *list.Element, ent *lruEntry) {
	s.order.Remove(elem)
	delete(s.items, ent.key)
}
