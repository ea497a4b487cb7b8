package store

import (
	"container/list"
	"sync"
	"time"
)

// lfuEntry tracks a value together with its access frequency and its
// position inside the frequency bucket it currently lives in.
type lfuEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
	freq      int
	elem      *list.Element
}

// LFU is a bounded store evicting from the minimum-frequency bucket.
// Within a bucket, entries are ordered FIFO, so ties evict the entry that
// entered the bucket first.
type LFU struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*lfuEntry
	buckets  map[int]*list.List // frequency -> FIFO of *lfuEntry
	minFreq  int
}

// NewLFU creates an LFU store. A capacity <= 0 disables the store: Put
// becomes a no-op and Get always misses.
func NewLFU(capacity int) *LFU {
	return &LFU{
		capacity: capacity,
		items:    make(map[string]*lfuEntry),
		buckets:  make(map[int]*list.List),
	}
}

// Get returns the value for key and increments its access frequency.
func (s *LFU) Get(key string) ([]byte, bool) {
	e, ok := s.GetEntry(key)
	if !ok {
		return nil, false
	}
	return e.Value, true
}

// GetEntry returns the entry for key and increments its access frequency.
func (s *LFU) GetEntry(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.items[key]
	if !ok {
		return Entry{}, false
	}
	if !ent.expiresAt.IsZero() && time.Now().After(ent.expiresAt) {
		s.removeLocked(ent)
		return Entry{}, false
	}
	s.touchLocked(ent)
	return Entry{Value: ent.value, ExpiresAt: ent.expiresAt}, true
}

// Put inserts or updates key. A new key enters at frequency 1; when at
// capacity, one member of the minimum-frequency bucket is evicted first.
func (s *LFU) Put(key string, value []byte, ttl time.Duration) {
	if s.capacity <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.items[key]; ok {
		ent.value = value
		ent.expiresAt = deadline(ttl)
		s.touchLocked(ent)
		return
	}

	if len(s.items) >= s.capacity {
		s.evictLocked()
	}

	ent := &lfuEntry{key: key, value: value, expiresAt: deadline(ttl), freq: 1}
	ent.elem = s.bucket(1).PushBack(ent)
	s.items[key] = ent
	s.minFreq = 1
}

// Delete removes key and reports whether it was present.
func (s *LFU) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.items[key]
	if !ok {
		return false
	}
	s.removeLocked(ent)
	return true
}

// Len returns the number of resident entries.
func (s *LFU) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Keys returns a snapshot of resident keys.
func (s *LFU) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	return keys
}

// touchLocked moves ent from its current frequency bucket to the next one.
func (s *LFU) touchLocked(ent *lfuEntry) {
	old := s.buckets[ent.freq]
	old.Remove(ent.elem)
	if old.Len() == 0 {
		delete(s.buckets, ent.freq)
		if s.minFreq == ent.freq {
			s.minFreq = ent.freq + 1
		}
	}
	ent.freq++
	ent.elem = s.bucket(ent.freq).PushBack(ent)
}

// evictLocked removes the FIFO head of the minimum-frequency bucket.
func (s *LFU) evictLocked() {
	b := s.buckets[s.minFreq]
	// Deletes can leave minFreq pointing at a drained bucket; walk up to
	// the next populated one.
	for b == nil || b.Len() == 0 {
		s.minFreq++
		b = s.buckets[s.minFreq]
	}
	victim := b.Front().Value.(*lfuEntry)
	s.removeLocked(victim)
}

func (s *LFU) removeLocked(ent *lfuEntry) {
	if b := s.buckets[ent.freq]; b != nil {
		b.Remove(ent.elem)
		if b.Len() == 0 {
			delete(s.buckets, ent.freq)
		}
	}
	delete(s.items, ent.key)
}

func (s *LFU) bucket(freq int) *list.List {
	b, ok := s.buckets[freq]
	if !ok {
		b = list.New()
		s.buckets[freq] = b
	}
	return b
}
