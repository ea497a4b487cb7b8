// Package store provides the bounded per-node key-value stores backing a
// cache node. Two eviction policies are available, LRU and LFU; both offer
// O(1) Get/Put and lazy TTL expiry.
package store

import "time"

// Entry is a stored value with its expiry deadline.
type Entry struct {
	Value []byte
	// ExpiresAt is the absolute expiry deadline; zero means no TTL.
	ExpiresAt time.Time
}

// Expired reports whether the entry's deadline has passed at t.
func (e Entry) Expired(t time.Time) bool {
	return !e.ExpiresAt.IsZero() && t.After(e.ExpiresAt)
}

// TTL returns the remaining time to live at t. It returns zero when the
// entry has no deadline and a negative duration when already expired.
func (e Entry) TTL(t time.Time) time.Duration {
	if e.ExpiresAt.IsZero() {
		return 0
	}
	return e.ExpiresAt.Sub(t)
}

// Store is a bounded key-value store with an eviction policy.
// Implementations are safe for concurrent use; a Get mutates
// recency/frequency bookkeeping, so it also takes the write path.
type Store interface {
	// Get returns the value for key. Expired entries are removed and
	// reported as misses.
	Get(key string) ([]byte, bool)

	// GetEntry is Get plus the entry's expiry deadline, for callers that
	// need the remaining TTL (refresh-ahead).
	GetEntry(key string) (Entry, bool)

	// Put inserts or updates key. A non-positive ttl stores the entry
	// without a deadline. On a store built with capacity <= 0, Put is a
	// no-op.
	Put(key string, value []byte, ttl time.Duration)

	// Delete removes key and reports whether it was present.
	Delete(key string) bool

	// Len returns the number of resident entries.
	Len() int

	// Keys returns a snapshot of resident keys in unspecified order.
	// Intended for scan-by-pattern, not for the hot path.
	Keys() []string
}

// deadline converts a relative ttl into an absolute deadline; non-positive
// ttl means no expiry.
func deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}
