// Package transport defines the opaque per-node protocol the cache client
// speaks. A node only has to answer four verbs: get, set, delete, and
// scan-by-pattern. The client never assumes anything else about the storage
// engine behind a node address.
package transport

import (
	"context"
	"time"

	"github.com/devrev/cachemesh/store"
)

// Transport sends single-node requests. Implementations must honor context
// cancellation and deadlines; the client treats a deadline exceeded the
// same as a connection failure.
type Transport interface {
	// Get fetches the entry for key from node. A miss is reported as
	// errors.KeyNotFound; anything else is a node failure.
	Get(ctx context.Context, node, key string) (store.Entry, error)

	// Set stores key on node with an optional ttl (non-positive = none).
	Set(ctx context.Context, node, key string, value []byte, ttl time.Duration) error

	// Delete removes key from node. Deleting an absent key is not an
	// error.
	Delete(ctx context.Context, node, key string) error

	// Scan returns the node's resident keys matching a path.Match-style
	// glob pattern.
	Scan(ctx context.Context, node, pattern string) ([]string, error)
}
