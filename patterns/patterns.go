// Package patterns layers the classic caching strategies (cache-aside,
// write-through, write-behind, read-through, refresh-ahead) on top of the
// distributed cache client and an external system of record.
package patterns

import (
	"context"
	"time"

	"github.com/devrev/cachemesh/store"
)

// Cache is the surface the patterns need from the distributed cache
// client. *client.Client satisfies it.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetEntry(ctx context.Context, key string) (store.Entry, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// SourceOfRecord is the external authoritative store. Get reports an
// absent key as errors.KeyNotFound.
type SourceOfRecord interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Loader fetches a value on behalf of the read-through pattern.
type Loader func(ctx context.Context, key string) ([]byte, error)
