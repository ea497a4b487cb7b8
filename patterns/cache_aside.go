package patterns

import (
	"context"
	"time"

	"go.uber.org/zap"

	mesherrors "github.com/devrev/cachemesh/errors"
)

// CacheAside reads the cache first and falls back to the source of record
// on a miss, repopulating the cache on the way out. The repopulation is
// best effort: a failed cache write never fails the read.
type CacheAside struct {
	cache  Cache
	source SourceOfRecord
	ttl    time.Duration
	logger *zap.Logger
}

// NewCacheAside creates the cache-aside read path. ttl applies to
// repopulated entries; non-positive means no expiry.
func NewCacheAside(cache Cache, source SourceOfRecord, ttl time.Duration, logger *zap.Logger) *CacheAside {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheAside{cache: cache, source: source, ttl: ttl, logger: logger}
}

// Get returns the value for key, consulting the source of record when the
// cache misses or is unavailable.
func (p *CacheAside) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := p.cache.Get(ctx, key)
	if err == nil {
		return value, nil
	}
	if !mesherrors.IsKeyNotFound(err) && !mesherrors.IsUnavailable(err) {
		return nil, err
	}
	if mesherrors.IsUnavailable(err) {
		p.logger.Warn("Cache unavailable, reading source of record directly",
			zap.String("key", key))
	}

	value, err = p.source.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	if cerr := p.cache.Set(ctx, key, value, p.ttl); cerr != nil {
		p.logger.Warn("Cache populate failed after source read",
			zap.String("key", key),
			zap.Error(cerr))
	}
	return value, nil
}
