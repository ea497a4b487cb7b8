package patterns

import (
	"context"
	"time"

	"go.uber.org/zap"

	mesherrors "github.com/devrev/cachemesh/errors"
)

// WriteThrough writes the cache first, then the source of record
// synchronously. A cache failure aborts before the source is touched; a
// source failure rolls the cache entry back so readers never see a value
// the source rejected.
type WriteThrough struct {
	cache  Cache
	source SourceOfRecord
	ttl    time.Duration
	logger *zap.Logger
}

// NewWriteThrough creates the write-through write path.
func NewWriteThrough(cache Cache, source SourceOfRecord, ttl time.Duration, logger *zap.Logger) *WriteThrough {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WriteThrough{cache: cache, source: source, ttl: ttl, logger: logger}
}

// Set writes key to the cache and then to the source of record.
func (p *WriteThrough) Set(ctx context.Context, key string, value []byte) error {
	if err := p.cache.Set(ctx, key, value, p.ttl); err != nil {
		return err
	}

	if err := p.source.Set(ctx, key, value); err != nil {
		// Compensate: the cached value was never durably accepted.
		if derr := p.cache.Delete(ctx, key); derr != nil {
			p.logger.Error("Rollback delete failed after source write failure",
				zap.String("key", key),
				zap.Error(derr))
		}
		return mesherrors.SourceOfRecord("write-through source write failed", err)
	}
	return nil
}
