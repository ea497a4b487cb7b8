package patterns

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	mesherrors "github.com/devrev/cachemesh/errors"
)

// ReadThrough hides the miss-then-load-then-populate sequence behind a
// single call: the loader is injected into the layer, and concurrent
// misses for one key are coalesced into a single load.
type ReadThrough struct {
	cache  Cache
	loader Loader
	ttl    time.Duration
	logger *zap.Logger
	sf     singleflight.Group
}

// NewReadThrough creates the read-through read path.
func NewReadThrough(cache Cache, loader Loader, ttl time.Duration, logger *zap.Logger) *ReadThrough {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReadThrough{cache: cache, loader: loader, ttl: ttl, logger: logger}
}

// Get returns the value for key, loading it on a miss.
func (p *ReadThrough) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := p.cache.Get(ctx, key)
	if err == nil {
		return value, nil
	}
	if !mesherrors.IsKeyNotFound(err) && !mesherrors.IsUnavailable(err) {
		return nil, err
	}

	v, err, _ := p.sf.Do(key, func() (interface{}, error) {
		// Another flight may have populated the cache while we queued.
		if cached, cerr := p.cache.Get(ctx, key); cerr == nil {
			return cached, nil
		}

		loaded, lerr := p.loader(ctx, key)
		if lerr != nil {
			return nil, lerr
		}
		if cerr := p.cache.Set(ctx, key, loaded, p.ttl); cerr != nil {
			p.logger.Warn("Cache populate failed after load",
				zap.String("key", key),
				zap.Error(cerr))
		}
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
