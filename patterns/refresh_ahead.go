package patterns

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	mesherrors "github.com/devrev/cachemesh/errors"
	"github.com/devrev/cachemesh/metrics"
)

// DefaultRefreshThreshold is the remaining TTL below which a hit triggers
// an asynchronous refresh.
const DefaultRefreshThreshold = 300 * time.Second

// RefreshAhead serves hits immediately and, when an entry's remaining TTL
// drops below the refresh threshold, reloads it from the source of record
// in the background. Misses fall back to plain cache-aside. At most one
// refresh per key is in flight at a time.
type RefreshAhead struct {
	cache     Cache
	source    SourceOfRecord
	ttl       time.Duration
	threshold time.Duration
	logger    *zap.Logger
	metrics   *metrics.Metrics

	inflight sync.Map // key -> struct{}
	wg       sync.WaitGroup

	refreshTimeout time.Duration
}

// NewRefreshAhead creates the refresh-ahead read path. threshold <= 0
// falls back to DefaultRefreshThreshold; a nil Metrics leaves counters
// unregistered.
func NewRefreshAhead(cache Cache, source SourceOfRecord, ttl, threshold time.Duration, logger *zap.Logger, m *metrics.Metrics) *RefreshAhead {
	if threshold <= 0 {
		threshold = DefaultRefreshThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &RefreshAhead{
		cache:          cache,
		source:         source,
		ttl:            ttl,
		threshold:      threshold,
		logger:         logger,
		metrics:        m,
		refreshTimeout: 5 * time.Second,
	}
}

// Get returns the value for key. A hit close to expiry schedules a
// background refresh without blocking the caller.
func (p *RefreshAhead) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := p.cache.GetEntry(ctx, key)
	if err == nil {
		if !entry.ExpiresAt.IsZero() && entry.TTL(time.Now()) < p.threshold {
			p.triggerRefresh(key)
		}
		return entry.Value, nil
	}
	if !mesherrors.IsKeyNotFound(err) && !mesherrors.IsUnavailable(err) {
		return nil, err
	}

	// Miss: plain cache-aside.
	value, err := p.source.Get(ctx, key)
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

// Wait blocks until all in-flight refreshes finish. Test and shutdown
// hook; callers never need it for correctness.
func (p *RefreshAhead) Wait() {
	p.wg.Wait()
}

func (p *RefreshAhead) triggerRefresh(key string) {
	if _, loaded := p.inflight.LoadOrStore(key, struct{}{}); loaded {
		return
	}
	p.metrics.RefreshesTriggered.Inc()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.inflight.Delete(key)

		ctx, cancel := context.WithTimeout(context.Background(), p.refreshTimeout)
		defer cancel()

		value, err := p.source.Get(ctx, key)
		if err != nil {
			p.logger.Warn("Refresh-ahead reload failed",
				zap.String("key", key),
				zap.Error(err))
			return
		}
		if err := p.cache.Set(ctx, key, value, p.ttl); err != nil {
			p.logger.Warn("Refresh-ahead repopulate failed",
				zap.String("key", key),
				zap.Error(err))
		}
	}()
}
