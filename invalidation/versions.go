package invalidation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/cachemesh/metrics"
)

// VersionKey returns the cache key holding version n of key.
func VersionKey(key string, n uint64) string {
	return fmt.Sprintf("%s:v%d", key, n)
}

// Versions implements version-based invalidation: each write lands under a
// new versioned key, so readers pinned to an old version keep a consistent
// view and bumping the version invalidates without deleting. Stale
// versions are swept in the background.
type Versions struct {
	cluster Cluster
	logger  *zap.Logger
	metrics *metrics.Metrics

	cleanupTimeout time.Duration
	wg             sync.WaitGroup
}

// NewVersions creates the versioned-key layer over a cluster. A nil
// Metrics leaves counters unregistered.
func NewVersions(cluster Cluster, logger *zap.Logger, m *metrics.Metrics) *Versions {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Versions{
		cluster:        cluster,
		logger:         logger,
		metrics:        m,
		cleanupTimeout: 10 * time.Second,
	}
}

// Set writes version n of key.
func (v *Versions) Set(ctx context.Context, key string, n uint64, value []byte, ttl time.Duration) error {
	return v.cluster.Set(ctx, VersionKey(key, n), value, ttl)
}

// Get reads version n of key.
func (v *Versions) Get(ctx context.Context, key string, n uint64) ([]byte, error) {
	return v.cluster.Get(ctx, VersionKey(key, n))
}

// CleanupVersions deletes every stored version of key except current, in
// the background. Best effort: a missed sweep only costs cache space until
// the stale entries expire.
func (v *Versions) CleanupVersions(key string, current uint64) {
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), v.cleanupTimeout)
		defer cancel()

		keep := VersionKey(key, current)
		removed := 0
		for _, k := range v.cluster.Keys(ctx, key+":v*") {
			if k == keep {
				continue
			}
			if err := v.cluster.Delete(ctx, k); err != nil {
				v.logger.Warn("Stale version delete failed",
					zap.String("key", k),
					zap.Error(err))
				continue
			}
			removed++
		}
		if removed > 0 {
			v.metrics.RecordInvalidation("version")
			v.logger.Debug("Swept stale versions",
				zap.String("key", key),
				zap.Uint64("current", current),
				zap.Int("removed", removed))
		}
	}()
}

// Wait blocks until all background sweeps finish.
func (v *Versions) Wait() {
	v.wg.Wait()
}
