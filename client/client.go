// Package client implements the distributed cache client: consistent-hash
// routing, per-node circuit breaking, replica failover on reads,
// best-effort asynchronous replication on writes.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/devrev/cachemesh/breaker"
	mesherrors "github.com/devrev/cachemesh/errors"
	"github.com/devrev/cachemesh/hashring"
	"github.com/devrev/cachemesh/internal/workerpool"
	"github.com/devrev/cachemesh/metrics"
	"github.com/devrev/cachemesh/store"
	"github.com/devrev/cachemesh/transport"
)

// Config holds client construction parameters. The node list, ring shape,
// and failure thresholds are fixed at construction; membership afterwards
// changes only through explicit AddNode/RemoveNode calls.
type Config struct {
	Nodes             []string
	VirtualNodes      int           // ring positions per node, default 150
	ReplicationFactor int           // replicas per key, default 3
	RequestTimeout    time.Duration // per node call, default 500ms
	PoolSize          int64         // concurrent in-flight requests per node, default 32
	BreakerThreshold  uint32        // consecutive failures to open, default 5
	BreakerRecovery   time.Duration // open duration before a probe, default 30s

	// Replication fan-out pool.
	ReplicationWorkers int // default 4
	ReplicationQueue   int // per-worker depth, default 256
}

func (c Config) withDefaults() Config {
	if c.VirtualNodes <= 0 {
		c.VirtualNodes = hashring.DefaultVirtualNodes
	}
	if c.ReplicationFactor <= 0 {
		c.ReplicationFactor = 3
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 500 * time.Millisecond
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 32
	}
	if c.BreakerThreshold == 0 {
		c.BreakerThreshold = breaker.DefaultThreshold
	}
	if c.BreakerRecovery <= 0 {
		c.BreakerRecovery = breaker.DefaultRecoveryTimeout
	}
	if c.ReplicationWorkers <= 0 {
		c.ReplicationWorkers = 4
	}
	if c.ReplicationQueue <= 0 {
		c.ReplicationQueue = 256
	}
	return c
}

// nodeState is the per-node unit of mutual exclusion: the breaker guards
// health bookkeeping, the semaphore bounds in-flight requests. Operations
// against different nodes never contend on shared state.
type nodeState struct {
	breaker *breaker.Breaker
	sem     *semaphore.Weighted
}

// Client is the single logical get/set/delete surface over the sharded,
// replicated, partially failing cluster. All methods are safe for
// concurrent use.
type Client struct {
	cfg       Config
	ring      *hashring.Ring
	transport transport.Transport
	logger    *zap.Logger
	metrics   *metrics.Metrics

	mu    sync.RWMutex
	nodes map[string]*nodeState

	repl *workerpool.KeyedPool
}

// New creates a client over the given transport. A nil metrics set is
// replaced with one on a private registry; a nil logger with a no-op.
func New(cfg Config, tr transport.Transport, logger *zap.Logger, m *metrics.Metrics) (*Client, error) {
	if tr == nil {
		return nil, mesherrors.InvalidConfig("transport is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}
	cfg = cfg.withDefaults()

	c := &Client{
		cfg:       cfg,
		ring:      hashring.New(cfg.VirtualNodes),
		transport: tr,
		logger:    logger,
		metrics:   m,
		nodes:     make(map[string]*nodeState),
		repl: workerpool.New(workerpool.Config{
			Name:      "replication",
			Workers:   cfg.ReplicationWorkers,
			QueueSize: cfg.ReplicationQueue,
			Logger:    logger,
		}),
	}

	for _, node := range cfg.Nodes {
		c.AddNode(node)
	}
	return c, nil
}

// AddNode adds a node to the ring and creates its breaker and request
// limiter. Idempotent.
func (c *Client) AddNode(node string) {
	c.mu.Lock()
	if _, ok := c.nodes[node]; !ok {
		c.nodes[node] = &nodeState{
			breaker: breaker.New(node, breaker.Config{
				Threshold:       c.cfg.BreakerThreshold,
				RecoveryTimeout: c.cfg.BreakerRecovery,
				Logger:          c.logger,
				OnStateChange: func(n string, _, to gobreaker.State) {
					c.metrics.RecordBreakerTransition(n, to.String())
				},
			}),
			sem: semaphore.NewWeighted(c.cfg.PoolSize),
		}
	}
	c.mu.Unlock()

	c.ring.AddNode(node)
	c.metrics.NodesActive.Set(float64(c.ring.Len()))
	c.logger.Info("Node added", zap.String("node", node))
}

// RemoveNode decommissions a node: its ring positions are purged and its
// per-node state dropped. Idempotent.
func (c *Client) RemoveNode(node string) {
	c.ring.RemoveNode(node)

	c.mu.Lock()
	delete(c.nodes, node)
	c.mu.Unlock()

	c.metrics.NodesActive.Set(float64(c.ring.Len()))
	c.logger.Info("Node removed", zap.String("node", node))
}

// Nodes returns the current ring members.
func (c *Client) Nodes() []string {
	return c.ring.Nodes()
}

// Close drains the replication queue and stops its workers.
func (c *Client) Close() error {
	return c.repl.Stop(5 * time.Second)
}

// Get returns the value for key from the first live replica. A miss from a
// live replica is authoritative and returned as errors.KeyNotFound; when
// every replica is down or skipped, errors.Unavailable is returned so the
// caller can consult the source of record instead.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := c.GetEntry(ctx, key)
	if err != nil {
		return nil, err
	}
	return entry.Value, nil
}

// GetEntry is Get plus the entry's expiry deadline, for refresh-ahead.
func (c *Client) GetEntry(ctx context.Context, key string) (store.Entry, error) {
	start := time.Now()
	replicas := c.ring.GetNodes(key, c.cfg.ReplicationFactor)
	if len(replicas) == 0 {
		c.metrics.RecordRequest("get", "unavailable", time.Since(start).Seconds())
		return store.Entry{}, mesherrors.Unavailable(key, nil)
	}

	var lastErr error
	for _, node := range replicas {
		var entry store.Entry
		var miss bool

		err := c.callNode(ctx, node, func(cctx context.Context) error {
			e, err := c.transport.Get(cctx, node, key)
			if err != nil {
				if mesherrors.IsKeyNotFound(err) {
					// A miss is an answer, not a node failure.
					miss = true
					return nil
				}
				return err
			}
			entry = e
			return nil
		})

		switch {
		case err == nil && miss:
			c.metrics.Misses.Inc()
			c.metrics.RecordReplicaRead(node, "miss")
			c.metrics.RecordRequest("get", "miss", time.Since(start).Seconds())
			return store.Entry{}, mesherrors.KeyNotFound(key)
		case err == nil:
			c.metrics.Hits.Inc()
			c.metrics.RecordReplicaRead(node, "ok")
			c.metrics.RecordRequest("get", "hit", time.Since(start).Seconds())
			return entry, nil
		case breaker.IsOpen(err):
			c.metrics.RecordReplicaRead(node, "skipped")
			lastErr = mesherrors.BreakerOpen(node)
		default:
			c.metrics.RecordReplicaRead(node, "error")
			c.logger.Warn("Read failed on replica",
				zap.String("key", key),
				zap.String("node", node),
				zap.Error(err))
			lastErr = err
		}
	}

	c.metrics.RecordRequest("get", "unavailable", time.Since(start).Seconds())
	return store.Entry{}, mesherrors.Unavailable(key, lastErr)
}

// Set writes key synchronously to its primary replica; success to the
// caller means primary success. The remaining replicas are written
// fire-and-forget on the replication pool: their failures feed breakers
// and metrics but are never surfaced (best-effort replication).
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	replicas := c.ring.GetNodes(key, c.cfg.ReplicationFactor)
	if len(replicas) == 0 {
		c.metrics.RecordRequest("set", "unavailable", time.Since(start).Seconds())
		return mesherrors.Unavailable(key, nil)
	}

	primary := replicas[0]
	err := c.callNode(ctx, primary, func(cctx context.Context) error {
		return c.transport.Set(cctx, primary, key, value, ttl)
	})
	if err != nil {
		c.metrics.RecordReplicaWrite(primary, "error")
		c.metrics.RecordRequest("set", "unavailable", time.Since(start).Seconds())
		return mesherrors.Unavailable(key, err)
	}
	c.metrics.RecordReplicaWrite(primary, "ok")

	for _, node := range replicas[1:] {
		node := node
		ok := c.repl.TrySubmit(workerpool.Task{
			ID:  fmt.Sprintf("replicate/%s/%s", node, key),
			Key: key,
			Fn: func(taskCtx context.Context) error {
				err := c.callNode(taskCtx, node, func(cctx context.Context) error {
					return c.transport.Set(cctx, node, key, value, ttl)
				})
				if err != nil {
					c.metrics.RecordReplicaWrite(node, "error")
					return err
				}
				c.metrics.RecordReplicaWrite(node, "ok")
				return nil
			},
		})
		if !ok {
			c.metrics.RecordReplicaWrite(node, "dropped")
			c.logger.Warn("Replication queue full, dropping replica write",
				zap.String("key", key),
				zap.String("node", node))
		}
	}

	c.metrics.RecordRequest("set", "ok", time.Since(start).Seconds())
	return nil
}

// Delete issues the delete to all replicas concurrently. It succeeds when
// at least one replica confirms; deleting an absent copy counts as
// confirmation. Only when every replica is unreachable does the caller see
// errors.Unavailable.
func (c *Client) Delete(ctx context.Context, key string) error {
	start := time.Now()
	replicas := c.ring.GetNodes(key, c.cfg.ReplicationFactor)
	if len(replicas) == 0 {
		c.metrics.RecordRequest("delete", "unavailable", time.Since(start).Seconds())
		return mesherrors.Unavailable(key, nil)
	}

	var (
		mu        sync.Mutex
		confirmed int
		lastErr   error
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, node := range replicas {
		node := node
		g.Go(func() error {
			err := c.callNode(gctx, node, func(cctx context.Context) error {
				return c.transport.Delete(cctx, node, key)
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Collected, not returned: one dead replica must not
				// cancel the others.
				lastErr = err
				c.logger.Warn("Delete failed on replica",
					zap.String("key", key),
					zap.String("node", node),
					zap.Error(err))
				return nil
			}
			confirmed++
			return nil
		})
	}
	_ = g.Wait()

	if confirmed == 0 {
		c.metrics.RecordRequest("delete", "unavailable", time.Since(start).Seconds())
		return mesherrors.Unavailable(key, lastErr)
	}
	c.metrics.RecordRequest("delete", "ok", time.Since(start).Seconds())
	return nil
}

// Keys scans every ring member for keys matching a path.Match-style glob.
// Best effort: unreachable nodes are logged and skipped. Replicated keys
// are deduplicated.
func (c *Client) Keys(ctx context.Context, pattern string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, node := range c.ring.Nodes() {
		var keys []string
		err := c.callNode(ctx, node, func(cctx context.Context) error {
			ks, err := c.transport.Scan(cctx, node, pattern)
			if err != nil {
				return err
			}
			keys = ks
			return nil
		})
		if err != nil {
			c.logger.Warn("Scan failed on node",
				zap.String("pattern", pattern),
				zap.String("node", node),
				zap.Error(err))
			continue
		}
		for _, key := range keys {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, key)
		}
	}
	return out
}

// DeleteByPattern scans every ring member for keys matching a
// path.Match-style glob and deletes the matches. Best effort: unreachable
// nodes are logged and skipped. Returns the number of keys deleted.
func (c *Client) DeleteByPattern(ctx context.Context, pattern string) int {
	deleted := 0
	for _, node := range c.ring.Nodes() {
		var keys []string
		err := c.callNode(ctx, node, func(cctx context.Context) error {
			ks, err := c.transport.Scan(cctx, node, pattern)
			if err != nil {
				return err
			}
			keys = ks
			return nil
		})
		if err != nil {
			c.logger.Warn("Scan failed on node",
				zap.String("pattern", pattern),
				zap.String("node", node),
				zap.Error(err))
			continue
		}

		for _, key := range keys {
			key := key
			err := c.callNode(ctx, node, func(cctx context.Context) error {
				return c.transport.Delete(cctx, node, key)
			})
			if err != nil {
				c.logger.Warn("Pattern delete failed",
					zap.String("key", key),
					zap.String("node", node),
					zap.Error(err))
				continue
			}
			deleted++
		}
	}
	return deleted
}

// callNode runs one node request through the node's breaker with the
// per-request timeout and the node's in-flight limit applied. A timeout or
// transport failure counts against the breaker; an open breaker rejects
// the call without attempting it.
func (c *Client) callNode(ctx context.Context, node string, fn func(context.Context) error) error {
	ns, ok := c.nodeState(node)
	if !ok {
		return mesherrors.NodeUnreachable(node, fmt.Errorf("node not in cluster"))
	}

	return ns.breaker.Do(func() error {
		cctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()

		if err := ns.sem.Acquire(cctx, 1); err != nil {
			return mesherrors.NodeUnreachable(node, err)
		}
		defer ns.sem.Release(1)

		return fn(cctx)
	})
}

func (c *Client) nodeState(node string) (*nodeState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ns, ok := c.nodes[node]
	return ns, ok
}
