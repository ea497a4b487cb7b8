package patterns

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/cachemesh/internal/workerpool"
	"github.com/devrev/cachemesh/metrics"
)

// WriteBehind writes the cache synchronously and queues the source-of-record
// write for asynchronous application. Tasks are routed by key, so writes to
// one key reach the source in enqueue order; nothing is guaranteed across
// keys.
//
// A failed source write gets one immediate retry, then is dropped with an
// error log. Retrying forever would wedge the key's worker and stall every
// later write to the same key behind a dead source.
type WriteBehind struct {
	cache   Cache
	source  SourceOfRecord
	ttl     time.Duration
	queue   *workerpool.KeyedPool
	logger  *zap.Logger
	metrics *metrics.Metrics

	seq     uint64
	timeout time.Duration // per source write
}

// WriteBehindConfig sizes the background queue.
type WriteBehindConfig struct {
	Workers      int           // default 4
	QueueSize    int           // per-worker, default 256
	WriteTimeout time.Duration // per source write, default 5s
}

// NewWriteBehind creates the write-behind write path and starts its queue
// workers. A nil Metrics leaves counters unregistered.
func NewWriteBehind(cache Cache, source SourceOfRecord, ttl time.Duration, cfg WriteBehindConfig, logger *zap.Logger, m *metrics.Metrics) *WriteBehind {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &WriteBehind{
		cache:   cache,
		source:  source,
		ttl:     ttl,
		logger:  logger,
		metrics: m,
		queue: workerpool.New(workerpool.Config{
			Name:      "write-behind",
			Workers:   cfg.Workers,
			QueueSize: cfg.QueueSize,
			Logger:    logger,
		}),
		timeout: cfg.WriteTimeout,
	}
}

// Set writes key to the cache and enqueues the source write. A cache
// failure aborts with nothing enqueued.
func (p *WriteBehind) Set(ctx context.Context, key string, value []byte) error {
	if err := p.cache.Set(ctx, key, value, p.ttl); err != nil {
		return err
	}

	seq := atomic.AddUint64(&p.seq, 1)
	err := p.queue.Submit(workerpool.Task{
		ID:  fmt.Sprintf("write-behind/%s/%d", key, seq),
		Key: key,
		Fn: func(taskCtx context.Context) error {
			defer p.metrics.WriteBehindQueueDepth.Set(float64(p.queue.QueueDepth()))
			return p.apply(taskCtx, key, value)
		},
	})
	if err != nil {
		return err
	}
	p.metrics.WriteBehindEnqueued.Inc()
	p.metrics.WriteBehindQueueDepth.Set(float64(p.queue.QueueDepth()))
	return nil
}

// Flush blocks until every queued source write has been applied.
func (p *WriteBehind) Flush() {
	p.queue.Flush()
}

// Close drains the queue and stops the workers.
func (p *WriteBehind) Close() error {
	return p.queue.Stop(10 * time.Second)
}

// QueueDepth returns the number of pending source writes.
func (p *WriteBehind) QueueDepth() int {
	return p.queue.QueueDepth()
}

func (p *WriteBehind) apply(ctx context.Context, key string, value []byte) error {
	wctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.source.Set(wctx, key, value)
	if err == nil {
		return nil
	}
	p.logger.Warn("Write-behind source write failed, retrying once",
		zap.String("key", key),
		zap.Error(err))

	rctx, rcancel := context.WithTimeout(ctx, p.timeout)
	defer rcancel()
	if err := p.source.Set(rctx, key, value); err != nil {
		p.metrics.WriteBehindDropped.Inc()
		p.logger.Error("Write-behind source write dropped after retry",
			zap.String("key", key),
			zap.Error(err))
		return err
	}
	return nil
}
