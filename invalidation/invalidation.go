// Package invalidation propagates cache invalidations across processes and
// layers helpers for tag-based and versioned invalidation on top of the
// distributed client.
package invalidation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/devrev/cachemesh/metrics"
)

// DefaultTopic is the pub/sub subject invalidation messages travel on.
const DefaultTopic = "cache.invalidation"

// Cluster is the slice of the distributed client the invalidation layer
// consumes.
type Cluster interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPattern(ctx context.Context, pattern string) int
	Keys(ctx context.Context, pattern string) []string
}

// PubSub is the transport invalidation messages travel over. Subscribe
// returns an unsubscribe func.
type PubSub interface {
	Publish(ctx context.Context, topic string, data []byte) error
	Subscribe(topic string, handler func(data []byte)) (func(), error)
}

// Message is one invalidation event. Pattern is a path.Match-style glob.
type Message struct {
	ID      string    `json:"id"`
	Pattern string    `json:"pattern"`
	Origin  string    `json:"origin"`
	SentAt  time.Time `json:"sent_at"`
}

// Invalidator applies invalidation messages to the local cluster view and
// publishes local invalidations to the rest of the fleet. Deletion is
// idempotent, so duplicate and self-originated messages are safe to apply.
type Invalidator struct {
	cluster Cluster
	pubsub  PubSub
	topic   string
	origin  string
	logger  *zap.Logger
	metrics *metrics.Metrics

	applyTimeout time.Duration
	unsub        func()
}

// NewInvalidator wires a cluster to a pub/sub transport. An empty topic
// falls back to DefaultTopic; a nil Metrics leaves counters unregistered.
func NewInvalidator(cluster Cluster, pubsub PubSub, topic string, logger *zap.Logger, m *metrics.Metrics) *Invalidator {
	if topic == "" {
		topic = DefaultTopic
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Invalidator{
		cluster:      cluster,
		pubsub:       pubsub,
		topic:        topic,
		origin:       uuid.NewString(),
		logger:       logger,
		metrics:      m,
		applyTimeout: 10 * time.Second,
	}
}

// Origin identifies this process in outgoing messages.
func (inv *Invalidator) Origin() string {
	return inv.origin
}

// Start subscribes to the invalidation topic.
func (inv *Invalidator) Start() error {
	unsub, err := inv.pubsub.Subscribe(inv.topic, inv.handle)
	if err != nil {
		return err
	}
	inv.unsub = unsub
	inv.logger.Info("Invalidation subscriber started",
		zap.String("topic", inv.topic),
		zap.String("origin", inv.origin))
	return nil
}

// Close unsubscribes from the invalidation topic.
func (inv *Invalidator) Close() {
	if inv.unsub != nil {
		inv.unsub()
		inv.unsub = nil
	}
}

// PublishInvalidation deletes matching keys locally and broadcasts the
// pattern so every subscriber does the same.
func (inv *Invalidator) PublishInvalidation(ctx context.Context, pattern string) error {
	deleted := inv.cluster.DeleteByPattern(ctx, pattern)
	inv.metrics.RecordInvalidation("publish")
	inv.logger.Info("Published invalidation",
		zap.String("pattern", pattern),
		zap.Int("deleted_local", deleted))

	msg := Message{
		ID:      uuid.NewString(),
		Pattern: pattern,
		Origin:  inv.origin,
		SentAt:  time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return inv.pubsub.Publish(ctx, inv.topic, data)
}

func (inv *Invalidator) handle(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		inv.logger.Warn("Dropping malformed invalidation message", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), inv.applyTimeout)
	defer cancel()

	deleted := inv.cluster.DeleteByPattern(ctx, msg.Pattern)
	inv.metrics.RecordInvalidation("apply")
	if msg.Origin == inv.origin {
		// Already applied at publish time; the repeat is a no-op.
		inv.logger.Debug("Re-applied own invalidation",
			zap.String("pattern", msg.Pattern),
			zap.String("id", msg.ID))
		return
	}
	inv.logger.Info("Applied invalidation",
		zap.String("pattern", msg.Pattern),
		zap.String("from", msg.Origin),
		zap.Int("deleted", deleted))
}
