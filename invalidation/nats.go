package invalidation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSPubSub is a PubSub over core NATS. Reconnects are handled by the
// client library; publishes while disconnected fail fast.
type NATSPubSub struct {
	conn   *nats.Conn
	logger *zap.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// ConnectNATS dials a NATS server and returns a PubSub over it.
func ConnectNATS(url string, logger *zap.Logger) (*NATSPubSub, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := nats.Connect(url,
		nats.Name("cachemesh-invalidation"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}

	logger.Info("Connected to NATS", zap.String("url", conn.ConnectedUrl()))
	return &NATSPubSub{conn: conn, logger: logger}, nil
}

// Publish sends data to topic.
func (ps *NATSPubSub) Publish(_ context.Context, topic string, data []byte) error {
	if !ps.conn.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return ps.conn.Publish(topic, data)
}

// Subscribe registers handler for topic and returns its unsubscribe func.
func (ps *NATSPubSub) Subscribe(topic string, handler func(data []byte)) (func(), error) {
	sub, err := ps.conn.Subscribe(topic, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	ps.mu.Lock()
	ps.subs = append(ps.subs, sub)
	ps.mu.Unlock()

	return func() {
		if err := sub.Unsubscribe(); err != nil {
			ps.logger.Warn("Unsubscribe failed",
				zap.String("topic", topic),
				zap.Error(err))
		}
	}, nil
}

// Close drains in-flight messages and closes the connection.
func (ps *NATSPubSub) Close() error {
	return ps.conn.Drain()
}
