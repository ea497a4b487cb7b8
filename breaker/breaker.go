// Package breaker wraps sony/gobreaker with per-node settings for the
// distributed cache client: a node trips after a run of consecutive
// failures, stays open for a recovery timeout, then admits a single probe.
package breaker

import (
	stderrors "errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	// DefaultThreshold is the consecutive-failure count that opens a node.
	DefaultThreshold uint32 = 5
	// DefaultRecoveryTimeout is how long an open node stays unprobed.
	DefaultRecoveryTimeout = 30 * time.Second
)

// StateChangeFunc is notified on breaker state transitions, e.g. for metrics.
type StateChangeFunc func(node string, from, to gobreaker.State)

// Breaker guards a single cache node.
type Breaker struct {
	node string
	cb   *gobreaker.CircuitBreaker
}

// Config holds breaker settings for one node.
type Config struct {
	Threshold       uint32
	RecoveryTimeout time.Duration
	Logger          *zap.Logger
	OnStateChange   StateChangeFunc
}

// New creates a breaker for the given node.
func New(node string, cfg Config) *Breaker {
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	settings := gobreaker.Settings{
		Name: node,
		// One request passes while half-open; its outcome decides the state.
		MaxRequests: 1,
		Timeout:     cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.Threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			cfg.Logger.Info("Breaker state changed",
				zap.String("node", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(name, from, to)
			}
		},
	}

	return &Breaker{
		node: node,
		cb:   gobreaker.NewCircuitBreaker(settings),
	}
}

// Do runs fn through the breaker. When the breaker is open, fn is not
// attempted and ErrOpenState is returned; IsOpen distinguishes that
// rejection from fn's own errors.
func (b *Breaker) Do(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

// Open reports whether the breaker currently rejects traffic. It flips back
// to false once the recovery timeout elapses and a probe may pass.
func (b *Breaker) Open() bool {
	return b.cb.State() == gobreaker.StateOpen
}

// Node returns the node this breaker guards.
func (b *Breaker) Node() string {
	return b.node
}

// IsOpen reports whether err is a breaker rejection (open state, or a
// second caller racing the single half-open probe) rather than a failure
// of the guarded call itself.
func IsOpen(err error) bool {
	return stderrors.Is(err, gobreaker.ErrOpenState) ||
		stderrors.Is(err, gobreaker.ErrTooManyRequests)
}
