package transport

import (
	"context"
	"path"
	"sync"
	"time"

	mesherrors "github.com/devrev/cachemesh/errors"
	"github.com/devrev/cachemesh/store"
)

// StoreFactory builds the store backing a newly added memory node.
type StoreFactory func() store.Store

// Memory is an in-process cluster of cache nodes, each backed by its own
// store.Store. It exists for tests, the demo binary, and embedded use;
// remote transports implement the same interface in its place.
//
// Per-node fault injection (FailNode/RestoreNode) simulates unreachable
// nodes, and an optional artificial latency exercises timeout paths.
type Memory struct {
	mu      sync.RWMutex
	nodes   map[string]*memoryNode
	factory StoreFactory
	latency time.Duration
}

type memoryNode struct {
	store  store.Store
	failed bool
}

// NewMemory creates an empty in-memory cluster. New nodes get stores from
// factory; a nil factory defaults to an LRU store of 1024 entries.
func NewMemory(factory StoreFactory) *Memory {
	if factory == nil {
		factory = func() store.Store { return store.NewLRU(1024) }
	}
	return &Memory{
		nodes:   make(map[string]*memoryNode),
		factory: factory,
	}
}

// AddNode registers a node address. Re-adding an existing node keeps its
// store.
func (m *Memory) AddNode(node string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[node]; !ok {
		m.nodes[node] = &memoryNode{store: m.factory()}
	}
}

// RemoveNode drops a node and its data.
func (m *Memory) RemoveNode(node string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nodes, node)
}

// FailNode makes every request against node fail as unreachable.
func (m *Memory) FailNode(node string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[node]; ok {
		n.failed = true
	}
}

// RestoreNode clears a failure injected with FailNode.
func (m *Memory) RestoreNode(node string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[node]; ok {
		n.failed = false
	}
}

// SetLatency adds an artificial delay before every request.
func (m *Memory) SetLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
}

// NodeStore exposes a node's backing store for test assertions.
func (m *Memory) NodeStore(node string) (store.Store, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[node]
	if !ok {
		return nil, false
	}
	return n.store, true
}

// Get implements Transport.
func (m *Memory) Get(ctx context.Context, node, key string) (store.Entry, error) {
	s, err := m.dial(ctx, node)
	if err != nil {
		return store.Entry{}, err
	}
	entry, ok := s.GetEntry(key)
	if !ok {
		return store.Entry{}, mesherrors.KeyNotFound(key)
	}
	return entry, nil
}

// Set implements Transport.
func (m *Memory) Set(ctx context.Context, node, key string, value []byte, ttl time.Duration) error {
	s, err := m.dial(ctx, node)
	if err != nil {
		return err
	}
	s.Put(key, value, ttl)
	return nil
}

// Delete implements Transport.
func (m *Memory) Delete(ctx context.Context, node, key string) error {
	s, err := m.dial(ctx, node)
	if err != nil {
		return err
	}
	s.Delete(key)
	return nil
}

// Scan implements Transport.
func (m *Memory) Scan(ctx context.Context, node, pattern string) ([]string, error) {
	s, err := m.dial(ctx, node)
	if err != nil {
		return nil, err
	}
	var matches []string
	for _, key := range s.Keys() {
		if ok, _ := path.Match(pattern, key); ok {
			matches = append(matches, key)
		}
	}
	return matches, nil
}

// dial checks reachability and simulates network latency.
func (m *Memory) dial(ctx context.Context, node string) (store.Store, error) {
	m.mu.RLock()
	n, ok := m.nodes[node]
	latency := m.latency
	m.mu.RUnlock()

	if !ok || n.failed {
		return nil, mesherrors.NodeUnreachable(node, nil)
	}

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, mesherrors.NodeUnreachable(node, ctx.Err())
		case <-timer.C:
		}
	}

	select {
	case <-ctx.Done():
		return nil, mesherrors.NodeUnreachable(node, ctx.Err())
	default:
	}
	return n.store, nil
}
