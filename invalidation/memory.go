package invalidation

import (
	"context"
	"sync"
)

// MemoryPubSub is an in-process PubSub for tests and single-process
// deployments. Publish dispatches synchronously to every subscriber.
type MemoryPubSub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]func([]byte)
}

// NewMemoryPubSub creates an empty in-process pub/sub.
func NewMemoryPubSub() *MemoryPubSub {
	return &MemoryPubSub{subs: make(map[string]map[int]func([]byte))}
}

// Publish delivers data to every subscriber of topic.
func (ps *MemoryPubSub) Publish(_ context.Context, topic string, data []byte) error {
	ps.mu.RLock()
	handlers := make([]func([]byte), 0, len(ps.subs[topic]))
	for _, h := range ps.subs[topic] {
		handlers = append(handlers, h)
	}
	ps.mu.RUnlock()

	for _, h := range handlers {
		h(data)
	}
	return nil
}

// Subscribe registers handler for topic and returns its unsubscribe func.
func (ps *MemoryPubSub) Subscribe(topic string, handler func(data []byte)) (func(), error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.subs[topic] == nil {
		ps.subs[topic] = make(map[int]func([]byte))
	}
	id := ps.nextID
	ps.nextID++
	ps.subs[topic][id] = handler

	return func() {
		ps.mu.Lock()
		defer ps.mu.Unlock()
		delete(ps.subs[topic], id)
	}, nil
}
