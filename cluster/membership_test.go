package cluster

import (
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/memberlist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRing struct {
	mu      sync.Mutex
	added   []string
	removed []string
}

func (r *fakeRing) AddNode(node string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added = append(r.added, node)
}

func (r *fakeRing) RemoveNode(node string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, node)
}

func TestEventDelegate_ForwardsJoinAndLeave(t *testing.T) {
	ring := &fakeRing{}
	d := &eventDelegate{membership: &Membership{ring: ring, logger: zap.NewNop()}}

	d.NotifyJoin(&memberlist.Node{Name: "10.0.0.1:7000"})
	d.NotifyJoin(&memberlist.Node{Name: "10.0.0.2:7000"})
	d.NotifyLeave(&memberlist.Node{Name: "10.0.0.1:7000"})
	d.NotifyUpdate(&memberlist.Node{Name: "10.0.0.2:7000"})

	assert.Equal(t, []string{"10.0.0.1:7000", "10.0.0.2:7000"}, ring.added)
	assert.Equal(t, []string{"10.0.0.1:7000"}, ring.removed)
}

func TestJoin_SingleNode(t *testing.T) {
	ring := &fakeRing{}

	m, err := Join(Config{
		NodeID:   "local-node",
		BindAddr: "127.0.0.1",
		BindPort: 0, // let the OS pick
	}, ring, zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = m.Leave(time.Second) }()

	assert.Contains(t, m.Members(), "local-node")

	// The local node's own join event lands on the ring.
	ring.mu.Lock()
	defer ring.mu.Unlock()
	assert.Contains(t, ring.added, "local-node")
}
