package hashring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_GetNode_EmptyRing(t *testing.T) {
	r := New(150)

	node, ok := r.GetNode("key1")
	assert.False(t, ok)
	assert.Empty(t, node)
	assert.Nil(t, r.GetNodes("key1", 3))
}

func TestRing_GetNode_Deterministic(t *testing.T) {
	r := New(150)
	r.AddNode("node-a")
	r.AddNode("node-b")
	r.AddNode("node-c")

	first, ok := r.GetNode("user:42")
	require.True(t, ok)

	for i := 0; i < 100; i++ {
		node, ok := r.GetNode("user:42")
		require.True(t, ok)
		assert.Equal(t, first, node)
	}
}

func TestRing_InsertionOrderIrrelevant(t *testing.T) {
	a := New(150)
	a.AddNode("node-a")
	a.AddNode("node-b")
	a.AddNode("node-c")

	b := New(150)
	b.AddNode("node-c")
	b.AddNode("node-a")
	b.AddNode("node-b")

	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("key-%d", i)
		nodeA, okA := a.GetNode(key)
		nodeB, okB := b.GetNode(key)
		require.True(t, okA)
		require.True(t, okB)
		assert.Equal(t, nodeA, nodeB, "key %s routed differently", key)
		assert.Equal(t, a.GetNodes(key, 3), b.GetNodes(key, 3))
	}
}

func TestRing_GetNodes_Distinct(t *testing.T) {
	r := New(150)
	r.AddNode("node-a")
	r.AddNode("node-b")
	r.AddNode("node-c")
	r.AddNode("node-d")

	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("key-%d", i)
		nodes := r.GetNodes(key, 3)
		require.Len(t, nodes, 3)

		seen := map[string]bool{}
		for _, n := range nodes {
			assert.False(t, seen[n], "duplicate node %s for key %s", n, key)
			seen[n] = true
		}

		// The primary must agree with GetNode.
		primary, ok := r.GetNode(key)
		require.True(t, ok)
		assert.Equal(t, primary, nodes[0])
	}
}

func TestRing_GetNodes_FewerMembersThanCount(t *testing.T) {
	r := New(150)
	r.AddNode("node-a")
	r.AddNode("node-b")

	nodes := r.GetNodes("key1", 5)
	assert.Len(t, nodes, 2)
	assert.ElementsMatch(t, []string{"node-a", "node-b"}, nodes)
}

func TestRing_AddNode_Idempotent(t *testing.T) {
	r := New(150)
	r.AddNode("node-a")
	positions := len(r.snap.Load().hashes)

	r.AddNode("node-a")
	assert.Equal(t, positions, len(r.snap.Load().hashes), "re-add must not grow the ring")
	assert.Equal(t, 1, r.Len())
}

func TestRing_RemoveNode(t *testing.T) {
	r := New(150)
	r.AddNode("node-a")
	r.AddNode("node-b")

	r.RemoveNode("node-a")
	assert.Equal(t, 1, r.Len())

	// Every key now routes to the surviving node.
	for i := 0; i < 50; i++ {
		node, ok := r.GetNode(fmt.Sprintf("key-%d", i))
		require.True(t, ok)
		assert.Equal(t, "node-b", node)
	}

	// Second removal is a no-op.
	r.RemoveNode("node-a")
	assert.Equal(t, 1, r.Len())
}

func TestRing_RemoveNode_MinimalRemapping(t *testing.T) {
	r := New(150)
	r.AddNode("node-a")
	r.AddNode("node-b")
	r.AddNode("node-c")

	before := map[string]string{}
	for i := 0; i < 500; i++ {
		key := fmt.Sprintf("key-%d", i)
		node, _ := r.GetNode(key)
		before[key] = node
	}

	r.RemoveNode("node-c")

	for key, owner := range before {
		if owner == "node-c" {
			continue
		}
		node, ok := r.GetNode(key)
		require.True(t, ok)
		assert.Equal(t, owner, node, "key %s moved despite its owner surviving", key)
	}
}

func TestRing_Distribution(t *testing.T) {
	r := New(150)
	members := []string{"node-a", "node-b", "node-c", "node-d"}
	for _, m := range members {
		r.AddNode(m)
	}

	counts := map[string]int{}
	const keys = 10000
	for i := 0; i < keys; i++ {
		node, ok := r.GetNode(fmt.Sprintf("key-%d", i))
		require.True(t, ok)
		counts[node]++
	}

	// With 150 vnodes per member the spread stays loose but bounded.
	for _, m := range members {
		share := float64(counts[m]) / keys
		assert.InDelta(t, 0.25, share, 0.10, "node %s owns %.2f of keys", m, share)
	}
}

func TestRing_Nodes(t *testing.T) {
	r := New(10)
	r.AddNode("node-a")
	r.AddNode("node-b")
	assert.ElementsMatch(t, []string{"node-a", "node-b"}, r.Nodes())
}
