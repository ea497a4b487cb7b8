// Package hashring implements consistent hashing with virtual nodes.
//
// The ring keeps its state in an immutable snapshot behind an atomic
// pointer: membership changes build a new snapshot and swap it in, so
// in-flight lookups never observe a partially updated ring.
package hashring

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// DefaultVirtualNodes is the number of ring positions per physical node.
const DefaultVirtualNodes = 150

// Ring maps keys to physical node IDs using consistent hashing.
// Lookups are lock-free; membership changes serialize on an internal mutex.
type Ring struct {
	virtualNodes int

	mu   sync.Mutex // guards membership changes
	snap atomic.Pointer[snapshot]
}

// snapshot is an immutable view of ring membership.
type snapshot struct {
	hashes  []uint64            // sorted ring positions
	owners  map[uint64]string   // ring position -> physical node ID
	members map[string][]uint64 // physical node ID -> its ring positions
}

// New creates a ring with the given number of virtual nodes per physical
// node. virtualNodes <= 0 falls back to DefaultVirtualNodes.
func New(virtualNodes int) *Ring {
	if virtualNodes <= 0 {
		virtualNodes = DefaultVirtualNodes
	}
	r := &Ring{virtualNodes: virtualNodes}
	r.snap.Store(&snapshot{
		owners:  make(map[uint64]string),
		members: make(map[string][]uint64),
	})
	return r
}

// AddNode adds a physical node with its virtual nodes.
// Adding a node that is already a member is a no-op.
func (r *Ring) AddNode(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	if _, exists := cur.members[nodeID]; exists {
		return
	}

	next := cur.clone()
	positions := make([]uint64, 0, r.virtualNodes)
	for i := 0; i < r.virtualNodes; i++ {
		h := Hash(fmt.Sprintf("%s:%d", nodeID, i))
		next.hashes = append(next.hashes, h)
		next.owners[h] = nodeID
		positions = append(positions, h)
	}
	next.members[nodeID] = positions
	sort.Slice(next.hashes, func(i, j int) bool { return next.hashes[i] < next.hashes[j] })

	r.snap.Store(next)
}

// RemoveNode removes a physical node and exactly the ring positions it
// owns. Removing an absent node is a no-op.
func (r *Ring) RemoveNode(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	positions, exists := cur.members[nodeID]
	if !exists {
		return
	}

	next := cur.clone()
	removed := make(map[uint64]bool, len(positions))
	for _, h := range positions {
		removed[h] = true
		delete(next.owners, h)
	}

	hashes := make([]uint64, 0, len(next.hashes)-len(positions))
	for _, h := range next.hashes {
		if !removed[h] {
			hashes = append(hashes, h)
		}
	}
	next.hashes = hashes
	delete(next.members, nodeID)

	r.snap.Store(next)
}

// GetNode returns the physical node responsible for key.
// The second return value is false only when the ring is empty.
func (r *Ring) GetNode(key string) (string, bool) {
	s := r.snap.Load()
	if len(s.hashes) == 0 {
		return "", false
	}
	idx := s.search(Hash(key))
	return s.owners[s.hashes[idx]], true
}

// GetNodes walks the ring clockwise from the key's position and returns up
// to count distinct physical nodes, primary first. When fewer than count
// physical nodes exist, all members are returned.
func (r *Ring) GetNodes(key string, count int) []string {
	s := r.snap.Load()
	if len(s.hashes) == 0 || count <= 0 {
		return nil
	}

	start := s.search(Hash(key))
	nodes := make([]string, 0, count)
	seen := make(map[string]bool, count)

	for i := 0; i < len(s.hashes) && len(nodes) < count; i++ {
		owner := s.owners[s.hashes[(start+i)%len(s.hashes)]]
		if !seen[owner] {
			nodes = append(nodes, owner)
			seen[owner] = true
		}
	}
	return nodes
}

// Nodes returns the current physical members in unspecified order.
func (r *Ring) Nodes() []string {
	s := r.snap.Load()
	nodes := make([]string, 0, len(s.members))
	for nodeID := range s.members {
		nodes = append(nodes, nodeID)
	}
	return nodes
}

// Len returns the number of physical nodes.
func (r *Ring) Len() int {
	return len(r.snap.Load().members)
}

// Hash computes the ring position for a key: the first 8 bytes of the
// SHA-256 digest, big-endian. Distribution matters here, not secrecy.
func Hash(key string) uint64 {
	sum := sha256.Sum256([]byte(key))
	return binary.BigEndian.Uint64(sum[:8])
}

// search finds the index of the smallest ring position >= h, wrapping to
// index 0 when h is past the last position.
func (s *snapshot) search(h uint64) int {
	idx := sort.Search(len(s.hashes), func(i int) bool {
		return s.hashes[i] >= h
	})
	if idx >= len(s.hashes) {
		idx = 0
	}
	return idx
}

// clone deep-copies a snapshot so the current one stays immutable.
func (s *snapshot) clone() *snapshot {
	next := &snapshot{
		hashes:  make([]uint64, len(s.hashes)),
		owners:  make(map[uint64]string, len(s.owners)),
		members: make(map[string][]uint64, len(s.members)),
	}
	copy(next.hashes, s.hashes)
	for h, id := range s.owners {
		next.owners[h] = id
	}
	for id, positions := range s.members {
		next.members[id] = positions
	}
	return next
}
