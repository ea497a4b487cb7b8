// Package cluster runs gossip-based membership and feeds joins and leaves
// into the cache client's ring. Deployments with a static node list can
// skip it entirely.
package cluster

import (
	"fmt"
	"time"

	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"
)

// Ring is the membership sink: the cache client implements it.
type Ring interface {
	AddNode(node string)
	RemoveNode(node string)
}

// Config holds gossip protocol configuration.
type Config struct {
	NodeID         string
	BindAddr       string
	BindPort       int
	SeedNodes      []string
	GossipInterval time.Duration
	ProbeTimeout   time.Duration
	ProbeInterval  time.Duration
}

// Membership wraps a memberlist instance and translates its events into
// ring updates. The member name doubles as the node's cache address, so
// joins land on the ring without a separate address exchange.
type Membership struct {
	config     Config
	memberlist *memberlist.Memberlist
	ring       Ring
	logger     *zap.Logger
}

// Join starts gossip and joins the seed nodes. The local node is added to
// the ring immediately; remote members arrive through join events.
func Join(cfg Config, ring Ring, logger *zap.Logger) (*Membership, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Membership{config: cfg, ring: ring, logger: logger}

	mlConfig := memberlist.DefaultLocalConfig()
	mlConfig.Name = cfg.NodeID
	if cfg.BindAddr != "" {
		mlConfig.BindAddr = cfg.BindAddr
	}
	// BindPort 0 lets the OS pick; memberlist writes the chosen port back.
	mlConfig.BindPort = cfg.BindPort
	if cfg.GossipInterval > 0 {
		mlConfig.GossipInterval = cfg.GossipInterval
	}
	if cfg.ProbeTimeout > 0 {
		mlConfig.ProbeTimeout = cfg.ProbeTimeout
	}
	if cfg.ProbeInterval > 0 {
		mlConfig.ProbeInterval = cfg.ProbeInterval
	}
	mlConfig.Events = &eventDelegate{membership: m}

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("create memberlist: %w", err)
	}
	m.memberlist = ml

	if len(cfg.SeedNodes) > 0 {
		if _, err := ml.Join(cfg.SeedNodes); err != nil {
			logger.Warn("Failed to join some seed nodes", zap.Error(err))
		}
	}

	return m, nil
}

// Members returns the names of the currently alive members.
func (m *Membership) Members() []string {
	nodes := m.memberlist.Members()
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Name)
	}
	return names
}

// Leave broadcasts departure and shuts gossip down.
func (m *Membership) Leave(timeout time.Duration) error {
	if err := m.memberlist.Leave(timeout); err != nil {
		m.logger.Warn("Gossip leave failed", zap.Error(err))
	}
	return m.memberlist.Shutdown()
}

// eventDelegate forwards memberlist events to the ring.
type eventDelegate struct {
	membership *Membership
}

func (d *eventDelegate) NotifyJoin(node *memberlist.Node) {
	d.membership.logger.Info("Node joined",
		zap.String("node_id", node.Name),
		zap.String("addr", node.Addr.String()))
	d.membership.ring.AddNode(node.Name)
}

func (d *eventDelegate) NotifyLeave(node *memberlist.Node) {
	d.membership.logger.Info("Node left",
		zap.String("node_id", node.Name))
	d.membership.ring.RemoveNode(node.Name)
}

func (d *eventDelegate) NotifyUpdate(node *memberlist.Node) {
	d.membership.logger.Debug("Node updated",
		zap.String("node_id", node.Name))
}
