package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/devrev/cachemesh/client"
	"github.com/devrev/cachemesh/cluster"
	"github.com/devrev/cachemesh/config"
	"github.com/devrev/cachemesh/invalidation"
	"github.com/devrev/cachemesh/metrics"
	"github.com/devrev/cachemesh/store"
	"github.com/devrev/cachemesh/transport"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting cachemesh")

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Configuration loaded",
		zap.Strings("nodes", cfg.Cluster.Nodes),
		zap.Int("replication_factor", cfg.Cluster.ReplicationFactor),
		zap.Int("virtual_nodes", cfg.Cluster.VirtualNodes),
		zap.String("store_policy", cfg.Store.Policy))

	// Initialize metrics
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	logger.Info("Metrics initialized")

	// Initialize the node transport. Each configured node gets its own
	// bounded store behind the in-memory transport.
	factory := storeFactory(cfg.Store)
	mem := transport.NewMemory(factory)
	for _, node := range cfg.Cluster.Nodes {
		mem.AddNode(node)
	}
	logger.Info("Node transport initialized", zap.Int("nodes", len(cfg.Cluster.Nodes)))

	// Initialize the distributed client
	cacheClient, err := client.New(client.Config{
		Nodes:              cfg.Cluster.Nodes,
		VirtualNodes:       cfg.Cluster.VirtualNodes,
		ReplicationFactor:  cfg.Cluster.ReplicationFactor,
		RequestTimeout:     cfg.Cluster.RequestTimeout,
		PoolSize:           int64(cfg.Cluster.PoolSize),
		BreakerThreshold:   uint32(cfg.Breaker.Threshold),
		BreakerRecovery:    cfg.Breaker.RecoveryTimeout,
		ReplicationWorkers: cfg.Cluster.ReplicationWorkers,
		ReplicationQueue:   cfg.Cluster.ReplicationQueue,
	}, mem, logger, m)
	if err != nil {
		logger.Fatal("Failed to initialize cache client", zap.Error(err))
	}
	logger.Info("Cache client initialized")

	// Initialize invalidation
	var pubsub invalidation.PubSub
	var natsConn *invalidation.NATSPubSub
	if cfg.Invalidation.Enabled {
		natsConn, err = invalidation.ConnectNATS(cfg.Invalidation.NATSURL, logger)
		if err != nil {
			logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		pubsub = natsConn
	} else {
		pubsub = invalidation.NewMemoryPubSub()
	}

	invalidator := invalidation.NewInvalidator(cacheClient, pubsub, cfg.Invalidation.Topic, logger, m)
	if err := invalidator.Start(); err != nil {
		logger.Fatal("Failed to start invalidation subscriber", zap.Error(err))
	}
	logger.Info("Invalidation subscriber started")

	// Optional gossip membership
	var membership *cluster.Membership
	if cfg.Gossip.Enabled {
		membership, err = cluster.Join(cluster.Config{
			NodeID:         cfg.Gossip.NodeID,
			BindAddr:       cfg.Gossip.BindAddr,
			BindPort:       cfg.Gossip.BindPort,
			SeedNodes:      cfg.Gossip.SeedNodes,
			GossipInterval: cfg.Gossip.GossipInterval,
			ProbeTimeout:   cfg.Gossip.ProbeTimeout,
			ProbeInterval:  cfg.Gossip.ProbeInterval,
		}, cacheClient, logger)
		if err != nil {
			logger.Fatal("Failed to start gossip membership", zap.Error(err))
		}
		logger.Info("Gossip membership started",
			zap.String("node_id", cfg.Gossip.NodeID),
			zap.Strings("seed_nodes", cfg.Gossip.SeedNodes))
	}

	// Start metrics server
	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			logger.Info("Starting metrics server", zap.String("address", addr))
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	// Smoke the cluster so the metrics endpoint has something to show.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := cacheClient.Set(ctx, "cachemesh:started_at", []byte(time.Now().UTC().Format(time.RFC3339)), 0); err != nil {
		logger.Warn("Startup write failed", zap.Error(err))
	}
	cancel()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received signal", zap.String("signal", sig.String()))

	// Graceful shutdown
	logger.Info("Shutting down gracefully")

	if membership != nil {
		if err := membership.Leave(5 * time.Second); err != nil {
			logger.Warn("Gossip shutdown failed", zap.Error(err))
		}
	}

	invalidator.Close()
	if natsConn != nil {
		if err := natsConn.Close(); err != nil {
			logger.Warn("NATS shutdown failed", zap.Error(err))
		}
	}

	if err := cacheClient.Close(); err != nil {
		logger.Warn("Cache client shutdown failed", zap.Error(err))
	}

	logger.Info("cachemesh stopped")
}

// storeFactory builds per-node stores for the configured eviction policy.
func storeFactory(cfg config.StoreConfig) transport.StoreFactory {
	switch cfg.Policy {
	case "lfu":
		return func() store.Store { return store.NewLFU(cfg.Capacity) }
	default:
		return func() store.Store { return store.NewLRU(cfg.Capacity) }
	}
}
