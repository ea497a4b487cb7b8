// Package config defines the cache mesh configuration and its loader.
package config

import (
	"errors"
	"time"
)

// Config represents the full cache mesh configuration
type Config struct {
	Cluster      ClusterConfig      `mapstructure:"cluster"`
	Breaker      BreakerConfig      `mapstructure:"breaker"`
	Store        StoreConfig        `mapstructure:"store"`
	WriteBehind  WriteBehindConfig  `mapstructure:"write_behind"`
	Invalidation InvalidationConfig `mapstructure:"invalidation"`
	Gossip       GossipConfig       `mapstructure:"gossip"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ClusterConfig represents ring and replication configuration
type ClusterConfig struct {
	Nodes              []string      `mapstructure:"nodes"`
	VirtualNodes       int           `mapstructure:"virtual_nodes"`
	ReplicationFactor  int           `mapstructure:"replication_factor"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	PoolSize           int           `mapstructure:"pool_size"`
	ReplicationWorkers int           `mapstructure:"replication_workers"`
	ReplicationQueue   int           `mapstructure:"replication_queue"`
}

// BreakerConfig represents per-node circuit breaker configuration
type BreakerConfig struct {
	Threshold       int           `mapstructure:"threshold"`
	RecoveryTimeout time.Duration `mapstructure:"recovery_timeout"`
}

// StoreConfig represents per-node store configuration
type StoreConfig struct {
	Policy   string `mapstructure:"policy"` // lru or lfu
	Capacity int    `mapstructure:"capacity"`
}

// WriteBehindConfig represents the write-behind queue configuration
type WriteBehindConfig struct {
	Workers      int           `mapstructure:"workers"`
	QueueSize    int           `mapstructure:"queue_size"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// InvalidationConfig represents pub/sub invalidation configuration
type InvalidationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Topic   string `mapstructure:"topic"`
	NATSURL string `mapstructure:"nats_url"`
}

// GossipConfig represents gossip membership configuration
type GossipConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	NodeID         string        `mapstructure:"node_id"`
	BindAddr       string        `mapstructure:"bind_addr"`
	BindPort       int           `mapstructure:"bind_port"`
	SeedNodes      []string      `mapstructure:"seed_nodes"`
	GossipInterval time.Duration `mapstructure:"gossip_interval"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout"`
	ProbeInterval  time.Duration `mapstructure:"probe_interval"`
}

// MetricsConfig represents Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if len(c.Cluster.Nodes) == 0 && !c.Gossip.Enabled {
		return errors.New("cluster.nodes is required when gossip is disabled")
	}
	if c.Cluster.VirtualNodes <= 0 {
		return errors.New("cluster.virtual_nodes must be positive")
	}
	if c.Cluster.ReplicationFactor <= 0 {
		return errors.New("cluster.replication_factor must be positive")
	}
	if c.Cluster.RequestTimeout <= 0 {
		return errors.New("cluster.request_timeout must be positive")
	}
	if c.Breaker.Threshold <= 0 {
		return errors.New("breaker.threshold must be positive")
	}
	if c.Breaker.RecoveryTimeout <= 0 {
		return errors.New("breaker.recovery_timeout must be positive")
	}
	if !isValidPolicy(c.Store.Policy) {
		return errors.New("store.policy must be one of: lru, lfu")
	}
	if c.Gossip.Enabled && c.Gossip.NodeID == "" {
		return errors.New("gossip.node_id is required when gossip is enabled")
	}
	if c.Invalidation.Enabled && c.Invalidation.NATSURL == "" {
		return errors.New("invalidation.nats_url is required when invalidation is enabled")
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return errors.New("metrics.port must be between 1 and 65535")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return nil
}

// isValidPolicy checks if the eviction policy is valid
func isValidPolicy(policy string) bool {
	switch policy {
	case "lru", "lfu":
		return true
	default:
		return false
	}
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		Cluster: ClusterConfig{
			Nodes:              []string{"127.0.0.1:7000"},
			VirtualNodes:       150,
			ReplicationFactor:  3,
			RequestTimeout:     2 * time.Second,
			PoolSize:           64,
			ReplicationWorkers: 4,
			ReplicationQueue:   256,
		},
		Breaker: BreakerConfig{
			Threshold:       5,
			RecoveryTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Policy:   "lru",
			Capacity: 10000,
		},
		WriteBehind: WriteBehindConfig{
			Workers:      4,
			QueueSize:    256,
			WriteTimeout: 5 * time.Second,
		},
		Invalidation: InvalidationConfig{
			Enabled: false,
			Topic:   "cache.invalidation",
			NATSURL: "nats://localhost:4222",
		},
		Gossip: GossipConfig{
			Enabled:        false,
			BindAddr:       "0.0.0.0",
			BindPort:       7946,
			GossipInterval: 200 * time.Millisecond,
			ProbeTimeout:   500 * time.Millisecond,
			ProbeInterval:  time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
