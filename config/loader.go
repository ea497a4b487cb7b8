package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Config file is optional; defaults plus environment cover the rest.
	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Warning: Could not read config file %s: %v. Using defaults and environment variables.\n", configPath, err)
	} else {
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	applyEnvironmentOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyEnvironmentOverrides applies environment variable overrides to config
func applyEnvironmentOverrides(cfg *Config) {
	if nodes := os.Getenv("CACHE_NODES"); nodes != "" {
		cfg.Cluster.Nodes = strings.Split(nodes, ",")
	}
	if rf := os.Getenv("CACHE_REPLICATION_FACTOR"); rf != "" {
		if n, err := strconv.Atoi(rf); err == nil {
			cfg.Cluster.ReplicationFactor = n
		}
	}
	if vn := os.Getenv("CACHE_VIRTUAL_NODES"); vn != "" {
		if n, err := strconv.Atoi(vn); err == nil {
			cfg.Cluster.VirtualNodes = n
		}
	}

	if policy := os.Getenv("CACHE_STORE_POLICY"); policy != "" {
		cfg.Store.Policy = policy
	}
	if capacity := os.Getenv("CACHE_STORE_CAPACITY"); capacity != "" {
		if n, err := strconv.Atoi(capacity); err == nil {
			cfg.Store.Capacity = n
		}
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		cfg.Invalidation.NATSURL = natsURL
	}

	if nodeID := os.Getenv("GOSSIP_NODE_ID"); nodeID != "" {
		cfg.Gossip.NodeID = nodeID
	}
	if seeds := os.Getenv("GOSSIP_SEED_NODES"); seeds != "" {
		cfg.Gossip.SeedNodes = strings.Split(seeds, ",")
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}
}
