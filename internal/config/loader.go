package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Set defaults
	cfg := DefaultConfig()

	// Set up viper
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Read config file (optional - if file doesn't exist, continue with defaults)
	if err := v.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not read config file %s: %v. Using defaults and environment variables.\n", configPath, err)
	} else {
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	// Override with environment variables (these take precedence)
	applyEnvironmentOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyEnvironmentOverrides applies environment variable overrides to config
func applyEnvironmentOverrides(cfg *Config) {
	if nodeID := os.Getenv("TIDELOG_NODE_ID"); nodeID != "" {
		cfg.Server.NodeID = nodeID
	}
	if host := os.Getenv("TIDELOG_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("TIDELOG_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if quorum := os.Getenv("TIDELOG_ZK_QUORUM"); quorum != "" {
		cfg.Zookeeper.Quorum = quorum
	}
	if timeout := os.Getenv("TIDELOG_ZK_SESSION_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.Zookeeper.SessionTimeout = d
		}
	}

	if cluster := os.Getenv("TIDELOG_CLUSTER_NAME"); cluster != "" {
		cfg.EpochStore.ClusterName = cluster
	}

	if logLevel := os.Getenv("TIDELOG_LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}
}
