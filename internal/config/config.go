package config

import (
	"errors"
	"strings"
	"time"
)

// MaxClusterName bounds the cluster name length embedded in znode paths.
const MaxClusterName = 127

// Config represents the coordinator service configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Zookeeper     ZookeeperConfig     `mapstructure:"zookeeper"`
	EpochStore    EpochStoreConfig    `mapstructure:"epoch_store"`
	HealthMonitor HealthMonitorConfig `mapstructure:"health_monitor"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// ServerConfig represents gRPC server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	NodeID          string        `mapstructure:"node_id"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ZookeeperConfig represents the coordination service session configuration
type ZookeeperConfig struct {
	Quorum         string        `mapstructure:"quorum"`
	SessionTimeout time.Duration `mapstructure:"session_timeout"`
}

// EpochStoreConfig represents epoch store configuration
type EpochStoreConfig struct {
	ClusterName string `mapstructure:"cluster_name"`
	PathPrefix  string `mapstructure:"path_prefix"`

	// CreateRootZnodes controls whether missing ancestors of the root
	// path are created on demand. When false they must be pre-created
	// by external tooling.
	CreateRootZnodes bool `mapstructure:"create_root_znodes"`
}

// HealthMonitorConfig represents health monitor configuration
type HealthMonitorConfig struct {
	SleepPeriod                   time.Duration `mapstructure:"sleep_period"`
	NumWorkers                    int           `mapstructure:"num_workers"`
	MaxQueueStallsAvg             time.Duration `mapstructure:"max_queue_stalls_avg"`
	MaxQueueStallDuration         time.Duration `mapstructure:"max_queue_stall_duration"`
	MaxOverloadedWorkerPercentage float64       `mapstructure:"max_overloaded_worker_percentage"`
	MaxStallsAvg                  time.Duration `mapstructure:"max_stalls_avg"`
	MaxStalledWorkerPercentage    float64       `mapstructure:"max_stalled_worker_percentage"`
	QueueSize                     int           `mapstructure:"queue_size"`
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
	if c.Server.NodeID == "" {
		return errors.New("server.node_id is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if c.Zookeeper.Quorum == "" {
		return errors.New("zookeeper.quorum is required")
	}
	if c.Zookeeper.SessionTimeout <= 0 {
		return errors.New("zookeeper.session_timeout must be positive")
	}
	if c.EpochStore.ClusterName == "" || len(c.EpochStore.ClusterName) > MaxClusterName {
		return errors.New("epoch_store.cluster_name must be non-empty and short")
	}
	if strings.ContainsRune(c.EpochStore.ClusterName, '/') {
		return errors.New("epoch_store.cluster_name must not contain '/'")
	}
	if !strings.HasPrefix(c.EpochStore.PathPrefix, "/") {
		return errors.New("epoch_store.path_prefix must be an absolute path")
	}
	if c.HealthMonitor.SleepPeriod <= 0 {
		return errors.New("health_monitor.sleep_period must be positive")
	}
	if c.HealthMonitor.NumWorkers <= 0 {
		return errors.New("health_monitor.num_workers must be positive")
	}
	if p := c.HealthMonitor.MaxOverloadedWorkerPercentage; p < 0 || p > 1 {
		return errors.New("health_monitor.max_overloaded_worker_percentage must be in [0,1]")
	}
	if p := c.HealthMonitor.MaxStalledWorkerPercentage; p < 0 || p > 1 {
		return errors.New("health_monitor.max_stalled_worker_percentage must be in [0,1]")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return nil
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            50051,
			NodeID:          "coordinator-1",
			ShutdownTimeout: 30 * time.Second,
		},
		Zookeeper: ZookeeperConfig{
			Quorum:         "localhost:2181",
			SessionTimeout: 10 * time.Second,
		},
		EpochStore: EpochStoreConfig{
			ClusterName:      "cluster1",
			PathPrefix:       "/tidelog",
			CreateRootZnodes: true,
		},
		HealthMonitor: HealthMonitorConfig{
			SleepPeriod:                   500 * time.Millisecond,
			NumWorkers:                    16,
			MaxQueueStallsAvg:             60 * time.Millisecond,
			MaxQueueStallDuration:         200 * time.Millisecond,
			MaxOverloadedWorkerPercentage: 0.3,
			MaxStallsAvg:                  45 * time.Millisecond,
			MaxStalledWorkerPercentage:    0.3,
			QueueSize:                     1024,
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
