package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  node_id: node-7
  port: 6000
zookeeper:
  quorum: "zk1:2181,zk2:2181,zk3:2181"
  session_timeout: 5s
epoch_store:
  cluster_name: prod
  create_root_znodes: false
health_monitor:
  sleep_period: 250ms
  num_workers: 8
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "node-7", cfg.Server.NodeID)
	assert.Equal(t, 6000, cfg.Server.Port)
	assert.Equal(t, "zk1:2181,zk2:2181,zk3:2181", cfg.Zookeeper.Quorum)
	assert.Equal(t, 5*time.Second, cfg.Zookeeper.SessionTimeout)
	assert.Equal(t, "prod", cfg.EpochStore.ClusterName)
	assert.False(t, cfg.EpochStore.CreateRootZnodes)
	assert.Equal(t, 250*time.Millisecond, cfg.HealthMonitor.SleepPeriod)
	assert.Equal(t, 8, cfg.HealthMonitor.NumWorkers)

	// Untouched sections keep their defaults.
	assert.Equal(t, "/tidelog", cfg.EpochStore.PathPrefix)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Zookeeper.Quorum, cfg.Zookeeper.Quorum)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("TIDELOG_ZK_QUORUM", "zk9:2181")
	t.Setenv("TIDELOG_NODE_ID", "env-node")
	t.Setenv("TIDELOG_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "zk9:2181", cfg.Zookeeper.Quorum)
	assert.Equal(t, "env-node", cfg.Server.NodeID)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty quorum", func(c *Config) { c.Zookeeper.Quorum = "" }},
		{"zero session timeout", func(c *Config) { c.Zookeeper.SessionTimeout = 0 }},
		{"empty cluster name", func(c *Config) { c.EpochStore.ClusterName = "" }},
		{"cluster name with slash", func(c *Config) { c.EpochStore.ClusterName = "a/b" }},
		{"relative path prefix", func(c *Config) { c.EpochStore.PathPrefix = "tidelog" }},
		{"zero sleep period", func(c *Config) { c.HealthMonitor.SleepPeriod = 0 }},
		{"zero workers", func(c *Config) { c.HealthMonitor.NumWorkers = 0 }},
		{"percentage above one", func(c *Config) { c.HealthMonitor.MaxStalledWorkerPercentage = 1.5 }},
		{"bad port", func(c *Config) { c.Server.Port = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestUpdatableZookeeperNotifiesSubscribers(t *testing.T) {
	cell := NewUpdatableZookeeper(&ZookeeperConfig{Quorum: "a:2181"})

	calls := 0
	unsubscribe := cell.Subscribe(func() { calls++ })

	cell.Store(&ZookeeperConfig{Quorum: "b:2181"})
	assert.Equal(t, 1, calls)
	assert.Equal(t, "b:2181", cell.Get().Quorum)

	unsubscribe()
	cell.Store(&ZookeeperConfig{Quorum: "c:2181"})
	assert.Equal(t, 1, calls)
	assert.Equal(t, "c:2181", cell.Get().Quorum)
}
