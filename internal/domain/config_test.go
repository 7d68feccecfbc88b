package domain

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValidOnceIdentified(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NodeID = "node-1"
	cfg.DataDir = t.TempDir()

	require.NoError(t, cfg.Validate())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing node id", func(c *Config) { c.NodeID = "" }, "node_id"},
		{"missing data dir", func(c *Config) { c.DataDir = "" }, "data_dir"},
		{"missing bind addr", func(c *Config) { c.Raft.BindAddr = "" }, "raft.bind_addr"},
		{"zero apply timeout", func(c *Config) { c.Raft.ApplyTimeout = 0 }, "raft.apply_timeout"},
		{"zero expiry interval", func(c *Config) { c.Expiry.Interval = 0 }, "expiry.interval"},
		{"zero retention period", func(c *Config) { c.Expiry.RetentionPeriod = 0 }, "expiry.retention_period"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.NodeID = "node-1"
			cfg.DataDir = "/tmp/retention"
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, IsConfiguration(err))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestConfigValidation_InMemoryNeedsNoDataDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NodeID = "node-1"
	cfg.Storage.InMemory = true

	assert.NoError(t, cfg.Validate())
}

func TestConfigValidation_DisabledExpirySkipsChecks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NodeID = "node-1"
	cfg.DataDir = "/tmp/retention"
	cfg.Expiry = ExpiryConfig{Disabled: true}

	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigMergesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retention.json")
	contents := `{
		"node_id": "node-7",
		"data_dir": "/var/lib/retention",
		"raft": {"bind_addr": "10.0.0.7:7000", "trailing_logs": 64},
		"expiry": {"retention_period": 60000000000, "protected_sources": ["ccr"]}
	}`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "node-7", cfg.NodeID)
	assert.Equal(t, "10.0.0.7:7000", cfg.Raft.BindAddr)
	assert.Equal(t, uint64(64), cfg.Raft.TrailingLogs)
	assert.Equal(t, time.Minute, cfg.Expiry.RetentionPeriod)
	assert.Equal(t, []string{"ccr"}, cfg.Expiry.ProtectedSources)

	defaults := DefaultConfig()
	assert.Equal(t, defaults.Raft.ApplyTimeout, cfg.Raft.ApplyTimeout)
	assert.Equal(t, defaults.Expiry.Interval, cfg.Expiry.Interval)
	assert.Equal(t, defaults.Storage.KeyPrefix, cfg.Storage.KeyPrefix)
	assert.Equal(t, defaults.Transport.ListenAddr, cfg.Transport.ListenAddr)
	assert.NotNil(t, cfg.Logger)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))

	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err = LoadConfig(path)
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))

	path = filepath.Join(t.TempDir(), "typo.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"node_id": "n", "expiry": {"retention_perod": 1}}`), 0o600))
	_, err = LoadConfig(path)
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))
}
