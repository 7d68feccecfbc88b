package domain

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"dario.cat/mergo"

	"github.com/eleven-am/retention/internal/xjson"
)

func DefaultConfig() *Config {
	return &Config{
		Raft:      DefaultRaftConfig(),
		Storage:   DefaultStorageConfig(),
		Expiry:    DefaultExpiryConfig(),
		Transport: DefaultTransportConfig(),
	}
}

func DefaultRaftConfig() RaftConfig {
	return RaftConfig{
		BindAddr:           "127.0.0.1:7000",
		HeartbeatTimeout:   1000 * time.Millisecond,
		ElectionTimeout:    1000 * time.Millisecond,
		CommitTimeout:      50 * time.Millisecond,
		LeaderLeaseTimeout: 500 * time.Millisecond,
		ApplyTimeout:       5 * time.Second,
		SnapshotInterval:   120 * time.Second,
		SnapshotThreshold:  1024,
		MaxSnapshots:       2,
		TrailingLogs:       1024,
		CompactionInterval: 30 * time.Second,
	}
}

func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		KeyPrefix: "retention:",
	}
}

func DefaultExpiryConfig() ExpiryConfig {
	return ExpiryConfig{
		Interval:        30 * time.Second,
		RetentionPeriod: 12 * time.Hour,
	}
}

func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		ListenAddr:        "127.0.0.1:7100",
		MaxMessageSizeMB:  4,
		ConnectionTimeout: 10 * time.Second,

		BreakerFailureThreshold: 5,
		BreakerCooldown:         10 * time.Second,
	}
}

// LoadConfig reads a JSON config file and fills every unset field from the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewConfigurationError("failed to read config file", err, WithContextDetail("path", path))
	}

	cfg := &Config{}
	if err := xjson.UnmarshalStrict(data, cfg); err != nil {
		return nil, NewConfigurationError("failed to parse config file", err, WithContextDetail("path", path))
	}

	if err := cfg.ApplyDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) ApplyDefaults() error {
	if err := mergo.Merge(c, DefaultConfig()); err != nil {
		return NewConfigurationError("failed to merge config defaults", err)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

func (c *Config) Validate() error {
	if c.NodeID == "" {
		return invalidConfig("node_id", c.NodeID)
	}
	if c.DataDir == "" && !c.Storage.InMemory {
		return invalidConfig("data_dir", c.DataDir)
	}
	if c.Raft.BindAddr == "" {
		return invalidConfig("raft.bind_addr", c.Raft.BindAddr)
	}
	if c.Raft.ApplyTimeout <= 0 {
		return invalidConfig("raft.apply_timeout", c.Raft.ApplyTimeout)
	}
	if c.Raft.CompactionInterval <= 0 {
		return invalidConfig("raft.compaction_interval", c.Raft.CompactionInterval)
	}
	if !c.Expiry.Disabled {
		if c.Expiry.Interval <= 0 {
			return invalidConfig("expiry.interval", c.Expiry.Interval)
		}
		if c.Expiry.RetentionPeriod <= 0 {
			return invalidConfig("expiry.retention_period", c.Expiry.RetentionPeriod)
		}
	}
	if c.Transport.MaxMessageSizeMB < 0 {
		return invalidConfig("transport.max_message_size_mb", c.Transport.MaxMessageSizeMB)
	}
	return nil
}

func invalidConfig(field string, value interface{}) *DomainError {
	return NewConfigurationError(fmt.Sprintf("invalid %s: [%v]", field, value), nil,
		WithContextDetail("field", field))
}
