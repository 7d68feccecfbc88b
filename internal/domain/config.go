package domain

import (
	"log/slog"
	"time"
)

type Config struct {
	NodeID  string       `json:"node_id" yaml:"node_id"`
	DataDir string       `json:"data_dir" yaml:"data_dir"`
	Logger  *slog.Logger `json:"-" yaml:"-"`

	Raft      RaftConfig      `json:"raft" yaml:"raft"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Expiry    ExpiryConfig    `json:"expiry" yaml:"expiry"`
	Transport TransportConfig `json:"transport" yaml:"transport"`
}

type RaftConfig struct {
	BindAddr           string        `json:"bind_addr" yaml:"bind_addr"`
	Bootstrap          bool          `json:"bootstrap" yaml:"bootstrap"`
	HeartbeatTimeout   time.Duration `json:"heartbeat_timeout" yaml:"heartbeat_timeout"`
	ElectionTimeout    time.Duration `json:"election_timeout" yaml:"election_timeout"`
	CommitTimeout      time.Duration `json:"commit_timeout" yaml:"commit_timeout"`
	LeaderLeaseTimeout time.Duration `json:"leader_lease_timeout" yaml:"leader_lease_timeout"`
	ApplyTimeout       time.Duration `json:"apply_timeout" yaml:"apply_timeout"`
	SnapshotInterval   time.Duration `json:"snapshot_interval" yaml:"snapshot_interval"`
	SnapshotThreshold  uint64        `json:"snapshot_threshold" yaml:"snapshot_threshold"`
	MaxSnapshots       int           `json:"max_snapshots" yaml:"max_snapshots"`
	TrailingLogs       uint64        `json:"trailing_logs" yaml:"trailing_logs"`
	CompactionInterval time.Duration `json:"compaction_interval" yaml:"compaction_interval"`
}

type StorageConfig struct {
	InMemory  bool   `json:"in_memory" yaml:"in_memory"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// ExpiryConfig drives the background expiry of leases. Lease timestamps are
// interpreted as unix milliseconds. Expiry is on unless Disabled is set.
type ExpiryConfig struct {
	Disabled         bool          `json:"disabled" yaml:"disabled"`
	Interval         time.Duration `json:"interval" yaml:"interval"`
	RetentionPeriod  time.Duration `json:"retention_period" yaml:"retention_period"`
	ProtectedSources []string      `json:"protected_sources,omitempty" yaml:"protected_sources,omitempty"`
}

type TransportConfig struct {
	ListenAddr        string        `json:"listen_addr" yaml:"listen_addr"`
	MaxMessageSizeMB  int           `json:"max_message_size_mb" yaml:"max_message_size_mb"`
	ConnectionTimeout time.Duration `json:"connection_timeout" yaml:"connection_timeout"`

	// A replica is skipped for BreakerCooldown after BreakerFailureThreshold
	// consecutive failed publishes.
	BreakerFailureThreshold int           `json:"breaker_failure_threshold" yaml:"breaker_failure_threshold"`
	BreakerCooldown         time.Duration `json:"breaker_cooldown" yaml:"breaker_cooldown"`
}
