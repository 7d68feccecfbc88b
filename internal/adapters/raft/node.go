package raft

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/raft"

	"github.com/eleven-am/retention/internal/core"
	"github.com/eleven-am/retention/internal/domain"
)

// Node replicates a shard's lease set through a raft group.
type Node struct {
	config    domain.Config
	logger    *slog.Logger
	tracker   *core.Tracker
	fsm       *LeaseFSM
	storage   *Storage
	transport raft.Transport

	mu   sync.Mutex
	raft *raft.Raft
}

type NodeOption func(*Node)

// WithTransport replaces the TCP transport, mostly for in-memory tests.
func WithTransport(transport raft.Transport) NodeOption {
	return func(n *Node) {
		n.transport = transport
	}
}

func WithStorage(storage *Storage) NodeOption {
	return func(n *Node) {
		n.storage = storage
	}
}

func NewNode(cfg domain.Config, opts ...NodeOption) (*Node, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "raft-node", "node_id", cfg.NodeID)

	initial, err := domain.EmptyRetentionLeases(1)
	if err != nil {
		return nil, err
	}
	tracker := core.NewTracker(initial, logger)

	n := &Node{
		config:  cfg,
		logger:  logger,
		tracker: tracker,
		fsm:     NewLeaseFSM(tracker, logger),
	}
	for _, opt := range opts {
		opt(n)
	}

	if n.storage == nil {
		if cfg.Storage.InMemory {
			n.storage = NewInmemStorage()
		} else {
			n.storage, err = NewStorage(cfg.DataDir, cfg.Raft.MaxSnapshots, logger)
			if err != nil {
				return nil, err
			}
		}
	}
	return n, nil
}

func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if n.raft != nil {
		return fmt.Errorf("raft node already started")
	}

	raftConfig := n.raftConfig()

	if n.transport == nil {
		addr, err := net.ResolveTCPAddr("tcp", n.config.Raft.BindAddr)
		if err != nil {
			return fmt.Errorf("failed to resolve TCP address %s: %w", n.config.Raft.BindAddr, err)
		}
		transport, err := raft.NewTCPTransportWithLogger(n.config.Raft.BindAddr, addr, 3, 10*time.Second,
			NewHCLogger(n.logger.With("component", "raft-transport")))
		if err != nil {
			return fmt.Errorf("failed to create TCP transport: %w", err)
		}
		n.transport = transport
	}

	if n.config.Raft.Bootstrap && !n.storage.HasExistingState() {
		configuration := raft.Configuration{
			Servers: []raft.Server{{
				ID:      raftConfig.LocalID,
				Address: n.transport.LocalAddr(),
			}},
		}
		err := raft.BootstrapCluster(raftConfig, n.storage.LogStore, n.storage.StableStore, n.storage.SnapshotStore, n.transport, configuration)
		if err != nil && !errors.Is(err, raft.ErrCantBootstrap) {
			return fmt.Errorf("failed to bootstrap cluster: %w", err)
		}
		n.logger.Info("bootstrapped single-node raft cluster")
	}

	instance, err := raft.NewRaft(raftConfig, n.fsm, n.storage.LogStore, n.storage.StableStore, n.storage.SnapshotStore, n.transport)
	if err != nil {
		return fmt.Errorf("failed to create raft node: %w", err)
	}
	n.raft = instance
	n.logger.Info("raft node started", "address", n.transport.LocalAddr())
	return nil
}

func (n *Node) raftConfig() *raft.Config {
	rc := n.config.Raft
	cfg := raft.DefaultConfig()
	cfg.LocalID = raft.ServerID(n.config.NodeID)
	cfg.Logger = NewHCLogger(n.logger.With("component", "raft"))
	if rc.HeartbeatTimeout > 0 {
		cfg.HeartbeatTimeout = rc.HeartbeatTimeout
	}
	if rc.ElectionTimeout > 0 {
		cfg.ElectionTimeout = rc.ElectionTimeout
	}
	if rc.CommitTimeout > 0 {
		cfg.CommitTimeout = rc.CommitTimeout
	}
	if rc.LeaderLeaseTimeout > 0 {
		cfg.LeaderLeaseTimeout = rc.LeaderLeaseTimeout
	}
	if rc.SnapshotInterval > 0 {
		cfg.SnapshotInterval = rc.SnapshotInterval
	}
	if rc.SnapshotThreshold > 0 {
		cfg.SnapshotThreshold = rc.SnapshotThreshold
	}
	if rc.TrailingLogs > 0 {
		cfg.TrailingLogs = rc.TrailingLogs
	}
	return cfg
}

func (n *Node) instance() *raft.Raft {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.raft
}

func (n *Node) IsLeader() bool {
	r := n.instance()
	return r != nil && r.State() == raft.Leader
}

// WaitForLeader blocks until this node or a peer is leader.
func (n *Node) WaitForLeader(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if r := n.instance(); r != nil {
			if addr, _ := r.LeaderWithID(); addr != "" {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Leases returns the replicated set as applied on this node.
func (n *Node) Leases() *domain.RetentionLeases {
	return n.fsm.Leases()
}

func (n *Node) Tracker() *core.Tracker {
	return n.tracker
}

func (n *Node) AddLease(ctx context.Context, lease domain.RetentionLease) (*domain.RetentionLeases, error) {
	return n.apply(ctx, domain.NewAddLeaseCommand(lease))
}

func (n *Node) RenewLease(ctx context.Context, id string, retainingSequenceNumber, timestamp int64) (*domain.RetentionLeases, error) {
	return n.apply(ctx, domain.NewRenewLeaseCommand(id, retainingSequenceNumber, timestamp))
}

func (n *Node) RemoveLease(ctx context.Context, id string) (*domain.RetentionLeases, error) {
	return n.apply(ctx, domain.NewRemoveLeaseCommand(id))
}

func (n *Node) apply(ctx context.Context, cmd *domain.LeaseCommand) (*domain.RetentionLeases, error) {
	r := n.instance()
	if r == nil {
		return nil, domain.ErrNotStarted
	}
	if r.State() != raft.Leader {
		return nil, domain.ErrNotLeader
	}

	data, err := cmd.Marshal()
	if err != nil {
		return nil, err
	}

	timeout := n.config.Raft.ApplyTimeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		// raft reads a non-positive timeout as no timeout at all
		if remaining <= 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, context.DeadlineExceeded
		}
		if timeout <= 0 || remaining < timeout {
			timeout = remaining
		}
	}

	future := r.Apply(data, timeout)
	if err := future.Error(); err != nil {
		if errors.Is(err, raft.ErrNotLeader) || errors.Is(err, raft.ErrLeadershipLost) {
			return nil, domain.ErrNotLeader
		}
		return nil, domain.NewReplicationError("failed to apply lease command", err,
			domain.WithOperation(cmd.Type.String()))
	}

	result, ok := future.Response().(*domain.CommandResult)
	if !ok {
		return nil, domain.NewReplicationError("unexpected lease command response", nil)
	}
	if !result.Success {
		if result.Err != nil {
			return nil, result.Err
		}
		return nil, domain.NewReplicationError(result.Error, nil, domain.WithCode(result.Code))
	}
	return n.Leases(), nil
}

// Snapshot forces a raft snapshot, which also lets raft truncate its own log.
func (n *Node) Snapshot() error {
	r := n.instance()
	if r == nil {
		return domain.ErrNotStarted
	}
	return r.Snapshot().Error()
}

func (n *Node) Shutdown() error {
	n.mu.Lock()
	r := n.raft
	n.raft = nil
	n.mu.Unlock()

	var errs []error
	if r != nil {
		if err := r.Shutdown().Error(); err != nil {
			errs = append(errs, err)
		}
	}
	if closer, ok := n.transport.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := n.storage.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
