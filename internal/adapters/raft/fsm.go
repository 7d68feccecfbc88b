package raft

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/hashicorp/raft"

	"github.com/eleven-am/retention/internal/core"
	"github.com/eleven-am/retention/internal/domain"
	"github.com/eleven-am/retention/internal/xjson"
)

// LeaseFSM replicates one lease set through raft. The term of each applied log
// entry is the primary term of the set it produces.
type LeaseFSM struct {
	tracker *core.Tracker
	logger  *slog.Logger
}

type snapshotEnvelope struct {
	PrimaryTerm int64  `json:"primary_term"`
	Payload     []byte `json:"payload"`
}

func NewLeaseFSM(tracker *core.Tracker, logger *slog.Logger) *LeaseFSM {
	if logger == nil {
		logger = slog.Default()
	}
	return &LeaseFSM{
		tracker: tracker,
		logger:  logger.With("component", "lease-fsm"),
	}
}

func (f *LeaseFSM) Leases() *domain.RetentionLeases {
	return f.tracker.Current()
}

func (f *LeaseFSM) Apply(log *raft.Log) interface{} {
	cmd, err := domain.UnmarshalLeaseCommand(log.Data)
	if err != nil {
		f.logger.Error("failed to unmarshal lease command",
			"error", err,
			"term", log.Term,
			"index", log.Index)
		return failedResult(err)
	}

	if term := int64(log.Term); term > f.tracker.Current().PrimaryTerm() {
		if _, err := f.tracker.OnPrimaryTermChange(term); err != nil {
			return failedResult(err)
		}
		f.logger.Info("retention leases moved to new primary term", "primary_term", term)
	}

	f.logger.Debug("applying lease command",
		"command_type", cmd.Type.String(),
		"id", cmd.ID,
		"term", log.Term,
		"index", log.Index)

	next, err := f.tracker.Apply(cmd)
	if err != nil {
		return failedResult(err)
	}
	return &domain.CommandResult{Success: true, Version: next.Version()}
}

func failedResult(err error) *domain.CommandResult {
	return &domain.CommandResult{
		Success: false,
		Error:   err.Error(),
		Code:    domain.ErrorCode(err),
		Err:     err,
	}
}

// Snapshot captures the current set; it is immutable so no copy is needed.
func (f *LeaseFSM) Snapshot() (raft.FSMSnapshot, error) {
	return &leaseSnapshot{leases: f.tracker.Current(), logger: f.logger}, nil
}

func (f *LeaseFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return domain.NewStorageError("failed to read lease snapshot", err)
	}

	var envelope snapshotEnvelope
	if err := xjson.Unmarshal(data, &envelope); err != nil {
		return domain.NewDecodingError("failed to unmarshal lease snapshot", err)
	}

	leases, err := domain.DecodeRetentionLeases(envelope.Payload, envelope.PrimaryTerm)
	if err != nil {
		return err
	}

	f.tracker.Reset(leases)
	f.logger.Info("restored retention leases from snapshot",
		"primary_term", leases.PrimaryTerm(),
		"version", leases.Version(),
		"leases", leases.Len())
	return nil
}

type leaseSnapshot struct {
	leases *domain.RetentionLeases
	logger *slog.Logger
}

func (s *leaseSnapshot) Persist(sink raft.SnapshotSink) error {
	data, err := xjson.Marshal(snapshotEnvelope{
		PrimaryTerm: s.leases.PrimaryTerm(),
		Payload:     domain.EncodeRetentionLeases(s.leases),
	})
	if err != nil {
		_ = sink.Cancel()
		return fmt.Errorf("failed to marshal lease snapshot: %w", err)
	}

	if _, err := sink.Write(data); err != nil {
		_ = sink.Cancel()
		return fmt.Errorf("failed to write lease snapshot: %w", err)
	}

	s.logger.Debug("lease snapshot persisted",
		"primary_term", s.leases.PrimaryTerm(),
		"version", s.leases.Version(),
		"bytes", len(data))
	return sink.Close()
}

func (s *leaseSnapshot) Release() {}
