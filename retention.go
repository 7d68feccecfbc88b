// Package retention keeps track of retention leases: named promises that the
// history of a shard from a given sequence number onwards is retained.
//
// A RetentionLeases value is an immutable, versioned set of leases. Every
// mutation yields a new set with the version advanced by one, and sets are
// ordered by (primary term, version) so that replicas can always tell which of
// two sets is newer.
//
// Basic usage:
//
//	leases, _ := retention.EmptyRetentionLeases(1)
//	tracker := retention.NewTracker(leases, logger)
//	lease, _ := tracker.Acquire("peer recovery", 42)
//	payload := retention.EncodeRetentionLeases(tracker.Current())
package retention

import (
	"log/slog"
	"time"

	"github.com/eleven-am/retention/internal/adapters/raft"
	"github.com/eleven-am/retention/internal/core"
	"github.com/eleven-am/retention/internal/domain"
)

// RetentionLease is one immutable lease: an id, the sequence number retained
// from, the time it was last renewed and the kind of holder.
type RetentionLease = domain.RetentionLease

// RetentionLeases is an immutable versioned set of leases.
type RetentionLeases = domain.RetentionLeases

// Tracker owns the current lease set of a shard and serialises mutations.
type Tracker = core.Tracker

type TrackerOption = core.TrackerOption

// Node replicates a lease set through a raft group.
type Node = raft.Node

type NodeOption = raft.NodeOption

// Compactor trims an operation log down to what the leases still retain.
type Compactor = raft.Compactor

// LeaseCommand is a replicated lease mutation.
type LeaseCommand = domain.LeaseCommand

func NewRetentionLease(id string, retainingSequenceNumber, timestamp int64, source string) (RetentionLease, error) {
	return domain.NewRetentionLease(id, retainingSequenceNumber, timestamp, source)
}

func NewRetentionLeases(primaryTerm, version int64, leases []RetentionLease) (*RetentionLeases, error) {
	return domain.NewRetentionLeases(primaryTerm, version, leases)
}

func EmptyRetentionLeases(primaryTerm int64) (*RetentionLeases, error) {
	return domain.EmptyRetentionLeases(primaryTerm)
}

// EncodeRetentionLeases returns the canonical binary form of leases. The
// primary term is not part of it.
func EncodeRetentionLeases(leases *RetentionLeases) []byte {
	return domain.EncodeRetentionLeases(leases)
}

// DecodeRetentionLeases rebuilds a set from its binary form and the primary
// term it was sent under.
func DecodeRetentionLeases(data []byte, primaryTerm int64) (*RetentionLeases, error) {
	return domain.DecodeRetentionLeases(data, primaryTerm)
}

func NewTracker(initial *RetentionLeases, logger *slog.Logger, opts ...TrackerOption) *Tracker {
	return core.NewTracker(initial, logger, opts...)
}

func WithClock(now func() time.Time) TrackerOption {
	return core.WithClock(now)
}

func NewNode(cfg Config, opts ...NodeOption) (*Node, error) {
	return raft.NewNode(cfg, opts...)
}

// MinimumRetainedSequenceNumber is the lowest sequence number any lease in
// leases retains. It reports false for an empty set.
func MinimumRetainedSequenceNumber(leases *RetentionLeases) (uint64, bool) {
	return raft.MinimumRetainedSequenceNumber(leases)
}
