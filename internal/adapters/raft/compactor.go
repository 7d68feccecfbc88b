package raft

import (
	"context"
	"log/slog"
	"time"

	"github.com/eleven-am/retention/internal/domain"
	"github.com/eleven-am/retention/internal/ports"
)

// MinimumRetainedSequenceNumber is the lowest sequence number any lease still
// needs. It reports false when no lease constrains the log.
func MinimumRetainedSequenceNumber(leases *domain.RetentionLeases) (uint64, bool) {
	if leases == nil || leases.Len() == 0 {
		return 0, false
	}
	var floor int64 = -1
	for _, lease := range leases.Leases() {
		if floor < 0 || lease.RetainingSequenceNumber() < floor {
			floor = lease.RetainingSequenceNumber()
		}
	}
	return uint64(floor), true
}

// Compactor discards log entries that no lease retains, always keeping the
// newest TrailingLogs entries.
type Compactor struct {
	log          ports.RetainedLog
	leases       func() *domain.RetentionLeases
	trailingLogs uint64
	logger       *slog.Logger
}

func NewCompactor(log ports.RetainedLog, leases func() *domain.RetentionLeases, trailingLogs uint64, logger *slog.Logger) *Compactor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compactor{
		log:          log,
		leases:       leases,
		trailingLogs: trailingLogs,
		logger:       logger.With("component", "log-compactor"),
	}
}

// Compact deletes [first, bound) where bound is the retention floor capped by
// the trailing window, and returns how many entries went.
func (c *Compactor) Compact(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	first, err := c.log.FirstIndex()
	if err != nil {
		return 0, domain.NewStorageError("failed to read first log index", err)
	}
	last, err := c.log.LastIndex()
	if err != nil {
		return 0, domain.NewStorageError("failed to read last log index", err)
	}
	if last == 0 || last < first {
		return 0, nil
	}

	if c.trailingLogs > last {
		return 0, nil
	}
	bound := last - c.trailingLogs + 1

	floor, constrained := MinimumRetainedSequenceNumber(c.leases())
	if constrained && floor < bound {
		bound = floor
	}
	if bound <= first {
		return 0, nil
	}

	if err := c.log.DeleteRange(first, bound-1); err != nil {
		return 0, domain.NewStorageError("failed to delete log range", err,
			domain.WithContextDetail("min", first),
			domain.WithContextDetail("max", bound-1))
	}

	deleted := bound - first
	c.logger.Debug("compacted operation log",
		"from", first,
		"to", bound-1,
		"deleted", deleted,
		"retention_floor", floor,
		"constrained", constrained)
	return deleted, nil
}

// Run compacts on every tick until ctx is done.
func (c *Compactor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Compact(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warn("log compaction failed", "error", err)
			}
		}
	}
}
