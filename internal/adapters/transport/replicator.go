package transport

import (
	"context"
	"errors"
	"log/slog"

	"github.com/eleven-am/retention/internal/domain"
	"github.com/eleven-am/retention/internal/ports"
)

// Replicator pushes every change of a local lease set to a fixed group of
// replicas. Publishing only the newest set is enough since each one
// supersedes the ones before it. Each replica sits behind its own circuit
// breaker so an unreachable one does not hold up the rest.
type Replicator struct {
	source   ports.LeaseSubscriber
	replicas []ports.LeasePublisher
	logger   *slog.Logger
}

func NewReplicator(source ports.LeaseSubscriber, replicas []ports.LeasePublisher, cfg domain.TransportConfig, logger *slog.Logger) *Replicator {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "lease-replicator")

	guarded := make([]ports.LeasePublisher, len(replicas))
	for i, replica := range replicas {
		guarded[i] = newGuardedPublisher(replica, cfg, logger.With("replica", i))
	}
	return &Replicator{
		source:   source,
		replicas: guarded,
		logger:   logger,
	}
}

// Run blocks until ctx is done or the source stops publishing.
func (r *Replicator) Run(ctx context.Context) {
	updates, cancel := r.source.Subscribe()
	r.loop(ctx, updates, cancel)
}

// Start subscribes before returning, so no change made afterwards is missed.
// The returned channel is closed once the replicator has stopped.
func (r *Replicator) Start(ctx context.Context) <-chan struct{} {
	updates, cancel := r.source.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.loop(ctx, updates, cancel)
	}()
	return done
}

func (r *Replicator) loop(ctx context.Context, updates <-chan *domain.RetentionLeases, cancel func()) {
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case leases, ok := <-updates:
			if !ok {
				return
			}
			_ = r.Broadcast(ctx, leases)
		}
	}
}

// Broadcast publishes leases to every replica and returns the errors that
// were neither stale rejections nor skipped replicas.
func (r *Replicator) Broadcast(ctx context.Context, leases *domain.RetentionLeases) error {
	var errs []error
	for _, replica := range r.replicas {
		err := replica.Publish(ctx, leases)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrStaleLeases):
			r.logger.Debug("replica already ahead", "primary_term", leases.PrimaryTerm(), "version", leases.Version())
		case errors.Is(err, ErrReplicaUnavailable):
			r.logger.Debug("skipping unavailable replica", "version", leases.Version())
		default:
			r.logger.Warn("failed to replicate retention leases", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
