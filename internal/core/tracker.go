package core

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/eleven-am/retention/internal/domain"
)

// Tracker owns the current lease set of one shard. Readers take snapshots with
// Current; writers go through a compare-and-swap loop so every successful
// mutation advances the version by exactly one.
type Tracker struct {
	current atomic.Pointer[domain.RetentionLeases]
	logger  *slog.Logger
	now     func() time.Time

	mu          sync.Mutex
	subscribers map[uint64]chan *domain.RetentionLeases
	nextSubID   uint64
	published   *domain.RetentionLeases
}

type TrackerOption func(*Tracker)

func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = now
	}
}

func NewTracker(initial *domain.RetentionLeases, logger *slog.Logger, opts ...TrackerOption) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}

	t := &Tracker{
		logger:      logger.With("component", "retention-tracker"),
		now:         time.Now,
		subscribers: make(map[uint64]chan *domain.RetentionLeases),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.current.Store(initial)
	return t
}

func (t *Tracker) Current() *domain.RetentionLeases {
	return t.current.Load()
}

func (t *Tracker) Add(lease domain.RetentionLease) (*domain.RetentionLeases, error) {
	return t.update("add", func(cur *domain.RetentionLeases) (*domain.RetentionLeases, error) {
		return cur.WithAdded(lease)
	})
}

// Acquire adds a lease under a generated ID, stamped with the tracker clock.
func (t *Tracker) Acquire(source string, retainingSequenceNumber int64) (domain.RetentionLease, error) {
	lease, err := domain.NewRetentionLease(uuid.NewString(), retainingSequenceNumber, t.now().UnixMilli(), source)
	if err != nil {
		return domain.RetentionLease{}, err
	}
	if _, err := t.Add(lease); err != nil {
		return domain.RetentionLease{}, err
	}
	return lease, nil
}

func (t *Tracker) Renew(id string, retainingSequenceNumber, timestamp int64) (*domain.RetentionLeases, error) {
	return t.update("renew", func(cur *domain.RetentionLeases) (*domain.RetentionLeases, error) {
		return cur.WithRenewed(id, retainingSequenceNumber, timestamp)
	})
}

// RenewNow renews with the tracker clock as the new timestamp.
func (t *Tracker) RenewNow(id string, retainingSequenceNumber int64) (*domain.RetentionLeases, error) {
	return t.Renew(id, retainingSequenceNumber, t.now().UnixMilli())
}

func (t *Tracker) Remove(id string) (*domain.RetentionLeases, error) {
	return t.update("remove", func(cur *domain.RetentionLeases) (*domain.RetentionLeases, error) {
		return cur.WithRemoved(id)
	})
}

// RemoveIf removes the lease with the given ID only when cond holds for the
// lease in the set being replaced. It reports whether the lease was removed.
func (t *Tracker) RemoveIf(id string, cond func(domain.RetentionLease) bool) (*domain.RetentionLeases, bool, error) {
	removed := false
	next, err := t.update("remove", func(cur *domain.RetentionLeases) (*domain.RetentionLeases, error) {
		removed = false
		if lease, ok := cur.Get(id); ok && !cond(lease) {
			return cur, nil
		}
		removed = true
		return cur.WithRemoved(id)
	})
	if err != nil {
		return nil, false, err
	}
	return next, removed, nil
}

// Apply runs a replicated lease command against the current set.
func (t *Tracker) Apply(cmd *domain.LeaseCommand) (*domain.RetentionLeases, error) {
	return t.update(cmd.Type.String(), cmd.ApplyTo)
}

// Reset unconditionally replaces the current set, as when restoring a snapshot.
func (t *Tracker) Reset(leases *domain.RetentionLeases) {
	t.current.Store(leases)
	t.mu.Lock()
	t.published = nil
	t.mu.Unlock()
	t.publish(leases)
}

// Adopt replaces the current set with incoming when incoming supersedes it.
func (t *Tracker) Adopt(incoming *domain.RetentionLeases) error {
	for {
		cur := t.current.Load()
		if !incoming.Supersedes(cur) {
			if incoming.Equal(cur) {
				return nil
			}
			t.logger.Debug("ignoring stale retention leases",
				"incoming_term", incoming.PrimaryTerm(),
				"incoming_version", incoming.Version(),
				"current_term", cur.PrimaryTerm(),
				"current_version", cur.Version())
			return domain.NewReplicationError("incoming retention leases rejected", domain.ErrStaleLeases,
				domain.WithContextDetail("incoming_term", incoming.PrimaryTerm()),
				domain.WithContextDetail("incoming_version", incoming.Version()))
		}
		if t.current.CompareAndSwap(cur, incoming) {
			t.logger.Debug("adopted retention leases",
				"primary_term", incoming.PrimaryTerm(),
				"version", incoming.Version(),
				"leases", incoming.Len())
			t.publish(incoming)
			return nil
		}
	}
}

// OnPrimaryTermChange moves the held set into a newer primary term.
func (t *Tracker) OnPrimaryTermChange(primaryTerm int64) (*domain.RetentionLeases, error) {
	return t.swap("primary_term_change", func(cur *domain.RetentionLeases) (*domain.RetentionLeases, error) {
		if primaryTerm == cur.PrimaryTerm() {
			return cur, nil
		}
		return cur.WithPrimaryTerm(primaryTerm)
	})
}

// Subscribe returns a channel that always holds the latest published set.
func (t *Tracker) Subscribe() (<-chan *domain.RetentionLeases, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextSubID
	t.nextSubID++
	ch := make(chan *domain.RetentionLeases, 1)
	t.subscribers[id] = ch

	return ch, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if sub, ok := t.subscribers[id]; ok {
			delete(t.subscribers, id)
			close(sub)
		}
	}
}

func (t *Tracker) update(op string, fn func(*domain.RetentionLeases) (*domain.RetentionLeases, error)) (*domain.RetentionLeases, error) {
	next, err := t.swap(op, fn)
	if err != nil {
		t.logger.Debug("retention lease mutation rejected", "operation", op, "error", err)
	}
	return next, err
}

func (t *Tracker) swap(op string, fn func(*domain.RetentionLeases) (*domain.RetentionLeases, error)) (*domain.RetentionLeases, error) {
	for {
		cur := t.current.Load()
		next, err := fn(cur)
		if err != nil {
			return nil, err
		}
		if next == cur {
			return cur, nil
		}
		if t.current.CompareAndSwap(cur, next) {
			t.logger.Debug("retention leases updated",
				"operation", op,
				"primary_term", next.PrimaryTerm(),
				"version", next.Version())
			t.publish(next)
			return next, nil
		}
	}
}

func (t *Tracker) publish(leases *domain.RetentionLeases) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// concurrent writers may reach here out of order
	if t.published != nil && !leases.Supersedes(t.published) {
		return
	}
	t.published = leases

	for _, ch := range t.subscribers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- leases:
		default:
		}
	}
}
