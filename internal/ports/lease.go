package ports

import (
	"context"

	"github.com/eleven-am/retention/internal/domain"
)

// LeaseSetStore persists one lease set per shard. The primary term is stored
// next to the encoded payload rather than inside it.
type LeaseSetStore interface {
	// Save stores leases unless the stored set for the shard supersedes it.
	Save(ctx context.Context, shard string, leases *domain.RetentionLeases) error

	// Load returns the stored set and whether one exists.
	Load(ctx context.Context, shard string) (*domain.RetentionLeases, bool, error)

	Delete(ctx context.Context, shard string) error

	List(ctx context.Context) ([]string, error)
}

// LeaseHolder is the owner of the current lease set on a node.
type LeaseHolder interface {
	Current() *domain.RetentionLeases
	Adopt(incoming *domain.RetentionLeases) error
	// RemoveIf removes the lease only if cond still holds for it at the
	// moment of removal.
	RemoveIf(id string, cond func(domain.RetentionLease) bool) (*domain.RetentionLeases, bool, error)
}

// LeasePublisher ships a lease set to a replica under its primary term.
type LeasePublisher interface {
	Publish(ctx context.Context, leases *domain.RetentionLeases) error
}

// LeaseSubscriber delivers the latest lease set after each change.
type LeaseSubscriber interface {
	Subscribe() (<-chan *domain.RetentionLeases, func())
}
