package domain

import (
	"fmt"
	"math"
	"sort"
)

// RetentionLeases is an immutable, versioned collection of retention leases
// produced under a single primary term. Mutations return a new value.
type RetentionLeases struct {
	primaryTerm int64
	version     int64
	leases      map[string]RetentionLease
}

func NewRetentionLeases(primaryTerm, version int64, leases []RetentionLease) (*RetentionLeases, error) {
	if primaryTerm <= 0 {
		return nil, NewValidationError(CodeNonPositivePrimaryTerm,
			fmt.Sprintf("primary term must be positive but was [%d]", primaryTerm),
			WithContextDetail("primary_term", primaryTerm))
	}
	if version < 0 {
		return nil, NewValidationError(CodeNegativeVersion,
			fmt.Sprintf("version must be non-negative but was [%d]", version),
			WithContextDetail("version", version))
	}

	byID := make(map[string]RetentionLease, len(leases))
	for _, lease := range leases {
		byID[lease.id] = lease
	}
	return &RetentionLeases{primaryTerm: primaryTerm, version: version, leases: byID}, nil
}

// EmptyRetentionLeases is the starting state for a newly promoted primary.
func EmptyRetentionLeases(primaryTerm int64) (*RetentionLeases, error) {
	return NewRetentionLeases(primaryTerm, 0, nil)
}

func (r *RetentionLeases) PrimaryTerm() int64 {
	return r.primaryTerm
}

func (r *RetentionLeases) Version() int64 {
	return r.version
}

// Leases returns a fresh slice; the order carries no meaning.
func (r *RetentionLeases) Leases() []RetentionLease {
	out := make([]RetentionLease, 0, len(r.leases))
	for _, lease := range r.leases {
		out = append(out, lease)
	}
	return out
}

func (r *RetentionLeases) sortedLeases() []RetentionLease {
	out := r.Leases()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (r *RetentionLeases) Get(id string) (RetentionLease, bool) {
	lease, ok := r.leases[id]
	return lease, ok
}

func (r *RetentionLeases) Contains(id string) bool {
	_, ok := r.leases[id]
	return ok
}

func (r *RetentionLeases) Len() int {
	return len(r.leases)
}

// Supersedes orders lease sets by primary term, then by version.
func (r *RetentionLeases) Supersedes(other *RetentionLeases) bool {
	return r.primaryTerm > other.primaryTerm ||
		(r.primaryTerm == other.primaryTerm && r.version > other.version)
}

// Equal compares term, version and the leases as a set.
func (r *RetentionLeases) Equal(other *RetentionLeases) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.primaryTerm == other.primaryTerm && r.version == other.version && r.SameLeases(other)
}

func (r *RetentionLeases) SameLeases(other *RetentionLeases) bool {
	if len(r.leases) != len(other.leases) {
		return false
	}
	for id, lease := range r.leases {
		if theirs, ok := other.leases[id]; !ok || theirs != lease {
			return false
		}
	}
	return true
}

func (r *RetentionLeases) WithAdded(lease RetentionLease) (*RetentionLeases, error) {
	if _, ok := r.leases[lease.id]; ok {
		return nil, NewIllegalStateError(CodeDuplicateLeaseID,
			fmt.Sprintf("retention lease with ID [%s] already exists", lease.id),
			WithContextDetail("id", lease.id))
	}
	return r.next(func(leases map[string]RetentionLease) {
		leases[lease.id] = lease
	})
}

func (r *RetentionLeases) WithRenewed(id string, retainingSequenceNumber, timestamp int64) (*RetentionLeases, error) {
	existing, ok := r.leases[id]
	if !ok {
		return nil, unknownLeaseError(id)
	}
	if err := validateRetention(id, retainingSequenceNumber, timestamp); err != nil {
		return nil, err
	}
	return r.next(func(leases map[string]RetentionLease) {
		leases[id] = RetentionLease{
			id:                      id,
			retainingSequenceNumber: retainingSequenceNumber,
			timestamp:               timestamp,
			source:                  existing.source,
		}
	})
}

func (r *RetentionLeases) WithRemoved(id string) (*RetentionLeases, error) {
	if _, ok := r.leases[id]; !ok {
		return nil, unknownLeaseError(id)
	}
	return r.next(func(leases map[string]RetentionLease) {
		delete(leases, id)
	})
}

// WithPrimaryTerm carries the leases and version into a newer term.
func (r *RetentionLeases) WithPrimaryTerm(primaryTerm int64) (*RetentionLeases, error) {
	if primaryTerm < r.primaryTerm {
		return nil, NewIllegalStateError(CodeStaleLeases,
			fmt.Sprintf("primary term [%d] is older than current primary term [%d]", primaryTerm, r.primaryTerm),
			WithCause(ErrStaleLeases),
			WithContextDetail("primary_term", primaryTerm))
	}
	return NewRetentionLeases(primaryTerm, r.version, r.Leases())
}

func (r *RetentionLeases) next(mutate func(map[string]RetentionLease)) (*RetentionLeases, error) {
	if r.version == math.MaxInt64 {
		return nil, NewIllegalStateError(CodeVersionOverflow,
			fmt.Sprintf("version [%d] can not be incremented", r.version),
			WithContextDetail("version", r.version))
	}
	leases := make(map[string]RetentionLease, len(r.leases)+1)
	for id, lease := range r.leases {
		leases[id] = lease
	}
	mutate(leases)
	return &RetentionLeases{primaryTerm: r.primaryTerm, version: r.version + 1, leases: leases}, nil
}

func (r *RetentionLeases) String() string {
	return fmt.Sprintf("RetentionLeases{primaryTerm=%d, version=%d, leases=%v}", r.primaryTerm, r.version, r.sortedLeases())
}
