package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"

	"github.com/dgraph-io/badger/v3"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/eleven-am/retention/internal/domain"
)

const (
	leasesSegment = "leases/"
	termSegment   = "term/"

	leaseStoreComponent = "adapters.storage.LeaseStore"
)

// LeaseStore keeps one encoded lease set per shard in badger. The payload and
// the primary term live under sibling keys and are always written together.
type LeaseStore struct {
	db     *badger.DB
	prefix string
	logger *slog.Logger
}

func NewLeaseStore(db *badger.DB, prefix string, logger *slog.Logger) *LeaseStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &LeaseStore{
		db:     db,
		prefix: prefix,
		logger: logger.With("component", "lease-store"),
	}
}

// OpenDB opens the badger database backing the store.
func OpenDB(cfg domain.StorageConfig, dir string, logger *slog.Logger) (*badger.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(filepath.Join(dir, "leases"))
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = NewBadgerLogger(logger.With("component", "lease-store.badger"))
	opts.MemTableSize = 16 << 20
	opts.NumMemtables = 2
	opts.BlockCacheSize = 8 << 20
	opts.IndexCacheSize = 8 << 20
	opts.ValueLogFileSize = 16 << 20

	db, err := badger.Open(opts)
	if err != nil {
		return nil, storeError("failed to open lease database", err, domain.WithContextDetail("dir", dir))
	}
	return db, nil
}

func (s *LeaseStore) Save(ctx context.Context, shard string, leases *domain.RetentionLeases) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload := domain.EncodeRetentionLeases(leases)
	term := protowire.AppendVarint(nil, uint64(leases.PrimaryTerm()))

	err := s.db.Update(func(txn *badger.Txn) error {
		stored, exists, err := s.read(txn, shard)
		if err != nil {
			return err
		}
		if exists {
			if stored.Equal(leases) {
				return nil
			}
			if !leases.Supersedes(stored) {
				return domain.NewIllegalStateError(domain.CodeStaleLeases,
					fmt.Sprintf("stored retention leases [%d/%d] supersede [%d/%d]",
						stored.PrimaryTerm(), stored.Version(), leases.PrimaryTerm(), leases.Version()),
					domain.WithComponent(leaseStoreComponent),
					domain.WithCause(domain.ErrStaleLeases),
					domain.WithContextDetail("shard", shard))
			}
		}
		if err := txn.Set(s.key(leasesSegment, shard), payload); err != nil {
			return err
		}
		return txn.Set(s.key(termSegment, shard), term)
	})
	if err != nil {
		var domainErr *domain.DomainError
		if errors.As(err, &domainErr) {
			return err
		}
		return storeError("failed to save retention leases", err, domain.WithContextDetail("shard", shard))
	}

	s.logger.Debug("saved retention leases",
		"shard", shard,
		"primary_term", leases.PrimaryTerm(),
		"version", leases.Version(),
		"bytes", len(payload))
	return nil
}

func (s *LeaseStore) Load(ctx context.Context, shard string) (*domain.RetentionLeases, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var (
		leases *domain.RetentionLeases
		exists bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		leases, exists, err = s.read(txn, shard)
		return err
	})
	if err != nil {
		var domainErr *domain.DomainError
		if errors.As(err, &domainErr) {
			return nil, false, err
		}
		return nil, false, storeError("failed to load retention leases", err, domain.WithContextDetail("shard", shard))
	}
	return leases, exists, nil
}

func (s *LeaseStore) Delete(ctx context.Context, shard string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(s.key(leasesSegment, shard)); err != nil {
			return err
		}
		return txn.Delete(s.key(termSegment, shard))
	})
	if err != nil {
		return storeError("failed to delete retention leases", err, domain.WithContextDetail("shard", shard))
	}
	return nil
}

func (s *LeaseStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte(s.prefix + leasesSegment)
	var shards []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			shards = append(shards, strings.TrimPrefix(key, string(prefix)))
		}
		return nil
	})
	if err != nil {
		return nil, storeError("failed to list retention lease shards", err)
	}
	return shards, nil
}

func (s *LeaseStore) read(txn *badger.Txn, shard string) (*domain.RetentionLeases, bool, error) {
	payload, ok, err := getValue(txn, s.key(leasesSegment, shard))
	if err != nil || !ok {
		return nil, false, err
	}
	rawTerm, ok, err := getValue(txn, s.key(termSegment, shard))
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, domain.NewDecodingError("primary term missing for stored retention leases", nil,
			domain.WithComponent(leaseStoreComponent),
			domain.WithContextDetail("shard", shard))
	}

	term, n := protowire.ConsumeVarint(rawTerm)
	if n < 0 || n != len(rawTerm) || term > math.MaxInt64 {
		return nil, false, domain.NewDecodingError("corrupt primary term for stored retention leases", nil,
			domain.WithComponent(leaseStoreComponent),
			domain.WithContextDetail("shard", shard))
	}

	leases, err := domain.DecodeRetentionLeases(payload, int64(term))
	if err != nil {
		return nil, false, err
	}
	return leases, true, nil
}

func (s *LeaseStore) key(segment, shard string) []byte {
	return []byte(s.prefix + segment + shard)
}

func getValue(txn *badger.Txn, key []byte) ([]byte, bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func storeError(message string, cause error, opts ...domain.ErrorOption) *domain.DomainError {
	merged := append([]domain.ErrorOption{domain.WithComponent(leaseStoreComponent)}, opts...)
	return domain.NewStorageError(message, cause, merged...)
}
