package raft

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v3"
	"github.com/hashicorp/raft"
	raftbadger "github.com/rfyiamcool/raft-badger"

	"github.com/eleven-am/retention/internal/adapters/storage"
	"github.com/eleven-am/retention/internal/domain"
)

const storageComponent = "adapters.raft.Storage"

// Storage bundles the log, stable and snapshot stores backing a raft node.
type Storage struct {
	LogStore      raft.LogStore
	StableStore   raft.StableStore
	SnapshotStore raft.SnapshotStore
}

func newRaftStorageError(message string, cause error, opts ...domain.ErrorOption) *domain.DomainError {
	merged := append([]domain.ErrorOption{domain.WithComponent(storageComponent)}, opts...)
	return domain.NewStorageError(message, cause, merged...)
}

// NewInmemStorage is used for tests and for nodes configured without a data directory.
func NewInmemStorage() *Storage {
	store := raft.NewInmemStore()
	return &Storage{
		LogStore:      store,
		StableStore:   store,
		SnapshotStore: raft.NewInmemSnapshotStore(),
	}
}

// NewStorage opens a badger-backed raft log under dataDir/raft-log and a file
// snapshot store under dataDir/snapshots.
func NewStorage(dataDir string, retainSnapshots int, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dataDir == "" {
		return nil, newRaftStorageError("data directory is required", nil)
	}
	if retainSnapshots <= 0 {
		retainSnapshots = 2
	}

	logPath := filepath.Join(dataDir, "raft-log")
	snapshotPath := filepath.Join(dataDir, "snapshots")

	for _, dir := range []string{logPath, snapshotPath} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, newRaftStorageError("failed to create directory", err, domain.WithContextDetail("dir", dir))
		}
	}

	logOpts := badger.DefaultOptions(logPath)
	logOpts.Logger = storage.NewBadgerLogger(logger.With("component", "raft.badger-log"))
	logOpts.MemTableSize = 16 << 20
	logOpts.NumMemtables = 2
	logOpts.NumLevelZeroTables = 2
	logOpts.NumLevelZeroTablesStall = 4
	logOpts.BlockCacheSize = 8 << 20
	logOpts.IndexCacheSize = 8 << 20
	logOpts.ValueLogFileSize = 16 << 20

	store, err := raftbadger.New(raftbadger.Config{DataPath: logPath}, &logOpts)
	if err != nil {
		return nil, newRaftStorageError("failed to open raft log store", err, domain.WithContextDetail("log_path", logPath))
	}

	snapshots, err := raft.NewFileSnapshotStoreWithLogger(snapshotPath, retainSnapshots,
		NewHCLogger(logger.With("component", "raft.snapshots")))
	if err != nil {
		_ = store.Close()
		return nil, newRaftStorageError("failed to open snapshot store", err, domain.WithContextDetail("snapshot_dir", snapshotPath))
	}

	return &Storage{
		LogStore:      logCompat{LogStore: store},
		StableStore:   stableCompat{StableStore: store},
		SnapshotStore: snapshots,
	}, nil
}

// HasExistingState reports whether anything has been persisted yet.
func (s *Storage) HasExistingState() bool {
	if lastIndex, err := s.LogStore.LastIndex(); err == nil && lastIndex > 0 {
		return true
	}
	if snapshots, err := s.SnapshotStore.List(); err == nil && len(snapshots) > 0 {
		return true
	}
	return false
}

// Close releases the log store. The log and stable stores share one badger
// instance, so it is closed once.
func (s *Storage) Close() error {
	if closer, ok := s.LogStore.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

type stableCompat struct {
	raft.StableStore
}

func (s stableCompat) Get(key []byte) ([]byte, error) {
	value, err := s.StableStore.Get(key)
	if isNotFound(err) {
		return nil, nil
	}
	return value, err
}

func (s stableCompat) GetUint64(key []byte) (uint64, error) {
	value, err := s.StableStore.GetUint64(key)
	if isNotFound(err) {
		return 0, nil
	}
	return value, err
}

type logCompat struct {
	raft.LogStore
}

func (l logCompat) GetLog(index uint64, out *raft.Log) error {
	if err := l.LogStore.GetLog(index, out); isNotFound(err) {
		return raft.ErrLogNotFound
	} else {
		return err
	}
}

func (l logCompat) FirstIndex() (uint64, error) {
	idx, err := l.LogStore.FirstIndex()
	if isNotFound(err) {
		return 0, nil
	}
	return idx, err
}

func (l logCompat) LastIndex() (uint64, error) {
	idx, err := l.LogStore.LastIndex()
	if isNotFound(err) {
		return 0, nil
	}
	return idx, err
}

func (l logCompat) Close() error {
	if closer, ok := l.LogStore.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, raftbadger.ErrNotFoundKey) ||
		errors.Is(err, badger.ErrKeyNotFound) ||
		errors.Is(err, raft.ErrLogNotFound)
}
