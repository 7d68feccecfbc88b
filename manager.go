package retention

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v3"

	"github.com/eleven-am/retention/internal/adapters/expiry"
	"github.com/eleven-am/retention/internal/adapters/raft"
	"github.com/eleven-am/retention/internal/adapters/storage"
	"github.com/eleven-am/retention/internal/adapters/transport"
	"github.com/eleven-am/retention/internal/core"
	"github.com/eleven-am/retention/internal/domain"
	"github.com/eleven-am/retention/internal/ports"
)

// Manager runs the lease set of one shard on its primary: it persists every
// change, expires stale leases, pushes changes to replicas and accepts sets
// published by a primary when this copy is a replica.
type Manager struct {
	shard  string
	config *Config
	logger *slog.Logger

	db         *badger.DB
	store      ports.LeaseSetStore
	tracker    *core.Tracker
	expiry     *expiry.Scheduler
	server     *transport.LeaseSyncServer
	publishers []*transport.Publisher
	compactor  *raft.Compactor

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type ManagerOption func(*Manager)

// WithRetainedLog compacts log on the configured interval, never discarding
// entries a lease still retains.
func WithRetainedLog(log ports.RetainedLog) ManagerOption {
	return func(m *Manager) {
		m.compactor = raft.NewCompactor(log, m.tracker.Current, uint64(m.config.Raft.TrailingLogs), m.logger)
	}
}

// New opens the shard's lease store and resumes from the stored set, or from
// an empty set in primary term 1.
func New(shard string, config *Config, opts ...ManagerOption) (*Manager, error) {
	if shard == "" {
		return nil, domain.NewConfigurationError("shard is required", nil)
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.ApplyDefaults(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := config.Logger.With("component", "retention-manager", "shard", shard, "node_id", config.NodeID)

	db, err := storage.OpenDB(config.Storage, config.DataDir, logger)
	if err != nil {
		return nil, err
	}
	store := storage.NewLeaseStore(db, config.Storage.KeyPrefix, logger)

	initial, found, err := store.Load(context.Background(), shard)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if !found {
		if initial, err = domain.EmptyRetentionLeases(1); err != nil {
			_ = db.Close()
			return nil, err
		}
	} else {
		logger.Info("resumed retention leases",
			"primary_term", initial.PrimaryTerm(),
			"version", initial.Version(),
			"leases", initial.Len())
	}

	tracker := core.NewTracker(initial, logger)
	m := &Manager{
		shard:   shard,
		config:  config,
		logger:  logger,
		db:      db,
		store:   store,
		tracker: tracker,
		expiry:  expiry.NewScheduler(tracker, config.Expiry, logger),
		server:  transport.NewLeaseSyncServer(tracker, config.Transport, logger),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// AddReplica registers a replica to receive every change. It must be called
// before Start.
func (m *Manager) AddReplica(target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return domain.NewIllegalStateError(domain.CodeManagerStarted, "replicas must be added before start")
	}

	publisher, err := transport.Dial(target, m.config.Transport, m.logger)
	if err != nil {
		return err
	}
	m.publishers = append(m.publishers, publisher)
	return nil
}

func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)

	updates, unsubscribe := m.tracker.Subscribe()
	m.wg.Add(1)
	go m.persist(runCtx, updates, unsubscribe)

	if err := m.expiry.Start(runCtx); err != nil {
		cancel()
		m.wg.Wait()
		return err
	}
	if err := m.server.Start(runCtx); err != nil {
		cancel()
		_ = m.expiry.Stop()
		m.wg.Wait()
		return err
	}

	if len(m.publishers) > 0 {
		replicas := make([]ports.LeasePublisher, len(m.publishers))
		for i, p := range m.publishers {
			replicas[i] = p
		}
		done := transport.NewReplicator(m.tracker, replicas, m.config.Transport, m.logger).Start(runCtx)
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			<-done
		}()
	}

	if m.compactor != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.compactor.Run(runCtx, m.config.Raft.CompactionInterval)
		}()
	}

	m.cancel = cancel
	m.started = true
	m.logger.Info("retention manager started", "replicas", len(m.publishers))
	return nil
}

func (m *Manager) persist(ctx context.Context, updates <-chan *domain.RetentionLeases, unsubscribe func()) {
	defer m.wg.Done()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case leases, ok := <-updates:
			if !ok {
				return
			}
			if err := m.store.Save(ctx, m.shard, leases); err != nil && ctx.Err() == nil {
				m.logger.Warn("failed to persist retention leases",
					"version", leases.Version(),
					"error", err)
			}
		}
	}
}

// Stop shuts every worker down and writes the final set before closing the store.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return m.db.Close()
	}
	m.started = false

	var errs []error
	m.cancel()
	if err := m.expiry.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := m.server.Stop(); err != nil {
		errs = append(errs, err)
	}
	m.wg.Wait()

	for _, p := range m.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.publishers = nil

	if err := m.store.Save(context.Background(), m.shard, m.tracker.Current()); err != nil && !domain.IsStale(err) {
		errs = append(errs, err)
	}
	if err := m.db.Close(); err != nil {
		errs = append(errs, err)
	}

	m.logger.Info("retention manager stopped")
	return errors.Join(errs...)
}

func (m *Manager) Leases() *RetentionLeases {
	return m.tracker.Current()
}

func (m *Manager) Tracker() *Tracker {
	return m.tracker
}

// SyncAddr is the address the lease sync service listens on once started.
func (m *Manager) SyncAddr() string {
	return m.server.Addr()
}

func (m *Manager) Acquire(source string, retainingSequenceNumber int64) (RetentionLease, error) {
	return m.tracker.Acquire(source, retainingSequenceNumber)
}

func (m *Manager) Add(lease RetentionLease) (*RetentionLeases, error) {
	return m.tracker.Add(lease)
}

func (m *Manager) Renew(id string, retainingSequenceNumber, timestamp int64) (*RetentionLeases, error) {
	return m.tracker.Renew(id, retainingSequenceNumber, timestamp)
}

func (m *Manager) Remove(id string) (*RetentionLeases, error) {
	return m.tracker.Remove(id)
}

func (m *Manager) OnPrimaryTermChange(primaryTerm int64) (*RetentionLeases, error) {
	return m.tracker.OnPrimaryTermChange(primaryTerm)
}

func (m *Manager) Subscribe() (<-chan *RetentionLeases, func()) {
	return m.tracker.Subscribe()
}

// RetentionFloor is the lowest sequence number still retained by a lease.
func (m *Manager) RetentionFloor() (uint64, bool) {
	return raft.MinimumRetainedSequenceNumber(m.tracker.Current())
}
