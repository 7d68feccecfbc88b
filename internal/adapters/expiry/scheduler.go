package expiry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/retention/internal/domain"
	"github.com/eleven-am/retention/internal/ports"
)

// Scheduler periodically removes leases that have not been renewed within
// the retention period. Leases from protected sources never expire.
type Scheduler struct {
	holder    ports.LeaseHolder
	config    domain.ExpiryConfig
	logger    *slog.Logger
	now       func() time.Time
	protected map[string]struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type SchedulerOption func(*Scheduler)

func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.now = now
	}
}

func NewScheduler(holder ports.LeaseHolder, config domain.ExpiryConfig, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	protected := make(map[string]struct{}, len(config.ProtectedSources))
	for _, source := range config.ProtectedSources {
		protected[source] = struct{}{}
	}

	s := &Scheduler{
		holder:    holder,
		config:    config,
		logger:    logger.With("component", "expiry_scheduler"),
		now:       time.Now,
		protected: protected,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s.config.Disabled {
		s.logger.Info("lease expiry disabled")
		return nil
	}
	if s.config.Interval <= 0 {
		return domain.NewConfigurationError("expiry interval must be positive", nil,
			domain.WithComponent("expiry.Scheduler"),
			domain.WithContextDetail("interval", s.config.Interval))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.logger.Info("starting expiry scheduler",
		"interval", s.config.Interval,
		"retention_period", s.config.RetentionPeriod)

	s.wg.Add(1)
	go s.run(runCtx)
	return nil
}

func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	s.wg.Wait()
	s.logger.Info("expiry scheduler stopped")
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(s.now()); err != nil {
				s.logger.Warn("lease expiry pass failed", "error", err)
			}
		}
	}
}

// RunOnce removes every lease whose timestamp is older than now minus the
// retention period and returns the removed leases.
func (s *Scheduler) RunOnce(now time.Time) ([]domain.RetentionLease, error) {
	cutoff := now.Add(-s.config.RetentionPeriod).UnixMilli()

	var expired []domain.RetentionLease
	for _, lease := range s.holder.Current().Leases() {
		if s.retained(lease, cutoff) {
			continue
		}

		var latest domain.RetentionLease
		_, removed, err := s.holder.RemoveIf(lease.ID(), func(held domain.RetentionLease) bool {
			latest = held
			return !s.retained(held, cutoff)
		})
		if err != nil {
			if domain.IsNotFound(err) {
				continue
			}
			return expired, err
		}
		if !removed {
			continue
		}

		s.logger.Debug("retention lease expired",
			"id", latest.ID(),
			"source", latest.Source(),
			"timestamp", latest.Timestamp(),
			"cutoff", cutoff)
		expired = append(expired, latest)
	}

	if len(expired) > 0 {
		s.logger.Info("expired retention leases", "count", len(expired))
	}
	return expired, nil
}

func (s *Scheduler) retained(lease domain.RetentionLease, cutoff int64) bool {
	if _, ok := s.protected[lease.Source()]; ok {
		return true
	}
	return lease.Timestamp() >= cutoff
}
