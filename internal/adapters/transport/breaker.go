package transport

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/retention/internal/domain"
	"github.com/eleven-am/retention/internal/ports"
)

var ErrReplicaUnavailable = errors.New("replica circuit is open")

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// guardedPublisher stops calling a replica after repeated failures and lets a
// single probe through once the cool-down has passed. A stale rejection means
// the replica is reachable, so it counts as a success.
type guardedPublisher struct {
	next      ports.LeasePublisher
	threshold int
	cooldown  time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu       sync.Mutex
	state    breakerState
	failures int
	retryAt  time.Time
	probing  bool
}

func newGuardedPublisher(next ports.LeasePublisher, cfg domain.TransportConfig, logger *slog.Logger) *guardedPublisher {
	threshold := cfg.BreakerFailureThreshold
	if threshold <= 0 {
		threshold = 5
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 10 * time.Second
	}
	return &guardedPublisher{
		next:      next,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		logger:    logger,
	}
}

func (g *guardedPublisher) Publish(ctx context.Context, leases *domain.RetentionLeases) error {
	if !g.allow() {
		return ErrReplicaUnavailable
	}

	err := g.next.Publish(ctx, leases)
	if err == nil || errors.Is(err, domain.ErrStaleLeases) {
		g.onSuccess()
	} else {
		g.onFailure()
	}
	return err
}

func (g *guardedPublisher) allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == stateOpen && !g.now().Before(g.retryAt) {
		g.setState(stateHalfOpen)
	}

	switch g.state {
	case stateClosed:
		return true
	case stateHalfOpen:
		if g.probing {
			return false
		}
		g.probing = true
		return true
	default:
		return false
	}
}

func (g *guardedPublisher) onSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.failures = 0
	g.probing = false
	g.setState(stateClosed)
}

func (g *guardedPublisher) onFailure() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.failures++
	g.probing = false
	if g.state == stateHalfOpen || g.failures >= g.threshold {
		g.retryAt = g.now().Add(g.cooldown)
		g.setState(stateOpen)
	}
}

func (g *guardedPublisher) setState(next breakerState) {
	if g.state == next {
		return
	}
	g.logger.Info("replica circuit state change",
		"from", g.state.String(),
		"to", next.String(),
		"consecutive_failures", g.failures)
	g.state = next
}
