package core

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/retention/internal/domain"
)

func newTestTracker(t *testing.T, primaryTerm, version int64) *Tracker {
	t.Helper()
	initial, err := domain.NewRetentionLeases(primaryTerm, version, nil)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return NewTracker(initial, logger, WithClock(clock))
}

func TestTracker_MutationsAdvanceVersion(t *testing.T) {
	tracker := newTestTracker(t, 3, 0)

	lease, err := domain.NewRetentionLease("peer-a", 10, 1, "peer recovery")
	require.NoError(t, err)

	next, err := tracker.Add(lease)
	require.NoError(t, err)
	assert.Equal(t, int64(1), next.Version())
	assert.Same(t, next, tracker.Current())

	next, err = tracker.Renew("peer-a", 20, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), next.Version())

	next, err = tracker.Remove("peer-a")
	require.NoError(t, err)
	assert.Equal(t, int64(3), next.Version())
	assert.Equal(t, int64(3), next.PrimaryTerm())

	_, err = tracker.Remove("peer-a")
	assert.True(t, domain.IsNotFound(err))
	assert.Equal(t, int64(3), tracker.Current().Version())
}

func TestTracker_RemoveIf(t *testing.T) {
	tracker := newTestTracker(t, 1, 0)
	lease, err := domain.NewRetentionLease("peer-a", 10, 100, "ccr")
	require.NoError(t, err)
	_, err = tracker.Add(lease)
	require.NoError(t, err)

	olderThan := func(ts int64) func(domain.RetentionLease) bool {
		return func(l domain.RetentionLease) bool { return l.Timestamp() < ts }
	}

	next, removed, err := tracker.RemoveIf("peer-a", olderThan(50))
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Same(t, tracker.Current(), next)
	assert.Equal(t, int64(1), next.Version())

	next, removed, err = tracker.RemoveIf("peer-a", olderThan(200))
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, next.Contains("peer-a"))
	assert.Equal(t, int64(2), next.Version())

	_, removed, err = tracker.RemoveIf("peer-a", olderThan(200))
	assert.True(t, domain.IsNotFound(err))
	assert.False(t, removed)
}

func TestTracker_RemoveIfSeesRenewalFromLostRace(t *testing.T) {
	tracker := newTestTracker(t, 1, 0)
	lease, err := domain.NewRetentionLease("peer-a", 10, 100, "ccr")
	require.NoError(t, err)
	_, err = tracker.Add(lease)
	require.NoError(t, err)

	calls := 0
	_, removed, err := tracker.RemoveIf("peer-a", func(held domain.RetentionLease) bool {
		calls++
		if calls == 1 {
			// a renewal commits while this removal is in flight
			_, renewErr := tracker.Renew("peer-a", 20, 500)
			require.NoError(t, renewErr)
		}
		return held.Timestamp() < 200
	})
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, 2, calls)

	held, ok := tracker.Current().Get("peer-a")
	require.True(t, ok)
	assert.Equal(t, int64(500), held.Timestamp())
	assert.Equal(t, int64(2), tracker.Current().Version())
}

func TestTracker_AcquireGeneratesIDAndTimestamp(t *testing.T) {
	tracker := newTestTracker(t, 1, 0)

	lease, err := tracker.Acquire("ccr", 55)
	require.NoError(t, err)
	assert.NotEmpty(t, lease.ID())
	assert.Equal(t, int64(1_700_000_000_000), lease.Timestamp())
	assert.True(t, tracker.Current().Contains(lease.ID()))

	_, err = tracker.Acquire("", 55)
	assert.True(t, domain.IsValidation(err))
}

func TestTracker_RenewNowUsesClock(t *testing.T) {
	tracker := newTestTracker(t, 1, 0)
	lease, err := tracker.Acquire("ccr", 1)
	require.NoError(t, err)

	_, err = tracker.RenewNow(lease.ID(), 9)
	require.NoError(t, err)

	renewed, ok := tracker.Current().Get(lease.ID())
	require.True(t, ok)
	assert.Equal(t, int64(9), renewed.RetainingSequenceNumber())
	assert.Equal(t, int64(1_700_000_000_000), renewed.Timestamp())
}

func TestTracker_ConcurrentWritersProduceGapFreeVersions(t *testing.T) {
	tracker := newTestTracker(t, 1, 0)

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tracker.Acquire("writer", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(writers), tracker.Current().Version())
	assert.Equal(t, writers, tracker.Current().Len())
}

func TestTracker_Adopt(t *testing.T) {
	tracker := newTestTracker(t, 2, 5)

	newer, err := domain.NewRetentionLeases(3, 0, nil)
	require.NoError(t, err)
	require.NoError(t, tracker.Adopt(newer))
	assert.Same(t, newer, tracker.Current())

	older, err := domain.NewRetentionLeases(2, 100, nil)
	require.NoError(t, err)
	err = tracker.Adopt(older)
	require.Error(t, err)
	assert.True(t, domain.IsStale(err))
	assert.Same(t, newer, tracker.Current())

	same, err := domain.NewRetentionLeases(3, 0, nil)
	require.NoError(t, err)
	assert.NoError(t, tracker.Adopt(same))
}

func TestTracker_OnPrimaryTermChange(t *testing.T) {
	tracker := newTestTracker(t, 1, 0)
	_, err := tracker.Acquire("ccr", 1)
	require.NoError(t, err)

	promoted, err := tracker.OnPrimaryTermChange(4)
	require.NoError(t, err)
	assert.Equal(t, int64(4), promoted.PrimaryTerm())
	assert.Equal(t, int64(1), promoted.Version())
	assert.Equal(t, 1, promoted.Len())

	unchanged, err := tracker.OnPrimaryTermChange(4)
	require.NoError(t, err)
	assert.Same(t, promoted, unchanged)

	_, err = tracker.OnPrimaryTermChange(2)
	assert.True(t, domain.IsIllegalState(err))
}

func TestTracker_SubscribeReceivesLatest(t *testing.T) {
	tracker := newTestTracker(t, 1, 0)
	updates, cancel := tracker.Subscribe()
	defer cancel()

	_, err := tracker.Acquire("a", 1)
	require.NoError(t, err)
	_, err = tracker.Acquire("b", 2)
	require.NoError(t, err)

	select {
	case latest := <-updates:
		assert.Equal(t, int64(2), latest.Version())
	case <-time.After(time.Second):
		t.Fatal("expected an update")
	}

	cancel()
	_, ok := <-updates
	assert.False(t, ok)
}
