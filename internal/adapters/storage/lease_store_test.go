package storage

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"

	"github.com/dgraph-io/badger/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/retention/internal/domain"
	"github.com/eleven-am/retention/internal/ports"
)

var _ ports.LeaseSetStore = (*LeaseStore)(nil)

func setupTestStore(t *testing.T) (*LeaseStore, *badger.DB) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := OpenDB(domain.StorageConfig{InMemory: true}, "", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewLeaseStore(db, "retention:", logger), db
}

func testLeases(t *testing.T, primaryTerm, version int64, ids ...string) *domain.RetentionLeases {
	t.Helper()
	leases := make([]domain.RetentionLease, 0, len(ids))
	for i, id := range ids {
		lease, err := domain.NewRetentionLease(id, int64(100+i), int64(1000+i), "peer recovery")
		require.NoError(t, err)
		leases = append(leases, lease)
	}
	set, err := domain.NewRetentionLeases(primaryTerm, version, leases)
	require.NoError(t, err)
	return set
}

func TestLeaseStore_SaveAndLoad(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	original := testLeases(t, 7, 3, "a", "b", "c")
	require.NoError(t, store.Save(ctx, "orders-0", original))

	loaded, ok, err := store.Load(ctx, "orders-0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, original.Equal(loaded))
	assert.Equal(t, int64(7), loaded.PrimaryTerm())
}

func TestLeaseStore_LoadMissing(t *testing.T) {
	store, _ := setupTestStore(t)

	leases, ok, err := store.Load(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, leases)
}

func TestLeaseStore_RefusesSupersededWrites(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "s", testLeases(t, 2, 5, "a")))

	err := store.Save(ctx, "s", testLeases(t, 2, 4, "a"))
	require.Error(t, err)
	assert.True(t, domain.IsIllegalState(err))
	assert.True(t, domain.IsStale(err))

	err = store.Save(ctx, "s", testLeases(t, 1, 99, "a"))
	require.Error(t, err)

	require.NoError(t, store.Save(ctx, "s", testLeases(t, 2, 5, "a")))
	require.NoError(t, store.Save(ctx, "s", testLeases(t, 3, 0)))

	loaded, ok, err := store.Load(ctx, "s")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(3), loaded.PrimaryTerm())
	assert.Equal(t, 0, loaded.Len())
}

func TestLeaseStore_ListAndDelete(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "b", testLeases(t, 1, 0)))
	require.NoError(t, store.Save(ctx, "a", testLeases(t, 1, 0, "x")))

	shards, err := store.List(ctx)
	require.NoError(t, err)
	sort.Strings(shards)
	assert.Equal(t, []string{"a", "b"}, shards)

	require.NoError(t, store.Delete(ctx, "a"))
	_, ok, err := store.Load(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLeaseStore_CorruptPayload(t *testing.T) {
	store, db := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "s", testLeases(t, 1, 0, "a")))

	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("retention:leases/s"), []byte{0xff, 0xff})
	}))

	_, _, err := store.Load(ctx, "s")
	require.Error(t, err)
	assert.True(t, domain.IsDecoding(err))
}

func TestLeaseStore_HonoursCancelledContext(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.Save(ctx, "s", testLeases(t, 1, 0)), context.Canceled)
	_, _, err := store.Load(ctx, "s")
	assert.ErrorIs(t, err, context.Canceled)
}
