package transport

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/eleven-am/retention/internal/core"
	"github.com/eleven-am/retention/internal/domain"
	"github.com/eleven-am/retention/internal/ports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustLeases(t *testing.T, primaryTerm, version int64, ids ...string) *domain.RetentionLeases {
	t.Helper()
	leases := make([]domain.RetentionLease, 0, len(ids))
	for i, id := range ids {
		lease, err := domain.NewRetentionLease(id, int64(i), int64(i), "ccr")
		require.NoError(t, err)
		leases = append(leases, lease)
	}
	set, err := domain.NewRetentionLeases(primaryTerm, version, leases)
	require.NoError(t, err)
	return set
}

type testReplica struct {
	tracker   *core.Tracker
	server    *LeaseSyncServer
	publisher *Publisher
	conn      *grpc.ClientConn
}

func startReplica(t *testing.T, initial *domain.RetentionLeases) *testReplica {
	t.Helper()
	cfg := domain.DefaultTransportConfig()
	tracker := core.NewTracker(initial, discardLogger())

	listener := bufconn.Listen(1024 * 1024)
	server := NewLeaseSyncServer(tracker, cfg, discardLogger())
	require.NoError(t, server.Serve(listener))

	conn, err := grpc.NewClient("passthrough:///bufconn",
		append(clientDialOptions(cfg), grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}))...)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		_ = server.Stop()
		_ = listener.Close()
	})

	return &testReplica{
		tracker:   tracker,
		server:    server,
		publisher: NewPublisher(conn, cfg, discardLogger()),
		conn:      conn,
	}
}

func TestPublish_AdoptsSupersedingLeases(t *testing.T) {
	replica := startReplica(t, mustLeases(t, 1, 0))
	incoming := mustLeases(t, 2, 3, "a", "b")

	require.NoError(t, replica.publisher.Publish(context.Background(), incoming))

	current := replica.tracker.Current()
	assert.True(t, incoming.Equal(current))
	assert.Equal(t, int64(2), current.PrimaryTerm())
	assert.Equal(t, int64(3), current.Version())
}

func TestPublish_RejectsStaleLeases(t *testing.T) {
	replica := startReplica(t, mustLeases(t, 3, 5, "x"))

	err := replica.publisher.Publish(context.Background(), mustLeases(t, 2, 9, "a"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStaleLeases)
	assert.True(t, domain.IsStale(err))

	err = replica.publisher.Publish(context.Background(), mustLeases(t, 3, 4, "a"))
	assert.ErrorIs(t, err, domain.ErrStaleLeases)

	assert.Equal(t, int64(5), replica.tracker.Current().Version())
	assert.True(t, replica.tracker.Current().Contains("x"))
}

func TestPublish_SameLeasesIsAccepted(t *testing.T) {
	initial := mustLeases(t, 2, 2, "a")
	replica := startReplica(t, initial)

	require.NoError(t, replica.publisher.Publish(context.Background(), mustLeases(t, 2, 2, "a")))
	assert.Same(t, initial, replica.tracker.Current())
}

func TestPublish_RequiresPrimaryTermHeader(t *testing.T) {
	replica := startReplica(t, mustLeases(t, 1, 0))

	payload := domain.EncodeRetentionLeases(mustLeases(t, 1, 1, "a"))
	err := replica.conn.Invoke(context.Background(), publishMethod, &publishRequest{payload: payload}, new(publishResponse))
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	ctx := metadata.AppendToOutgoingContext(context.Background(), PrimaryTermHeader, "not-a-number")
	err = replica.conn.Invoke(ctx, publishMethod, &publishRequest{payload: payload}, new(publishResponse))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	ctx = metadata.AppendToOutgoingContext(context.Background(), PrimaryTermHeader, "0")
	err = replica.conn.Invoke(ctx, publishMethod, &publishRequest{payload: payload}, new(publishResponse))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestPublish_RejectsCorruptPayload(t *testing.T) {
	replica := startReplica(t, mustLeases(t, 1, 0))

	ctx := metadata.AppendToOutgoingContext(context.Background(), PrimaryTermHeader, "4")
	err := replica.conn.Invoke(ctx, publishMethod, &publishRequest{payload: []byte{0xff, 0xff}}, new(publishResponse))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, int64(1), replica.tracker.Current().PrimaryTerm())
}

func TestReplicator_FollowsSourceChanges(t *testing.T) {
	replica := startReplica(t, mustLeases(t, 1, 0))
	source := core.NewTracker(mustLeases(t, 1, 0), discardLogger())

	replicator := NewReplicator(source, []ports.LeasePublisher{replica.publisher}, domain.DefaultTransportConfig(), discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	replicator.Start(ctx)

	_, err := source.Acquire("peer recovery", 12)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return replica.tracker.Current().Equal(source.Current())
	}, 5*time.Second, 10*time.Millisecond)
}

func TestReplicator_BroadcastIgnoresStaleReplicas(t *testing.T) {
	ahead := startReplica(t, mustLeases(t, 9, 0))
	behind := startReplica(t, mustLeases(t, 1, 0))

	replicator := NewReplicator(core.NewTracker(mustLeases(t, 1, 0), discardLogger()),
		[]ports.LeasePublisher{ahead.publisher, behind.publisher}, domain.DefaultTransportConfig(), discardLogger())

	leases := mustLeases(t, 2, 1, "a")
	require.NoError(t, replicator.Broadcast(context.Background(), leases))
	assert.Equal(t, int64(9), ahead.tracker.Current().PrimaryTerm())
	assert.True(t, behind.tracker.Current().Equal(leases))
}

func TestLeaseSyncCodec_ResponseRoundTrip(t *testing.T) {
	codec := leaseSyncCodec{}
	for _, want := range []publishResponse{
		{accepted: true, primaryTerm: 7, version: 3},
		{accepted: false, primaryTerm: 1, version: 0},
	} {
		data, err := codec.Marshal(&want)
		require.NoError(t, err)

		var got publishResponse
		require.NoError(t, codec.Unmarshal(data, &got))
		assert.Equal(t, want, got)
	}

	_, err := codec.Marshal("nope")
	assert.Error(t, err)
}
