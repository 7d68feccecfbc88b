package transport

import (
	"context"
	"log/slog"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/eleven-am/retention/internal/domain"
)

// Publisher sends lease sets to one replica's LeaseSync service.
type Publisher struct {
	conn   *grpc.ClientConn
	cfg    domain.TransportConfig
	logger *slog.Logger
}

func clientDialOptions(cfg domain.TransportConfig) []grpc.DialOption {
	callOpts := []grpc.CallOption{grpc.ForceCodec(leaseSyncCodec{})}
	if cfg.MaxMessageSizeMB > 0 {
		bytes := cfg.MaxMessageSizeMB * 1024 * 1024
		callOpts = append(callOpts, grpc.MaxCallRecvMsgSize(bytes), grpc.MaxCallSendMsgSize(bytes))
	}
	return []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(callOpts...),
	}
}

// Dial creates a publisher for the replica at target.
func Dial(target string, cfg domain.TransportConfig, logger *slog.Logger, opts ...grpc.DialOption) (*Publisher, error) {
	if target == "" {
		return nil, newTransportConfigError("replica address is required", nil)
	}
	conn, err := grpc.NewClient(target, append(clientDialOptions(cfg), opts...)...)
	if err != nil {
		return nil, newTransportConfigError("failed to create replica client", err, domain.WithContextDetail("target", target))
	}
	return NewPublisher(conn, cfg, logger), nil
}

func NewPublisher(conn *grpc.ClientConn, cfg domain.TransportConfig, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		cfg:    cfg,
		logger: logger.With("component", "transport", "adapter", "publisher", "target", conn.Target()),
	}
}

// Publish ships leases to the replica. A replica already holding a
// superseding set answers with a stale rejection, surfaced as ErrStaleLeases.
func (p *Publisher) Publish(ctx context.Context, leases *domain.RetentionLeases) error {
	if _, ok := ctx.Deadline(); !ok && p.cfg.ConnectionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.ConnectionTimeout)
		defer cancel()
	}
	ctx = metadata.AppendToOutgoingContext(ctx, PrimaryTermHeader, strconv.FormatInt(leases.PrimaryTerm(), 10))

	req := &publishRequest{payload: domain.EncodeRetentionLeases(leases)}
	resp := new(publishResponse)
	if err := p.conn.Invoke(ctx, publishMethod, req, resp, grpc.ForceCodec(leaseSyncCodec{})); err != nil {
		return newTransportReplicationError("failed to publish retention leases", err,
			domain.WithOperation("publish"),
			domain.WithContextDetail("target", p.conn.Target()))
	}

	if !resp.accepted {
		p.logger.Debug("replica rejected stale retention leases",
			"primary_term", leases.PrimaryTerm(),
			"version", leases.Version(),
			"replica_primary_term", resp.primaryTerm,
			"replica_version", resp.version)
		return newTransportReplicationError("replica holds superseding retention leases", domain.ErrStaleLeases,
			domain.WithCode(domain.CodeStaleLeases),
			domain.WithContextDetail("replica_primary_term", resp.primaryTerm),
			domain.WithContextDetail("replica_version", resp.version))
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.conn.Close()
}
