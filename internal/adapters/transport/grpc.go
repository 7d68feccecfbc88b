package transport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/eleven-am/retention/internal/domain"
	"github.com/eleven-am/retention/internal/ports"
)

// LeaseSyncServer accepts lease sets published by a primary and hands them to
// the local holder, which keeps only sets that supersede what it has.
type LeaseSyncServer struct {
	logger *slog.Logger
	holder ports.LeaseHolder
	cfg    domain.TransportConfig

	mu       sync.Mutex
	server   *grpc.Server
	listener net.Listener
}

func NewLeaseSyncServer(holder ports.LeaseHolder, cfg domain.TransportConfig, logger *slog.Logger) *LeaseSyncServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LeaseSyncServer{
		logger: logger.With("component", "transport", "adapter", "grpc"),
		holder: holder,
		cfg:    cfg,
	}
}

func (s *LeaseSyncServer) serverOptions() []grpc.ServerOption {
	opts := []grpc.ServerOption{
		grpc.ForceServerCodec(leaseSyncCodec{}),
		grpc.ChainUnaryInterceptor(unaryLoggingInterceptor(s.logger)),
	}
	if s.cfg.MaxMessageSizeMB > 0 {
		bytes := s.cfg.MaxMessageSizeMB * 1024 * 1024
		opts = append(opts, grpc.MaxRecvMsgSize(bytes), grpc.MaxSendMsgSize(bytes))
	}
	if s.cfg.ConnectionTimeout > 0 {
		opts = append(opts, grpc.ConnectionTimeout(s.cfg.ConnectionTimeout))
	}
	return opts
}

// Start listens on the configured address and serves in the background.
func (s *LeaseSyncServer) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.cfg.ListenAddr == "" {
		return newTransportConfigError("listen address is required", nil)
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.cfg.ListenAddr)
	if err != nil {
		return newTransportConfigError("failed to listen", err, domain.WithContextDetail("listen_addr", s.cfg.ListenAddr))
	}
	return s.Serve(listener)
}

// Serve runs the server on an existing listener, such as an in-process one.
func (s *LeaseSyncServer) Serve(listener net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return newTransportConfigError("lease sync server already started", nil)
	}

	s.server = grpc.NewServer(s.serverOptions()...)
	s.server.RegisterService(&leaseSyncServiceDesc, s)
	s.listener = listener

	s.logger.Info("starting lease sync server", "address", listener.Addr().String())

	server := s.server
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.logger.Error("lease sync server error", "error", err)
		}
	}()
	return nil
}

func (s *LeaseSyncServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *LeaseSyncServer) Stop() error {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()

	if server != nil {
		s.logger.Info("stopping lease sync server")
		server.GracefulStop()
	}
	return nil
}

func (s *LeaseSyncServer) Publish(ctx context.Context, req *publishRequest) (*publishResponse, error) {
	primaryTerm, err := primaryTermFromContext(ctx)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	incoming, err := domain.DecodeRetentionLeases(req.payload, primaryTerm)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	err = s.holder.Adopt(incoming)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrStaleLeases):
		current := s.holder.Current()
		return &publishResponse{
			accepted:    false,
			primaryTerm: current.PrimaryTerm(),
			version:     current.Version(),
		}, nil
	default:
		return nil, status.Error(codes.Internal, err.Error())
	}

	current := s.holder.Current()
	return &publishResponse{
		accepted:    true,
		primaryTerm: current.PrimaryTerm(),
		version:     current.Version(),
	}, nil
}

func primaryTermFromContext(ctx context.Context) (int64, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return 0, domain.NewDecodingError("request metadata missing", nil)
	}
	values := md.Get(PrimaryTermHeader)
	if len(values) == 0 {
		return 0, domain.NewDecodingError(PrimaryTermHeader+" header missing", nil)
	}
	primaryTerm, err := strconv.ParseInt(values[0], 10, 64)
	if err != nil {
		return 0, domain.NewDecodingError("malformed "+PrimaryTermHeader+" header", err)
	}
	return primaryTerm, nil
}
