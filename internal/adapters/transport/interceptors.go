package transport

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func unaryLoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		duration := time.Since(start)

		if err != nil {
			code := codes.Unknown
			if st, ok := status.FromError(err); ok {
				code = st.Code()
			}
			logger.Warn("request failed",
				"method", info.FullMethod,
				"duration_ms", duration.Milliseconds(),
				"code", code.String(),
				"error", err)
			return resp, err
		}

		logger.Debug("request completed",
			"method", info.FullMethod,
			"duration_ms", duration.Milliseconds())
		return resp, nil
	}
}
