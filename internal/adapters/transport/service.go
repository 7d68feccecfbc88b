package transport

import (
	"context"

	"google.golang.org/grpc"
)

const (
	serviceName   = "retention.LeaseSync"
	publishMethod = "/retention.LeaseSync/Publish"

	// PrimaryTermHeader names the request metadata key holding the primary
	// term of a published lease set.
	PrimaryTermHeader = "x-primary-term"
)

type leaseSyncService interface {
	Publish(ctx context.Context, req *publishRequest) (*publishResponse, error)
}

var leaseSyncServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*leaseSyncService)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Publish",
			Handler:    publishHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "retention/lease_sync",
}

func publishHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(publishRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(leaseSyncService).Publish(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: publishMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(leaseSyncService).Publish(ctx, req.(*publishRequest))
	}
	return interceptor(ctx, in, info, handler)
}
