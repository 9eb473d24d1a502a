// Package grpcgate runs an ipgate.Filter in front of gRPC handlers.
//
// The gRPC peer address plays the role of the connecting peer and the
// forwarding header is read from incoming metadata (keys are lower-cased, so
// "X-Forwarded-For" is looked up as "x-forwarded-for"). Repeated metadata
// values are treated like repeated header lines and rejected.
package grpcgate

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/synapse-core/ipgate"
)

// errPermissionDenied is returned for every rejected call regardless of cause.
var errPermissionDenied = status.Error(codes.PermissionDenied, "permission denied")

// UnaryServerInterceptor rejects unary calls whose resolved client address is
// not allowed. Authorized handlers find the address with
// ipgate.ClientAddrFromContext.
func UnaryServerInterceptor(filter *ipgate.Filter) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := authorize(ctx, filter, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor is the streaming counterpart of
// UnaryServerInterceptor.
func StreamServerInterceptor(filter *ipgate.Filter) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := authorize(ss.Context(), filter, info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authorizedStream{ServerStream: ss, ctx: ctx})
	}
}

// InputFromContext builds the framework-agnostic request input for a gRPC
// call. fullMethod is reported as the request path.
func InputFromContext(ctx context.Context, fullMethod string) ipgate.RequestInput {
	input := ipgate.RequestInput{
		Context: ctx,
		Path:    fullMethod,
	}

	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		input.RemoteAddr = p.Addr.String()
	}

	if md, ok := metadata.FromIncomingContext(ctx); ok {
		input.Headers = ipgate.HeaderValuesFunc(md.Get)
	}

	return input
}

func authorize(ctx context.Context, filter *ipgate.Filter, fullMethod string) (context.Context, error) {
	decision := filter.AuthorizeFrom(InputFromContext(ctx, fullMethod))
	if !decision.Authorized() {
		return ctx, errPermissionDenied
	}
	return ipgate.ContextWithClientAddr(ctx, decision.Addr), nil
}

type authorizedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authorizedStream) Context() context.Context {
	return s.ctx
}
