package server

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/synapse-core/ipgate"
	"github.com/synapse-core/ipgate/grpcgate"
)

// NewGRPCServer returns a gRPC server serving the health service and
// reflection, with every call passed through filter.
func NewGRPCServer(filter *ipgate.Filter) (*grpc.Server, *health.Server) {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcgate.UnaryServerInterceptor(filter)),
		grpc.ChainStreamInterceptor(grpcgate.StreamServerInterceptor(filter)),
	)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)

	return s, hs
}
