package transportgrpc

import (
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcinterceptors "github.com/arklim/social-platform-auth/internal/transport/grpc/interceptors"
)

const healthCheckMethod = "/grpc.health.v1.Health/Check"

// ServerDependencies encapsulates services required by the gRPC server layer.
type ServerDependencies struct {
	Auth          TokenAuthority
	Logger        *zap.Logger
	Metrics       *grpcinterceptors.GRPCMetrics
	Tracing       *grpcinterceptors.Tracing
	PublicMethods []string // methods that don't require authentication
}

// Server bundles the gRPC server with its health service so callers can flip
// serving status during shutdown.
type Server struct {
	*grpc.Server
	Health *health.Server
}

// NewServer wires gRPC services with authentication enforced through interceptors.
func NewServer(deps ServerDependencies) (*Server, error) {
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth service is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	public := append([]string{IntrospectMethod, healthCheckMethod}, deps.PublicMethods...)
	authInterceptor := grpcinterceptors.NewAuthInterceptor(deps.Auth, grpcinterceptors.AuthOptions{
		Logger:       logger,
		AllowMethods: public,
	})
	unaryInterceptors := []grpc.UnaryServerInterceptor{
		deps.Metrics.UnaryServerInterceptor(),
		authInterceptor.UnaryServerInterceptor(),
	}

	server := grpc.NewServer(
		deps.Tracing.ServerOption(),
		grpc.ChainUnaryInterceptor(unaryInterceptors...),
	)

	RegisterTokenServiceServer(server, NewTokenServer(deps.Auth, logger))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus(TokenServiceName, healthpb.HealthCheckResponse_SERVING)

	// Register reflection service for tools like Postman, grpcurl, etc.
	reflection.Register(server)

	return &Server{Server: server, Health: healthServer}, nil
}
