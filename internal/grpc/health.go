package grpc

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"chat-sync/internal/observability"
)

// ServiceName is the health service name reported alongside the server-wide status.
const ServiceName = "chat-sync"

type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthServer exposes grpc.health.v1 backed by database reachability.
type HealthServer struct {
	server *gogrpc.Server
	health *health.Server
	db     Pinger
	logger zerolog.Logger
}

func NewHealthServer(db Pinger, logger zerolog.Logger) *HealthServer {
	server := gogrpc.NewServer(
		gogrpc.StatsHandler(otelgrpc.NewServerHandler()),
		gogrpc.ChainUnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	h := health.NewServer()
	healthpb.RegisterHealthServer(server, h)
	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	h.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return &HealthServer{server: server, health: h, db: db, logger: logger}
}

// Check pings the database once and publishes the result.
func (s *HealthServer) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("database ping failed")
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

// Watch re-checks every interval until ctx ends.
func (s *HealthServer) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

func (s *HealthServer) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains in-flight calls.
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
