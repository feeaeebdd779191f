// Package grpcapi serves the gRPC health service that reports whether a
// monitoring session is running.
package grpcapi

import (
	"context"
	"fmt"
	"net"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"snore-monitor-service/internal/models"
	"snore-monitor-service/internal/observability"
	"snore-monitor-service/internal/observability/metrics"
)

// ServiceName is the health service name that tracks the monitor.
const ServiceName = "smartsleep.SnoreMonitor"

// Server wraps a gRPC server with health and reflection registered.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

// New creates the server. The process is SERVING; ServiceName starts as
// NOT_SERVING until a session starts.
func New() *Server {
	m := metrics.DefaultMetrics
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor(m)),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor(m)),
	)

	// Register gRPC health check service
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(server)

	return &Server{grpc: server, health: healthServer}
}

// SetMonitoring flips the ServiceName status.
func (s *Server) SetMonitoring(running bool) {
	st := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if running {
		st = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, st)
}

// Track follows session status events until ctx is done or events is closed.
func (s *Server) Track(ctx context.Context, events <-chan models.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if st, ok := e.(models.SessionStatus); ok {
				s.SetMonitoring(st.Status == models.StatusStarted)
			}
		}
	}
}

// Serve accepts connections on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	log.Info().Str("addr", lis.Addr().String()).Msg("gRPC server started")
	if err := s.grpc.Serve(lis); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Stop marks everything NOT_SERVING and drains connections. If ctx expires
// first, connections are closed forcibly.
func (s *Server) Stop(ctx context.Context) {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Msg("gRPC graceful stop timed out, forcing")
		s.grpc.Stop()
	}
}
