// Package healthsvc exposes device liveness over the standard gRPC health
// protocol. The empty service name reports the monitor itself; every device
// key seen by a pass is registered as its own service.
package healthsvc

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/recap/devmon/internal/types"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server serves grpc.health.v1.Health backed by the latest pass results
type Server struct {
	health *health.Server
	grpc   *grpc.Server
	logger zerolog.Logger
}

// New creates a health server with the overall service marked SERVING
func New(logger zerolog.Logger) *Server {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	return &Server{
		health: hs,
		grpc:   gs,
		logger: logger.With().Str("component", "healthsvc").Logger(),
	}
}

// Update records every device in the summary as SERVING when online and NOT_SERVING when offline
func (s *Server) Update(summary types.Summary) {
	for _, d := range summary.Devices {
		status := healthpb.HealthCheckResponse_SERVING
		if d.IsOffline {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		s.health.SetServingStatus(d.DeviceKey, status)
	}
}

// Check answers a health query directly, without a network round trip
func (s *Server) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// ListenAndServe listens on addr and serves until ctx is done
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is done, then drains in-flight calls
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.logger.Info().Str("address", lis.Addr().String()).Msg("Starting gRPC health server")

	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		s.grpc.GracefulStop()
	}()

	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}
