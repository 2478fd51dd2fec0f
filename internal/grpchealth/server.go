// Package grpchealth exposes the standard grpc.health.v1 service so
// orchestrators can probe the relay without speaking HTTP.
package grpchealth

import (
	"context"
	"errors"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/example/image-relay/internal/logging"
)

// ServiceName is the health service entry describing relay readiness.
const ServiceName = "image-relay"

// NewServer registers a health service. The process entry ("") is always
// SERVING; ServiceName is SERVING only when the relay can authenticate
// upstream.
func NewServer(apiKeyConfigured bool) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	status := healthpb.HealthCheckResponse_NOT_SERVING
	if apiKeyConfigured {
		status = healthpb.HealthCheckResponse_SERVING
	}
	hs.SetServingStatus(ServiceName, status)

	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// Serve runs srv on listener until ctx is cancelled.
func Serve(ctx context.Context, srv *grpc.Server, hs *health.Server, listener net.Listener, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		err := srv.Serve(listener)
		if errors.Is(err, grpc.ErrServerStopped) {
			err = nil
		}
		errCh <- err
	}()

	logger.Info("gRPC health listening", zap.String("addr", listener.Addr().String()))

	select {
	case err := <-errCh:
		if err != nil {
			return logging.NewOperationError("grpchealth.serve", "", err)
		}
		return nil
	case <-ctx.Done():
		hs.Shutdown()
		srv.GracefulStop()
		return <-errCh
	}
}
