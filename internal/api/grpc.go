package api

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the gRPC health service name reported for the chat API.
const ServiceName = "lawaid.Chat"

// NewGRPCServer creates a gRPC server exposing the standard health service
// and reflection. Both the overall and the ServiceName status start as
// SERVING.
func NewGRPCServer(opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(opts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return srv, hs
}

// SyncHealth periodically runs the HTTP health checks and mirrors the result
// into the gRPC health server. The returned channel is closed when the
// goroutine exits after ctx is canceled.
func SyncHealth(ctx context.Context, h *HealthHandler, hs *health.Server, interval time.Duration) <-chan struct{} {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		last := healthpb.HealthCheckResponse_SERVING
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, healthy := h.Run(ctx)
				status := healthpb.HealthCheckResponse_SERVING
				if !healthy {
					status = healthpb.HealthCheckResponse_NOT_SERVING
				}
				if status != last {
					slog.Info("gRPC health status changed", "service", ServiceName, "status", status.String())
					last = status
				}
				hs.SetServingStatus(ServiceName, status)
			}
		}
	}()
	return done
}
