// Package admin serves the relay's gRPC health endpoint.
package admin

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cory-johannsen/chatrelay/internal/config"
)

// RelayService is the health service name reported for the relay loop.
const RelayService = "chatrelay.Relay"

// HealthServer exposes grpc.health.v1.Health for the relay.
type HealthServer struct {
	cfg    config.AdminConfig
	logger *zap.Logger
	health *health.Server
	grpc   *grpc.Server

	mu       sync.Mutex
	listener net.Listener
}

// NewHealthServer creates a health server reporting NOT_SERVING until
// SetServing is called.
//
// Precondition: logger must be non-nil.
// Postcondition: Returns a HealthServer ready to be started with ListenAndServe or Serve.
func NewHealthServer(cfg config.AdminConfig, logger *zap.Logger) *HealthServer {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(RelayService, healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &HealthServer{
		cfg:    cfg,
		logger: logger,
		health: hs,
		grpc:   srv,
	}
}

// SetServing flips the overall and relay service status.
func (h *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(RelayService, status)
	h.logger.Info("relay health changed", zap.Stringer("status", status))
}

// ListenAndServe binds the configured TCP address and serves until Stop.
func (h *HealthServer) ListenAndServe() error {
	lis, err := net.Listen("tcp", h.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", h.cfg.Addr(), err)
	}
	return h.Serve(lis)
}

// Serve accepts gRPC connections on lis until Stop.
//
// Postcondition: Returns nil after Stop, or the gRPC serve error.
func (h *HealthServer) Serve(lis net.Listener) error {
	start := time.Now()
	h.mu.Lock()
	h.listener = lis
	h.mu.Unlock()

	h.logger.Info("health endpoint listening",
		zap.String("addr", lis.Addr().String()),
		zap.Duration("startup", time.Since(start)),
	)
	if err := h.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serving health: %w", err)
	}
	return nil
}

// Stop marks the relay NOT_SERVING and shuts the server down gracefully.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.grpc.GracefulStop()
	h.logger.Info("health endpoint stopped")
}

// Addr returns the listening address, or empty string if not yet serving.
func (h *HealthServer) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener != nil {
		return h.listener.Addr().String()
	}
	return ""
}
