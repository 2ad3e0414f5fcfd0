package handler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/rl1809/labstock/internal/core/domain"
	"github.com/rl1809/labstock/internal/core/service"
)

// SyncServiceName is the health check service that tracks whether the
// remote endpoint is usable.
const SyncServiceName = "labstock.sync"

type GRPCHandler struct {
	health    *health.Server
	inventory *service.InventoryService
	logger    *zap.Logger
	last      healthpb.HealthCheckResponse_ServingStatus
}

func NewGRPCHandler(inventory *service.InventoryService, logger *zap.Logger) *GRPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &GRPCHandler{
		health:    health.NewServer(),
		inventory: inventory,
		logger:    logger,
	}
	h.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.Refresh()
	return h
}

// Register installs the health and reflection services on srv.
func (h *GRPCHandler) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, h.health)
	reflection.Register(srv)
}

// Refresh reports the sync service as SERVING only while the configured
// endpoint is a deployed script.
func (h *GRPCHandler) Refresh() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	link := service.ClassifyLink(h.inventory.SyncConfig().EndpointURL)
	if link == domain.LinkValidExec {
		status = healthpb.HealthCheckResponse_SERVING
	}
	if status != h.last {
		h.logger.Info("sync health changed", zap.String("link", string(link)), zap.String("status", status.String()))
		h.last = status
	}
	h.health.SetServingStatus(SyncServiceName, status)
}

// Watch refreshes the sync status every interval until ctx is done.
func (h *GRPCHandler) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Refresh()
		}
	}
}

// Shutdown marks every service NOT_SERVING ahead of a graceful stop.
func (h *GRPCHandler) Shutdown() {
	h.health.Shutdown()
}

func (h *GRPCHandler) Check(ctx context.Context, name string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := h.health.Check(ctx, &healthpb.HealthCheckRequest{Service: name})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}
