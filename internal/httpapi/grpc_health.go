package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"crisiscrew.org/internal/obs"
)

// HealthServer publishes readiness through the standard grpc.health.v1
// service, both for the empty service name and for the gateway's own name.
type HealthServer struct {
	srv       *health.Server
	readiness readinessChecker
}

// NewHealthServer starts in NOT_SERVING until the first probe passes.
func NewHealthServer(r readinessChecker) *HealthServer {
	if r == nil {
		r = ReadyProbe{}
	}
	hs := &HealthServer{srv: health.NewServer(), readiness: r}
	hs.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return hs
}

// Register attaches the health service to s.
func (hs *HealthServer) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, hs.srv)
}

// Probe runs one readiness check and updates the published status.
func (hs *HealthServer) Probe(ctx context.Context) error {
	err := hs.readiness.Check(ctx)
	if err != nil {
		obs.SetReady(false)
		hs.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return err
	}
	obs.SetReady(true)
	hs.set(healthpb.HealthCheckResponse_SERVING)
	return nil
}

// Run probes every interval until ctx is done.
func (hs *HealthServer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	probe := func() {
		pctx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		if err := hs.Probe(pctx); err != nil && ctx.Err() == nil {
			obs.Warn("grpc readiness probe failed", map[string]any{"error": err})
		}
	}
	probe()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probe()
		}
	}
}

// Shutdown marks every service NOT_SERVING so watchers drain first.
func (hs *HealthServer) Shutdown() {
	hs.srv.Shutdown()
}

func (hs *HealthServer) set(st healthpb.HealthCheckResponse_ServingStatus) {
	hs.srv.SetServingStatus("", st)
	hs.srv.SetServingStatus(serviceName, st)
}
