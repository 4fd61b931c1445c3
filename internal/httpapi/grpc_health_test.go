package httpapi

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

func startBufGRPC(t *testing.T, hs *HealthServer) *grpc.ClientConn {
	t.Helper()

	listener := bufconn.Listen(bufSize)
	server := grpc.NewServer()
	hs.Register(server)

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Logf("grpc serve error: %v", err)
		}
	}()

	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		return listener.Dial()
	}
	conn, err := grpc.DialContext(
		context.Background(),
		"bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufnet: %v", err)
	}

	t.Cleanup(func() {
		server.GracefulStop()
		_ = conn.Close()
		_ = listener.Close()
	})
	return conn
}

type toggleReadiness struct{ fail atomic.Bool }

func (r *toggleReadiness) Check(context.Context) error {
	if r.fail.Load() {
		return errors.New("postgres unreachable")
	}
	return nil
}

func checkStatus(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q): %v", service, err)
	}
	return resp.GetStatus()
}

func TestHealthServerReflectsReadiness(t *testing.T) {
	probe := &toggleReadiness{}
	hs := NewHealthServer(probe)
	client := healthpb.NewHealthClient(startBufGRPC(t, hs))

	if got := checkStatus(t, client, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING before first probe, got %s", got)
	}

	if err := hs.Probe(context.Background()); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	for _, svc := range []string{"", serviceName} {
		if got := checkStatus(t, client, svc); got != healthpb.HealthCheckResponse_SERVING {
			t.Fatalf("service %q: expected SERVING, got %s", svc, got)
		}
	}

	probe.fail.Store(true)
	if err := hs.Probe(context.Background()); err == nil {
		t.Fatal("expected probe error")
	}
	if got := checkStatus(t, client, serviceName); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING after failure, got %s", got)
	}
}

func TestHealthServerRunStopsWithContext(t *testing.T) {
	hs := NewHealthServer(&toggleReadiness{})
	client := healthpb.NewHealthClient(startBufGRPC(t, hs))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hs.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for checkStatus(t, client, "") != healthpb.HealthCheckResponse_SERVING {
		if time.Now().After(deadline) {
			t.Fatal("health never became SERVING")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
