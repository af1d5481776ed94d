package grpc

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	grpcmw "github.com/autopeer-io/seatlink/internal/pkg/middleware/grpc"
	"github.com/autopeer-io/seatlink/pkg/options"
)

func TestHealth(t *testing.T) {
	opts := options.NewGrpcOptions()
	opts.Addr = "127.0.0.1:0"
	s := NewServer(opts)
	addr, err := s.Listen()
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Start = %v", err)
		}
	}()

	conn, err := grpc.NewClient(addr.String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(grpcmw.UnaryTimeoutInterceptor(2*time.Second)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("Check(%q): %v", service, err)
		}
		return resp.GetStatus()
	}

	if got := check(ServiceName); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("agent before session = %s", got)
	}

	s.SetReady(true)
	s.SetSeat(1, true)
	s.SetSeat(2, false)

	if got := check(ServiceName); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("agent = %s, want SERVING", got)
	}
	if got := check(SeatService(1)); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("seat 1 = %s, want SERVING", got)
	}
	if got := check(SeatService(2)); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("seat 2 = %s, want NOT_SERVING", got)
	}
}
