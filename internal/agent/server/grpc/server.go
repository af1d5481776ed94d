package grpc

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/autopeer-io/seatlink/internal/seat"
	"github.com/autopeer-io/seatlink/pkg/log"
	"github.com/autopeer-io/seatlink/pkg/options"
)

// ServiceName is the health service reporting on the agent as a whole.
const ServiceName = "seatlink.Agent"

// SeatService names the health service of one seat.
func SeatService(id seat.ID) string {
	return fmt.Sprintf("seatlink.Seat/%d", id)
}

// Server exposes the standard gRPC health service: the agent is SERVING
// once a session is applied, and every seat has its own entry.
type Server struct {
	server  *grpc.Server
	health  *health.Server
	options *options.GrpcOptions
	lis     net.Listener
}

func NewServer(opts *options.GrpcOptions) *Server {
	s := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s) // Enable grpc_cli support

	return &Server{server: s, health: hs, options: opts}
}

// SetReady flips the agent-wide status.
func (s *Server) SetReady(ready bool) {
	s.health.SetServingStatus(ServiceName, status(ready))
}

// SetSeat records whether a seat's endpoint is open.
func (s *Server) SetSeat(id seat.ID, up bool) {
	s.health.SetServingStatus(SeatService(id), status(up))
}

func status(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// Listen binds the address ahead of Start. Start listens itself when this
// was not called.
func (s *Server) Listen() (net.Addr, error) {
	lis, err := net.Listen(s.options.Network, s.options.Addr)
	if err != nil {
		return nil, err
	}
	s.lis = lis
	return lis.Addr(), nil
}

func (s *Server) Start(ctx context.Context) error {
	if s.lis == nil {
		if _, err := s.Listen(); err != nil {
			return err
		}
	}

	log.Info("Starting gRPC Server", "addr", s.lis.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(s.lis); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.health.Shutdown()
		s.server.GracefulStop()
		return nil
	}
}
