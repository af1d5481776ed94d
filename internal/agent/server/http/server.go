package http

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autopeer-io/seatlink/internal/controller"
	"github.com/autopeer-io/seatlink/internal/pkg/metrics"
	"github.com/autopeer-io/seatlink/internal/seat"
	"github.com/autopeer-io/seatlink/internal/telemetry"
	"github.com/autopeer-io/seatlink/pkg/log"
	"github.com/autopeer-io/seatlink/pkg/options"
)

// Backend is what the status server reports on.
type Backend interface {
	Ready() bool
	Seats() []controller.SeatStatus
	Battery(id seat.ID) (telemetry.BatteryReading, bool)
	// BatteryStale reports a reading that missed several poll cycles.
	BatteryStale(id seat.ID) bool
}

// SeatView is one entry of /seats.
type SeatView struct {
	controller.SeatStatus
	Battery      *telemetry.BatteryReading `json:"battery,omitempty"`
	BatteryStale bool                      `json:"batteryStale,omitempty"`
}

type Server struct {
	server  *http.Server
	options *options.HttpOptions
	backend Backend
}

func NewServer(opts *options.HttpOptions, backend Backend) *Server {
	s := &Server{options: opts, backend: backend}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.readyz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/seats", s.listSeats).Methods(http.MethodGet)
	r.HandleFunc("/seats/{seat:[0-9]+}", s.getSeat).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      r,
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen(s.options.Network, s.options.Addr)
	if err != nil {
		return err
	}
	log.Info("Starting HTTP Server", "addr", lis.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if !s.backend.Ready() {
		http.Error(w, "no session", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) listSeats(w http.ResponseWriter, _ *http.Request) {
	seats := s.backend.Seats()
	out := make([]SeatView, 0, len(seats))
	for _, st := range seats {
		out = append(out, s.view(st))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getSeat(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(mux.Vars(r)["seat"])
	if err != nil {
		http.Error(w, "bad seat", http.StatusBadRequest)
		return
	}
	for _, st := range s.backend.Seats() {
		if st.Seat == seat.ID(n) {
			writeJSON(w, http.StatusOK, s.view(st))
			return
		}
	}
	http.Error(w, "seat not configured", http.StatusNotFound)
}

func (s *Server) view(st controller.SeatStatus) SeatView {
	v := SeatView{SeatStatus: st}
	if br, ok := s.backend.Battery(st.Seat); ok {
		v.Battery = &br
		v.BatteryStale = s.backend.BatteryStale(st.Seat)
	}
	return v
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error(err, "Failed to write response")
	}
}
