package agent

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/autopeer-io/seatlink/internal/agent/server"
	grpcserver "github.com/autopeer-io/seatlink/internal/agent/server/grpc"
	"github.com/autopeer-io/seatlink/internal/controller"
	"github.com/autopeer-io/seatlink/internal/seat"
	"github.com/autopeer-io/seatlink/internal/telemetry"
	"github.com/autopeer-io/seatlink/pkg/log"
)

// shutdownTimeout bounds resetting every input on exit.
const shutdownTimeout = 5 * time.Second

// Agent drives the robots of one session and reports on them.
type Agent struct {
	ctrl       *controller.Controller
	readings   *telemetry.Readings
	dispatcher *controller.Dispatcher
	session    *SessionSource
	servers    *server.Manager
	grpc       *grpcserver.Server
	mqttSink   *telemetry.MQTTSink
	port       int
	local      map[seat.ID]string
	// staleAfter is the age past which /seats flags a battery reading.
	staleAfter time.Duration
	log        log.Logger

	ready atomic.Bool
	// runCtx outlives individual reloads; inbound loops hang off it.
	runCtx context.Context
}

// Run applies the session file and serves until ctx is cancelled. Every
// input is returned to neutral before Run returns.
func (a *Agent) Run(ctx context.Context) error {
	a.log.Info("Starting seatlink-agent", "model", a.ctrl.Model().Name, "inputs", a.ctrl.Inputs())
	a.runCtx = ctx

	if err := a.session.Apply(ctx); err != nil {
		return err
	}

	defer func() {
		a.log.Info("Agent shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.ctrl.Shutdown(shutdownCtx)
	}()

	return a.servers.Start(ctx)
}

// applySession validates raw before the running session is torn down, so a
// broken edit of the session file leaves the robots connected.
func (a *Agent) applySession(ctx context.Context, raw map[string]any) error {
	if _, err := controller.ParseSession(raw, a.local, a.port, log.NewNopLogger()); err != nil {
		return err
	}

	loopCtx := ctx
	if a.runCtx != nil {
		loopCtx = a.runCtx
	}
	n, err := a.ctrl.HandleConfig(loopCtx, raw, a.dispatcher)
	if err != nil {
		a.ready.Store(false)
		a.grpc.SetReady(false)
		return err
	}

	for _, st := range a.ctrl.Seats() {
		up := st.State == seat.StateOpen
		a.grpc.SetSeat(st.Seat, up)
		a.publishOnline(st.Seat, up, st.Error)
	}
	a.ready.Store(true)
	a.grpc.SetReady(true)
	a.log.Info("Session applied", "connected", n, "set", a.ctrl.CurrentSet(), "active", a.ctrl.SeatsInCurrentSet())
	return nil
}

// seatClosed is attached to every endpoint of every session.
func (a *Agent) seatClosed(id seat.ID, cause error) {
	a.grpc.SetSeat(id, false)
	reason := "closed"
	if cause != nil {
		reason = cause.Error()
	}
	a.publishOnline(id, false, reason)
}

func (a *Agent) publishOnline(id seat.ID, online bool, reason string) {
	if a.mqttSink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), telemetry.DefaultPublishTimeout)
	defer cancel()
	if err := a.mqttSink.PublishOnline(ctx, id, online, reason); err != nil {
		a.log.Warn("Failed to publish seat status", "seat", int(id), "error", err)
	}
}

// logAck receives every inbound frame without a handler of its own.
func (a *Agent) logAck(_ context.Context, m controller.Message) {
	a.log.Debug("Robot ack", "seat", int(m.Seat), "command", m.Command.String(), "status", m.Ack)
}

func (a *Agent) Ready() bool { return a.ready.Load() }

func (a *Agent) Seats() []controller.SeatStatus { return a.ctrl.Seats() }

func (a *Agent) Battery(id seat.ID) (telemetry.BatteryReading, bool) {
	return a.readings.Get(id)
}

func (a *Agent) BatteryStale(id seat.ID) bool {
	return a.readings.Stale(id, a.staleAfter)
}

// Controller exposes the controller, mainly for tests.
func (a *Agent) Controller() *controller.Controller { return a.ctrl }
