package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/autopeer-io/seatlink/internal/controller"
	"github.com/autopeer-io/seatlink/internal/protocol"
	"github.com/autopeer-io/seatlink/internal/seat"
	"github.com/autopeer-io/seatlink/internal/simbot"
	"github.com/autopeer-io/seatlink/internal/telemetry"
	"github.com/autopeer-io/seatlink/pkg/log"
	"github.com/autopeer-io/seatlink/pkg/options"
)

func startSimbot(t *testing.T, voltage float32) *simbot.Server {
	t.Helper()
	s := simbot.New(simbot.Config{
		Addr:    "127.0.0.1:0",
		Battery: simbot.Battery{Voltage: voltage, SoC: 80},
		Logger:  log.NewNopLogger(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = s.Start(ctx) }()
	t.Cleanup(cancel)
	<-s.Listening()
	return s
}

func writeSession(t *testing.T, path string, addrs ...string) {
	t.Helper()
	content := "currentSet: 0\nrobots:\n"
	for i, a := range addrs {
		content += fmt.Sprintf("  - seat: %d\n    set: 0\n    custom:\n      address: %q\n", i+1, a)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestConfig(sessionFile string) *Config {
	httpOpts := options.NewHttpOptions()
	httpOpts.Addr = "127.0.0.1:0"
	grpcOpts := options.NewGrpcOptions()
	grpcOpts.Addr = "127.0.0.1:0"

	return &Config{
		Model: controller.Skidsteer(),
		Controller: controller.Config{
			ReceiveTimeout: 20 * time.Millisecond,
			SetFile:        filepath.Join(filepath.Dir(sessionFile), "current_set"),
		},
		SessionFile:   sessionFile,
		PollerEnabled: true,
		Poller:        telemetry.PollerConfig{Interval: 50 * time.Millisecond},
		HttpOptions:   httpOpts,
		GrpcOptions:   grpcOpts,
		MqttOptions:   options.NewMqttOptions(),
		Logger:        log.NewNopLogger(),
	}
}

func TestAgentRunPollsAndReloads(t *testing.T) {
	bot1 := startSimbot(t, 12.6)
	bot2 := startSimbot(t, 7.4)

	session := filepath.Join(t.TempDir(), "session.yaml")
	writeSession(t, session, bot1.Addr())

	a, err := newTestConfig(session).NewAgent()
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	waitFor(t, "agent ready", a.Ready)
	waitFor(t, "seat 1 battery", func() bool {
		br, ok := a.Battery(1)
		return ok && br.Voltage == 12.6
	})
	if bot1.Device().Requests() == 0 {
		t.Fatal("simbot 1 never saw a battery request")
	}
	if a.BatteryStale(1) {
		t.Error("seat 1 reading stale while the poller runs")
	}
	if !a.BatteryStale(9) {
		t.Error("seat without a reading reported fresh")
	}

	if err := a.Controller().Send(ctx, 1, controller.InputLift, 0.5); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "lift", func() bool { return bot1.Device().Value(protocol.Custom1) == 0.5 })

	writeSession(t, session, bot1.Addr(), bot2.Addr())
	waitFor(t, "reload with two seats", func() bool { return len(a.Seats()) == 2 })
	waitFor(t, "seat 2 battery", func() bool {
		br, ok := a.Battery(2)
		return ok && br.Voltage == 7.4
	})

	// a broken edit keeps the running session
	if err := os.WriteFile(session, []byte("robots:\n  - set: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	if got := a.Controller().OpenSeats(); len(got) != 2 {
		t.Fatalf("open seats after broken edit = %v, want both", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not stop")
	}
	if got := a.Controller().OpenSeats(); len(got) != 0 {
		t.Errorf("open seats after Run = %v", got)
	}
}

func TestAgentRunFailsOnBadSession(t *testing.T) {
	session := filepath.Join(t.TempDir(), "session.yaml")
	if err := os.WriteFile(session, []byte("currentSet: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	a, err := newTestConfig(session).NewAgent()
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}
	if err := a.Run(context.Background()); err == nil {
		t.Fatal("Run accepted a session without robots")
	}
	if a.Ready() {
		t.Error("agent ready without a session")
	}
}

func TestSeatClosedMarksHealth(t *testing.T) {
	bot := startSimbot(t, 12)
	session := filepath.Join(t.TempDir(), "session.yaml")
	writeSession(t, session, bot.Addr(), "127.0.0.1:1")

	a, err := newTestConfig(session).NewAgent()
	if err != nil {
		t.Fatal(err)
	}
	if err := a.session.Apply(context.Background()); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	defer a.ctrl.Shutdown(context.Background())

	seats := a.Seats()
	if len(seats) != 2 || seats[0].State != seat.StateOpen || seats[1].State != seat.StateClosed {
		t.Fatalf("seats = %+v", seats)
	}
	if seats[1].Error == "" {
		t.Error("unreachable seat carries no error")
	}
}
