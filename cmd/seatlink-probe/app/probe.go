package app

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gosuri/uitable"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/autopeer-io/seatlink/internal/agent"
	grpcserver "github.com/autopeer-io/seatlink/internal/agent/server/grpc"
	"github.com/autopeer-io/seatlink/internal/controller"
	grpcmw "github.com/autopeer-io/seatlink/internal/pkg/middleware/grpc"
	"github.com/autopeer-io/seatlink/internal/protocol"
	"github.com/autopeer-io/seatlink/internal/seat"
	"github.com/autopeer-io/seatlink/internal/telemetry"
	"github.com/autopeer-io/seatlink/pkg/log"
)

const shutdownTimeout = 2 * time.Second

type probeConfig struct {
	SessionFile  string
	Controller   controller.Config
	Wait         time.Duration
	AgentAddr    string
	AgentTimeout time.Duration
	Logger       log.Logger
}

// SeatReport is one row of the probe output.
type SeatReport struct {
	controller.SeatStatus
	Battery *telemetry.BatteryReading
	// Health is the agent's view of the seat; empty without --agent-addr.
	Health string
}

type Report struct {
	Seats []SeatReport
	// Agent is the agent's overall health; empty without --agent-addr.
	Agent string
}

// probe connects to every seat of the session once, requests battery status
// and collects responses until all open seats answered or cfg.Wait elapsed.
func probe(ctx context.Context, cfg probeConfig) (*Report, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.Std()
	}
	raw, err := agent.NewSessionSource(cfg.SessionFile, nil, cfg.Logger).Load()
	if err != nil {
		return nil, err
	}

	// Battery polling needs no inputs beyond the wire protocol.
	model, err := controller.NewModel("car", nil)
	if err != nil {
		return nil, err
	}
	cfg.Controller.Logger = cfg.Logger
	ctrl, err := controller.New(model, cfg.Controller)
	if err != nil {
		return nil, err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		ctrl.Shutdown(sctx)
	}()

	readings := telemetry.NewReadings(nil)
	dispatcher, err := controller.NewDispatcher(map[protocol.CommandID]controller.Handler{
		protocol.BatteryStatus: telemetry.NewBatteryListener(readings, nil, cfg.Logger).Handle,
	}, nil)
	if err != nil {
		return nil, err
	}

	if _, err := ctrl.HandleConfig(ctx, raw, dispatcher); err != nil {
		return nil, err
	}

	open := ctrl.OpenSeats()
	for _, id := range open {
		if err := ctrl.RequestBattery(ctx, id); err != nil {
			cfg.Logger.Warn("Battery request failed", "seat", int(id), "error", err)
		}
	}

	// Timing out here only means some seats did not answer.
	_ = wait.PollUntilContextTimeout(ctx, 20*time.Millisecond, cfg.Wait, true, func(context.Context) (bool, error) {
		for _, id := range ctrl.OpenSeats() {
			if _, ok := readings.Get(id); !ok {
				return false, nil
			}
		}
		return true, nil
	})

	report := &Report{}
	for _, st := range ctrl.Seats() {
		row := SeatReport{SeatStatus: st}
		if br, ok := readings.Get(st.Seat); ok {
			row.Battery = &br
		}
		report.Seats = append(report.Seats, row)
	}

	if cfg.AgentAddr != "" {
		if err := queryAgent(ctx, cfg, report); err != nil {
			return nil, fmt.Errorf("query agent %s: %w", cfg.AgentAddr, err)
		}
	}
	return report, nil
}

func queryAgent(ctx context.Context, cfg probeConfig, report *Report) error {
	conn, err := grpc.NewClient(cfg.AgentAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(grpcmw.UnaryTimeoutInterceptor(cfg.AgentTimeout)),
	)
	if err != nil {
		return err
	}
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)
	status := func(service string) (string, error) {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			return "", err
		}
		return resp.GetStatus().String(), nil
	}

	if report.Agent, err = status(grpcserver.ServiceName); err != nil {
		return err
	}
	for i := range report.Seats {
		h, err := status(grpcserver.SeatService(report.Seats[i].Seat))
		if err != nil {
			// The agent only knows seats of its own session.
			h = "UNKNOWN"
		}
		report.Seats[i].Health = h
	}
	return nil
}

func render(w io.Writer, r *Report) error {
	table := uitable.New()
	table.MaxColWidth = 50

	withHealth := r.Agent != ""
	header := []any{"SEAT", "ADDRESS", "SET", "STATE", "VOLTAGE", "SOC"}
	if withHealth {
		header = append(header, "AGENT")
	}
	table.AddRow(header...)

	for _, s := range r.Seats {
		voltage, soc := "-", "-"
		if s.Battery != nil {
			voltage = strconv.FormatFloat(float64(s.Battery.Voltage), 'f', 2, 32)
			soc = strconv.FormatFloat(float64(s.Battery.SoC), 'f', 1, 32) + "%"
		}
		state := s.State
		if s.Error != "" {
			state = fmt.Sprintf("%s (%s)", s.State, s.Error)
		}
		row := []any{seatLabel(s.Seat), s.Address, s.Set, state, voltage, soc}
		if withHealth {
			row = append(row, s.Health)
		}
		table.AddRow(row...)
	}

	if _, err := fmt.Fprintln(w, table); err != nil {
		return err
	}
	if withHealth {
		_, err := fmt.Fprintf(w, "\nagent: %s\n", r.Agent)
		return err
	}
	return nil
}

func seatLabel(id seat.ID) string { return "#" + id.String() }
