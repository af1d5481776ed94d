package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds every seatlink collector. It is served on /metrics by the agent.
var Registry = prometheus.NewRegistry()

var (
	// SeatUp is 1 while the seat's endpoint is open, 0 once it closed.
	SeatUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "seatlink_seat_up",
			Help: "Whether the seat endpoint is open (1) or closed (0).",
		},
		[]string{"seat"},
	)

	// FramesSentTotal counts frames written to a seat.
	FramesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seatlink_frames_sent_total",
			Help: "Total number of frames written to a seat, by command and result.",
		},
		[]string{"seat", "command", "result"}, // result: ok/error
	)

	// FramesReceivedTotal counts complete inbound frames.
	FramesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seatlink_frames_received_total",
			Help: "Total number of complete frames decoded from a seat.",
		},
		[]string{"seat", "command"},
	)

	// DecodeErrorsTotal counts malformed inbound data.
	DecodeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seatlink_decode_errors_total",
			Help: "Total number of inbound decoding errors per seat.",
		},
		[]string{"seat"},
	)

	// DroppedSendsTotal counts sends dropped because the seat was unreachable.
	DroppedSendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seatlink_dropped_sends_total",
			Help: "Total number of sends dropped because the seat endpoint was closed or failed.",
		},
		[]string{"seat"},
	)

	// BatteryVoltage is the last reported voltage per seat.
	BatteryVoltage = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "seatlink_battery_voltage_volts",
			Help: "Last reported battery voltage.",
		},
		[]string{"seat"},
	)

	// BatterySoC is the last reported state of charge per seat.
	BatterySoC = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "seatlink_battery_state_of_charge_percent",
			Help: "Last reported battery state of charge.",
		},
		[]string{"seat"},
	)

	// PollDuration records how long one battery poll cycle takes.
	PollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "seatlink_battery_poll_duration_seconds",
			Help:    "Duration of one battery poll cycle across all seats.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		SeatUp,
		FramesSentTotal,
		FramesReceivedTotal,
		DecodeErrorsTotal,
		DroppedSendsTotal,
		BatteryVoltage,
		BatterySoC,
		PollDuration,
	)
}
