package telemetry

import (
	"context"
	"math"
	"time"

	"github.com/autopeer-io/seatlink/internal/controller"
	"github.com/autopeer-io/seatlink/internal/pkg/metrics"
	"github.com/autopeer-io/seatlink/pkg/log"
)

// DefaultPublishTimeout bounds one sink publish so a slow consumer cannot
// stall a seat's inbound loop for long.
const DefaultPublishTimeout = 2 * time.Second

// BatteryListener handles BATTERY_STATUS messages: it stores the reading,
// updates the gauges and forwards the reading to the sink.
type BatteryListener struct {
	readings *Readings
	sink     Sink
	timeout  time.Duration
	log      log.Logger
}

// NewBatteryListener returns a listener writing to readings. sink may be nil.
func NewBatteryListener(readings *Readings, sink Sink, logger log.Logger) *BatteryListener {
	if logger == nil {
		logger = log.Std()
	}
	return &BatteryListener{
		readings: readings,
		sink:     sink,
		timeout:  DefaultPublishTimeout,
		log:      logger.WithName("battery"),
	}
}

// Handle is a controller.Handler for BATTERY_STATUS. A non-finite reading is
// counted as a decode error and leaves the stored reading untouched.
func (l *BatteryListener) Handle(ctx context.Context, m controller.Message) {
	label := m.Seat.String()
	if !finite(m.Voltage) || !finite(m.SoC) {
		metrics.DecodeErrorsTotal.WithLabelValues(label).Inc()
		l.log.Warn("Ignored non-finite battery status", "seat", int(m.Seat), "voltage", m.Voltage, "soc", m.SoC)
		return
	}

	br := l.readings.Update(m.Seat, m.Voltage, m.SoC)
	metrics.BatteryVoltage.WithLabelValues(label).Set(float64(br.Voltage))
	metrics.BatterySoC.WithLabelValues(label).Set(float64(br.SoC))
	l.log.Debug("Battery status", "seat", int(br.Seat), "voltage", br.Voltage, "soc", br.SoC)

	if l.sink == nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.sink.Publish(pctx, br); err != nil {
		l.log.Warn("Forwarding battery status failed", "seat", int(br.Seat), "error", err)
	}
}

func finite(f float32) bool {
	return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0)
}
