package telemetry

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/autopeer-io/seatlink/internal/seat"
	"github.com/autopeer-io/seatlink/pkg/log"
	"github.com/autopeer-io/seatlink/pkg/mqtt"
	"github.com/autopeer-io/seatlink/pkg/mqtt/topic"
)

// Sink forwards battery readings to an external consumer.
type Sink interface {
	Publish(ctx context.Context, r BatteryReading) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, r BatteryReading) error

func (f SinkFunc) Publish(ctx context.Context, r BatteryReading) error { return f(ctx, r) }

// LogSink writes every reading to the log.
type LogSink struct {
	Logger log.Logger
}

func (s LogSink) Publish(_ context.Context, r BatteryReading) error {
	s.Logger.Info("Battery status", "seat", int(r.Seat), "voltage", r.Voltage, "soc", r.SoC)
	return nil
}

// MultiSink publishes to every sink and aggregates their errors.
type MultiSink []Sink

func (m MultiSink) Publish(ctx context.Context, r BatteryReading) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return utilerrors.NewAggregate(errs)
}

// MQTTSink publishes readings as JSON to {root}/battery/{seat}.
type MQTTSink struct {
	client  mqtt.Client
	builder *topic.TopicBuilder
	qos     int
}

func NewMQTTSink(client mqtt.Client, builder *topic.TopicBuilder, qos int) *MQTTSink {
	return &MQTTSink{client: client, builder: builder, qos: qos}
}

func (s *MQTTSink) Publish(ctx context.Context, r BatteryReading) error {
	payload, err := encodeReading(r)
	if err != nil {
		return err
	}
	if err := s.client.Publish(ctx, s.builder.Battery(int(r.Seat)), s.qos, false, payload); err != nil {
		return fmt.Errorf("publish battery for seat %d: %w", r.Seat, err)
	}
	return nil
}

// PublishOnline sets the retained online flag of a seat.
func (s *MQTTSink) PublishOnline(ctx context.Context, id seat.ID, online bool, reason string) error {
	st, err := structpb.NewStruct(map[string]any{
		"seat":   int(id),
		"online": online,
		"reason": reason,
	})
	if err != nil {
		return err
	}
	payload, err := protojson.Marshal(st)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.builder.Online(int(id)), s.qos, true, payload)
}

func encodeReading(r BatteryReading) ([]byte, error) {
	st, err := structpb.NewStruct(map[string]any{
		"seat":    int(r.Seat),
		"voltage": float64(r.Voltage),
		"soc":     float64(r.SoC),
		"time":    r.Time.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("encode battery reading: %w", err)
	}
	return protojson.Marshal(st)
}
