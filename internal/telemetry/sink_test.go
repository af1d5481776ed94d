package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/seatlink/pkg/log"
	"github.com/autopeer-io/seatlink/pkg/mqtt"
	"github.com/autopeer-io/seatlink/pkg/mqtt/topic"
)

type published struct {
	Topic   string
	Retain  bool
	Payload map[string]any
}

type fakeClient struct {
	mqtt.Client

	mu   sync.Mutex
	sent []published
	err  error
}

func (f *fakeClient) Publish(_ context.Context, topic string, _ int, retain bool, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, published{Topic: topic, Retain: retain, Payload: m})
	return nil
}

func TestMQTTSinkPublish(t *testing.T) {
	client := &fakeClient{}
	sink := NewMQTTSink(client, topic.NewTopicBuilder("seatlink/v1"), 1)

	r := BatteryReading{Seat: 3, Voltage: 12.5, SoC: 80, Time: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	if err := sink.Publish(context.Background(), r); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := sink.PublishOnline(context.Background(), 3, false, "connection reset"); err != nil {
		t.Fatalf("PublishOnline: %v", err)
	}

	want := []published{
		{
			Topic: "seatlink/v1/battery/3",
			Payload: map[string]any{
				"seat": 3.0, "voltage": 12.5, "soc": 80.0, "time": "2026-01-02T03:04:05Z",
			},
		},
		{
			Topic:   "seatlink/v1/online/3",
			Retain:  true,
			Payload: map[string]any{"seat": 3.0, "online": false, "reason": "connection reset"},
		},
	}
	if diff := cmp.Diff(want, client.sent); diff != "" {
		t.Errorf("published mismatch (-want +got):\n%s", diff)
	}
}

func TestMultiSinkAggregatesErrors(t *testing.T) {
	var calls int
	ok := SinkFunc(func(context.Context, BatteryReading) error { calls++; return nil })
	bad := SinkFunc(func(context.Context, BatteryReading) error { calls++; return errors.New("broker down") })

	err := MultiSink{ok, bad, LogSink{Logger: log.NewNopLogger()}, bad}.Publish(context.Background(), BatteryReading{Seat: 1})
	if err == nil {
		t.Fatal("expected an aggregated error")
	}
	if calls != 3 {
		t.Errorf("called %d sinks, want 3", calls)
	}
	if err := (MultiSink{ok}).Publish(context.Background(), BatteryReading{}); err != nil {
		t.Errorf("all sinks succeeded but got %v", err)
	}
}

func TestReadingsStale(t *testing.T) {
	clk := testingclock.NewFakePassiveClock(time.Unix(1700000000, 0))
	r := NewReadings(clk)

	if !r.Stale(1, time.Minute) {
		t.Error("missing reading should be stale")
	}
	r.Update(1, 12, 50)
	r.Update(2, 11, 40)
	if r.Stale(1, time.Minute) {
		t.Error("fresh reading reported stale")
	}
	clk.SetTime(clk.Now().Add(2 * time.Minute))
	if !r.Stale(1, time.Minute) {
		t.Error("old reading not reported stale")
	}

	all := r.All()
	if len(all) != 2 || all[0].Seat != 1 || all[1].Seat != 2 {
		t.Errorf("All() = %+v, want seats 1 and 2 in order", all)
	}
}
