package telemetry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/seatlink/internal/seat"
	"github.com/autopeer-io/seatlink/pkg/log"
)

type fakeRequester struct {
	seats []seat.ID
	fail  map[seat.ID]bool

	mu        sync.Mutex
	requested []seat.ID
	drained   []seat.ID
}

func (f *fakeRequester) OpenSeats() []seat.ID { return f.seats }

func (f *fakeRequester) RequestBattery(_ context.Context, id seat.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, id)
	if f.fail[id] {
		return errors.New("broken pipe")
	}
	return nil
}

func (f *fakeRequester) Drain(id seat.ID, _ time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drained = append(f.drained, id)
	return 9, nil
}

func (f *fakeRequester) calls() (requested, drained []seat.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return sortedIDs(f.requested), sortedIDs(f.drained)
}

func sortedIDs(in []seat.ID) []seat.ID {
	out := append([]seat.ID(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestPollOnceSkipsFailingSeat(t *testing.T) {
	req := &fakeRequester{
		seats: []seat.ID{1, 2, 3},
		fail:  map[seat.ID]bool{2: true},
	}
	p := NewPoller(req, PollerConfig{Logger: log.NewNopLogger()})

	if sent := p.PollOnce(context.Background()); sent != 2 {
		t.Errorf("PollOnce sent %d requests, want 2", sent)
	}
	requested, drained := req.calls()
	if diff := cmp.Diff([]seat.ID{1, 2, 3}, requested); diff != "" {
		t.Errorf("requested seats mismatch (-want +got):\n%s", diff)
	}
	if len(drained) != 0 {
		t.Errorf("drained %v without DrainAfterRequest", drained)
	}
}

func TestPollOnceDrainsAfterRequest(t *testing.T) {
	req := &fakeRequester{
		seats: []seat.ID{1, 2},
		fail:  map[seat.ID]bool{1: true},
	}
	p := NewPoller(req, PollerConfig{
		DrainAfterRequest: true,
		DrainWindow:       10 * time.Millisecond,
		Logger:            log.NewNopLogger(),
	})
	p.PollOnce(context.Background())

	_, drained := req.calls()
	if diff := cmp.Diff([]seat.ID{2}, drained); diff != "" {
		t.Errorf("drained seats mismatch (-want +got):\n%s", diff)
	}
}

func TestPollerTicks(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Unix(1700000000, 0))
	req := &fakeRequester{seats: []seat.ID{1}}
	p := NewPoller(req, PollerConfig{
		Interval: 10 * time.Second,
		Clock:    clk,
		Logger:   log.NewNopLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Start(ctx) }()

	waitFor(t, "first cycle", func() bool { return p.Cycles() == 1 && clk.HasWaiters() })

	clk.Step(5 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if c := p.Cycles(); c != 1 {
		t.Fatalf("polled %d times before the interval elapsed", c)
	}

	clk.Step(5 * time.Second)
	waitFor(t, "second cycle", func() bool { return p.Cycles() == 2 })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop on cancel")
	}

	requested, _ := req.calls()
	if len(requested) != 2 {
		t.Errorf("requested %d times, want 2", len(requested))
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
