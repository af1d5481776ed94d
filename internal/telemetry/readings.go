package telemetry

import (
	"sort"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/seatlink/internal/seat"
)

// BatteryReading is the latest battery state reported by a seat.
type BatteryReading struct {
	Seat    seat.ID   `json:"seat"`
	Voltage float32   `json:"voltage"`
	SoC     float32   `json:"soc"`
	Time    time.Time `json:"time"`
}

// Readings keeps one BatteryReading per seat. Only the inbound dispatch path
// writes to it.
type Readings struct {
	clock clock.PassiveClock

	mu   sync.RWMutex
	last map[seat.ID]BatteryReading
}

func NewReadings(clk clock.PassiveClock) *Readings {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Readings{clock: clk, last: map[seat.ID]BatteryReading{}}
}

// Update records a decoded response and returns the stored reading.
func (r *Readings) Update(id seat.ID, voltage, soc float32) BatteryReading {
	br := BatteryReading{Seat: id, Voltage: voltage, SoC: soc, Time: r.clock.Now()}
	r.mu.Lock()
	r.last[id] = br
	r.mu.Unlock()
	return br
}

func (r *Readings) Get(id seat.ID) (BatteryReading, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	br, ok := r.last[id]
	return br, ok
}

// All returns every reading ordered by seat.
func (r *Readings) All() []BatteryReading {
	r.mu.RLock()
	out := make([]BatteryReading, 0, len(r.last))
	for _, br := range r.last {
		out = append(out, br)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Seat < out[j].Seat })
	return out
}

// Stale reports whether the seat's reading is older than maxAge or missing.
func (r *Readings) Stale(id seat.ID, maxAge time.Duration) bool {
	br, ok := r.Get(id)
	if !ok {
		return true
	}
	return r.clock.Since(br.Time) > maxAge
}
