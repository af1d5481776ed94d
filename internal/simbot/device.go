package simbot

import (
	"sort"
	"sync"

	"github.com/autopeer-io/seatlink/internal/protocol"
	"github.com/autopeer-io/seatlink/pkg/log"
)

// Battery is the simulated pack.
type Battery struct {
	Voltage float32
	SoC     float32
}

// Device holds the actuator channels and battery of one simulated robot.
type Device struct {
	log log.Logger

	// discharge is subtracted from SoC on every status request.
	discharge float32

	mu       sync.Mutex
	channels map[protocol.CommandID]float32
	battery  Battery
	requests int
}

func NewDevice(battery Battery, discharge float32, logger log.Logger) *Device {
	return &Device{
		log:       logger,
		discharge: discharge,
		channels:  map[protocol.CommandID]float32{},
		battery:   battery,
	}
}

// Set drives one channel.
func (d *Device) Set(cmd protocol.CommandID, v float32) {
	d.mu.Lock()
	d.channels[cmd] = v
	d.mu.Unlock()
	d.log.Info("[SimBot] Channel set", "command", cmd.String(), "value", v)
}

// Stop zeroes every channel.
func (d *Device) Stop() {
	d.mu.Lock()
	for c := range d.channels {
		d.channels[c] = 0
	}
	d.mu.Unlock()
	d.log.Warn("[SimBot] >>> STOP <<< all channels zeroed")
}

func (d *Device) Value(cmd protocol.CommandID) float32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.channels[cmd]
}

// Channels returns the commands that were set at least once, in byte order.
func (d *Device) Channels() []protocol.CommandID {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]protocol.CommandID, 0, len(d.channels))
	for c := range d.channels {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ReadBattery answers a status request and discharges the pack a little.
func (d *Device) ReadBattery() Battery {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := d.battery
	d.requests++
	d.battery.SoC -= d.discharge
	if d.battery.SoC < 0 {
		d.battery.SoC = 0
	}
	d.log.Info("[SimBot] Battery read", "voltage", b.Voltage, "soc", b.SoC, "requests", d.requests)
	return b
}

// Requests is the number of status requests answered.
func (d *Device) Requests() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requests
}
