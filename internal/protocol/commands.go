package protocol

import (
	"fmt"
	"sort"
)

// CommandID is the one-byte command identifier understood by the robot firmware.
type CommandID uint8

// Command identifiers. The numbering is a firmware contract: append new
// commands, never renumber existing ones.
const (
	Throttle      CommandID = 1
	ThrottleCal   CommandID = 2
	Steer         CommandID = 3
	SteerCal      CommandID = 4
	Custom1       CommandID = 5
	Custom1Cal    CommandID = 6
	Custom2       CommandID = 7
	Custom2Cal    CommandID = 8
	Custom3       CommandID = 9
	Custom3Cal    CommandID = 10
	Custom4       CommandID = 11
	Custom4Cal    CommandID = 12
	BatteryStatus CommandID = 100
	Ping          CommandID = 200
	Stop          CommandID = 0xFF
)

// spec describes one registry entry.
type spec struct {
	name string
	// inbound is the payload length that follows the command byte on frames
	// received from the robot: the battery payload or a single ack byte.
	inbound int
	// outbound is the same for frames sent to the robot.
	outbound int
}

// registry is the single source of truth for command bytes.
var registry = map[CommandID]spec{
	Throttle:      {name: "THROTTLE", inbound: AckSize, outbound: ValueSize},
	ThrottleCal:   {name: "THROTTLE_CAL", inbound: AckSize, outbound: ValueSize},
	Steer:         {name: "STEER", inbound: AckSize, outbound: ValueSize},
	SteerCal:      {name: "STEER_CAL", inbound: AckSize, outbound: ValueSize},
	Custom1:       {name: "CUSTOM_1", inbound: AckSize, outbound: ValueSize},
	Custom1Cal:    {name: "CUSTOM_1_CAL", inbound: AckSize, outbound: ValueSize},
	Custom2:       {name: "CUSTOM_2", inbound: AckSize, outbound: ValueSize},
	Custom2Cal:    {name: "CUSTOM_2_CAL", inbound: AckSize, outbound: ValueSize},
	Custom3:       {name: "CUSTOM_3", inbound: AckSize, outbound: ValueSize},
	Custom3Cal:    {name: "CUSTOM_3_CAL", inbound: AckSize, outbound: ValueSize},
	Custom4:       {name: "CUSTOM_4", inbound: AckSize, outbound: ValueSize},
	Custom4Cal:    {name: "CUSTOM_4_CAL", inbound: AckSize, outbound: ValueSize},
	BatteryStatus: {name: "BATTERY_STATUS", inbound: BatteryResponseSize, outbound: BatteryRequestSize - 1},
	Ping:          {name: "PING", inbound: AckSize, outbound: ValueSize},
	Stop:          {name: "STOP", inbound: AckSize, outbound: ValueSize},
}

var byName = func() map[string]CommandID {
	m := make(map[string]CommandID, len(registry))
	for id, s := range registry {
		if _, dup := m[s.name]; dup {
			panic(fmt.Sprintf("protocol: duplicate command name %q", s.name))
		}
		m[s.name] = id
	}
	return m
}()

// Valid reports whether c is a registered command.
func (c CommandID) Valid() bool {
	_, ok := registry[c]
	return ok
}

// String returns the registry name, or CommandID(n) for unknown bytes.
func (c CommandID) String() string {
	if s, ok := registry[c]; ok {
		return s.name
	}
	return fmt.Sprintf("CommandID(%d)", uint8(c))
}

// Lookup resolves a wire byte to a registered command.
func Lookup(b byte) (CommandID, error) {
	c := CommandID(b)
	if !c.Valid() {
		return 0, fmt.Errorf("%w: unknown command byte 0x%02x", ErrDecoding, b)
	}
	return c, nil
}

// ParseCommand resolves a registry name such as "CUSTOM_1".
func ParseCommand(name string) (CommandID, error) {
	c, ok := byName[name]
	if !ok {
		return 0, fmt.Errorf("unknown command name %q", name)
	}
	return c, nil
}

// Commands returns every registered command in ascending byte order.
func Commands() []CommandID {
	out := make([]CommandID, 0, len(registry))
	for id := range registry {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// InboundPayloadSize is the number of payload bytes following c on the inbound stream.
func InboundPayloadSize(c CommandID) (int, bool) {
	s, ok := registry[c]
	if !ok {
		return 0, false
	}
	return s.inbound, true
}

// OutboundPayloadSize is the number of payload bytes following c on frames
// sent to the robot.
func OutboundPayloadSize(c CommandID) (int, bool) {
	s, ok := registry[c]
	if !ok {
		return 0, false
	}
	return s.outbound, true
}
