package controller

import (
	"context"
	"fmt"
	"math"

	"github.com/autopeer-io/seatlink/internal/protocol"
	"github.com/autopeer-io/seatlink/internal/seat"
)

// Message is one decoded inbound frame.
type Message struct {
	Seat    seat.ID
	Command protocol.CommandID
	// Ack is the status byte the robot returns for every command except
	// BATTERY_STATUS.
	Ack byte
	// Voltage and SoC are set for BATTERY_STATUS.
	Voltage float32
	SoC     float32
}

func decodeMessage(id seat.ID, f protocol.Frame) (Message, error) {
	m := Message{Seat: id, Command: f.Command}
	switch f.Command {
	case protocol.BatteryStatus:
		v, soc, err := protocol.DecodeBatteryResponse(f.Payload)
		if err != nil {
			return Message{}, err
		}
		if !finite(v) || !finite(soc) {
			return Message{}, fmt.Errorf("%w: battery reading %v V %v%% is not finite", protocol.ErrDecoding, v, soc)
		}
		m.Voltage, m.SoC = v, soc
	default:
		ack, err := protocol.DecodeAck(f.Payload)
		if err != nil {
			return Message{}, err
		}
		m.Ack = ack
	}
	return m, nil
}

func finite(f float32) bool {
	return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0)
}

// Listener receives every decoded inbound frame. Dispatch is called from the
// seat's inbound goroutine; different seats call it concurrently.
type Listener interface {
	Dispatch(ctx context.Context, m Message)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, m Message)

func (f ListenerFunc) Dispatch(ctx context.Context, m Message) { f(ctx, m) }

// Handler processes messages for one command.
type Handler func(ctx context.Context, m Message)

// Dispatcher routes messages by command id. Its table is fixed at
// construction, so registration can never race with dispatch.
type Dispatcher struct {
	handlers map[protocol.CommandID]Handler
	fallback Handler
}

// NewDispatcher copies handlers. fallback, if non-nil, receives commands with
// no handler of their own.
func NewDispatcher(handlers map[protocol.CommandID]Handler, fallback Handler) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[protocol.CommandID]Handler, len(handlers)),
		fallback: fallback,
	}
	for cmd, h := range handlers {
		if !cmd.Valid() {
			return nil, fmt.Errorf("dispatcher: unregistered command %s", cmd)
		}
		if h == nil {
			return nil, fmt.Errorf("dispatcher: nil handler for %s", cmd)
		}
		d.handlers[cmd] = h
	}
	return d, nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, m Message) {
	if h, ok := d.handlers[m.Command]; ok {
		h(ctx, m)
		return
	}
	if d.fallback != nil {
		d.fallback(ctx, m)
	}
}
