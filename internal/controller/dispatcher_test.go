package controller

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/autopeer-io/seatlink/internal/protocol"
)

func TestDispatcherRoutes(t *testing.T) {
	var battery, other int
	d, err := NewDispatcher(map[protocol.CommandID]Handler{
		protocol.BatteryStatus: func(context.Context, Message) { battery++ },
	}, func(context.Context, Message) { other++ })
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	d.Dispatch(context.Background(), Message{Command: protocol.BatteryStatus})
	d.Dispatch(context.Background(), Message{Command: protocol.Custom1})
	d.Dispatch(context.Background(), Message{Command: protocol.Ping})

	if battery != 1 || other != 2 {
		t.Fatalf("battery=%d other=%d", battery, other)
	}
}

func TestDispatcherRejects(t *testing.T) {
	if _, err := NewDispatcher(map[protocol.CommandID]Handler{protocol.CommandID(42): func(context.Context, Message) {}}, nil); err == nil {
		t.Fatal("unregistered command accepted")
	}
	if _, err := NewDispatcher(map[protocol.CommandID]Handler{protocol.Ping: nil}, nil); err == nil {
		t.Fatal("nil handler accepted")
	}
}

func TestDecodeMessage(t *testing.T) {
	m, err := decodeMessage(1, protocol.Frame{Command: protocol.BatteryStatus, Payload: protocol.EncodeBatteryResponse(11.1, 50)})
	if err != nil || m.Voltage != 11.1 || m.SoC != 50 {
		t.Fatalf("got (%+v, %v)", m, err)
	}

	// a short battery payload never updates anything
	if _, err := decodeMessage(1, protocol.Frame{Command: protocol.BatteryStatus, Payload: make([]byte, 5)}); !errors.Is(err, protocol.ErrDecoding) {
		t.Fatalf("got %v, want ErrDecoding", err)
	}
}

func TestDecodeMessageAck(t *testing.T) {
	ack := protocol.EncodeAck(protocol.Throttle, 0x01)
	m, err := decodeMessage(2, protocol.Frame{Command: protocol.Throttle, Payload: ack[1:]})
	if err != nil || m.Seat != 2 || m.Command != protocol.Throttle || m.Ack != 0x01 {
		t.Fatalf("got (%+v, %v)", m, err)
	}

	// a 4-byte value is not a valid reply
	if _, err := decodeMessage(2, protocol.Frame{Command: protocol.Throttle, Payload: make([]byte, protocol.ValueSize)}); !errors.Is(err, protocol.ErrDecoding) {
		t.Fatalf("got %v, want ErrDecoding", err)
	}
}

func TestDecodeMessageNonFiniteBattery(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	tests := []struct {
		name         string
		voltage, soc float32
	}{
		{"nan voltage", nan, 50},
		{"nan soc", 12, nan},
		{"inf voltage", inf, 50},
		{"negative inf soc", 12, -inf},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := protocol.EncodeBatteryResponse(tt.voltage, tt.soc)
			_, err := decodeMessage(1, protocol.Frame{Command: protocol.BatteryStatus, Payload: payload})
			if !errors.Is(err, protocol.ErrDecoding) {
				t.Fatalf("got %v, want ErrDecoding", err)
			}
		})
	}
}
