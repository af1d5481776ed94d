package protocol

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func TestEncodeActuatorLift(t *testing.T) {
	got, err := EncodeActuator(Custom1, 0.75)
	if err != nil {
		t.Fatalf("EncodeActuator: %v", err)
	}
	want := []byte{0x05, 0x00, 0x00, 0x40, 0x3F}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

func TestActuatorRoundTrip(t *testing.T) {
	values := []float32{
		0, -0, 1, -1, 0.5, -0.75, 0.2, 1e-7, -3.4e38,
		math.MaxFloat32, math.SmallestNonzeroFloat32,
	}

	for _, c := range Commands() {
		for _, v := range values {
			frame, err := EncodeActuator(c, v)
			if err != nil {
				t.Fatalf("EncodeActuator(%s, %v): %v", c, v, err)
			}
			if len(frame) != ActuatorFrameSize {
				t.Fatalf("frame length %d, want %d", len(frame), ActuatorFrameSize)
			}
			gotCmd, gotVal, err := DecodeActuator(frame)
			if err != nil {
				t.Fatalf("DecodeActuator(% x): %v", frame, err)
			}
			if gotCmd != c || math.Float32bits(gotVal) != math.Float32bits(v) {
				t.Errorf("round trip (%s, %v) -> (%s, %v)", c, v, gotCmd, gotVal)
			}
		}
	}
}

func TestEncodeActuatorRejects(t *testing.T) {
	tests := []struct {
		name  string
		cmd   CommandID
		value float32
	}{
		{"nan", Throttle, float32(math.NaN())},
		{"+inf", Steer, float32(math.Inf(1))},
		{"-inf", Custom2, float32(math.Inf(-1))},
		{"unknown command", CommandID(42), 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := EncodeActuator(tt.cmd, tt.value)
			if !errors.Is(err, ErrEncoding) {
				t.Fatalf("got err %v, want ErrEncoding", err)
			}
			if frame != nil {
				t.Fatalf("got frame % x on error", frame)
			}
		})
	}
}

func TestBatteryRequest(t *testing.T) {
	got := EncodeBatteryRequest()
	if !bytes.Equal(got, []byte{100, 0x00}) {
		t.Fatalf("got % x", got)
	}
	if len(got) != BatteryRequestSize {
		t.Fatalf("request length %d", len(got))
	}
}

func TestBatteryResponseRoundTrip(t *testing.T) {
	pairs := [][2]float32{
		{12.6, 87.5},
		{0, 0},
		{-1, 100},
		{3.3, 0.01},
		{float32(math.NaN()), float32(math.Inf(1))},
	}

	for _, p := range pairs {
		b := EncodeBatteryResponse(p[0], p[1])
		v, soc, err := DecodeBatteryResponse(b)
		if err != nil {
			t.Fatalf("DecodeBatteryResponse: %v", err)
		}
		if math.Float32bits(v) != math.Float32bits(p[0]) || math.Float32bits(soc) != math.Float32bits(p[1]) {
			t.Errorf("round trip %v -> (%v, %v)", p, v, soc)
		}
	}
}

func TestDecodeBatteryResponseLength(t *testing.T) {
	for _, n := range []int{0, 1, 5, 7, 9, 16} {
		_, _, err := DecodeBatteryResponse(make([]byte, n))
		if !errors.Is(err, ErrDecoding) {
			t.Errorf("len %d: got err %v, want ErrDecoding", n, err)
		}
	}
}

func TestDecodeValue(t *testing.T) {
	v, err := DecodeValue([]byte{0x00, 0x00, 0x40, 0x3F})
	if err != nil || v != 0.75 {
		t.Fatalf("got (%v, %v)", v, err)
	}
	if _, err := DecodeValue([]byte{1, 2}); !errors.Is(err, ErrDecoding) {
		t.Fatalf("short value: got %v", err)
	}
}

func TestDecodeAck(t *testing.T) {
	frame := EncodeAck(Steer, 0x01)
	if !bytes.Equal(frame, []byte{byte(Steer), 0x01}) {
		t.Fatalf("EncodeAck = % x", frame)
	}
	status, err := DecodeAck(frame[1:])
	if err != nil || status != 0x01 {
		t.Fatalf("got (%v, %v)", status, err)
	}
	for _, n := range []int{0, 2, ValueSize} {
		if _, err := DecodeAck(make([]byte, n)); !errors.Is(err, ErrDecoding) {
			t.Errorf("%d-byte ack: got %v, want ErrDecoding", n, err)
		}
	}
}
