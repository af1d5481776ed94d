package actuator

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/autopeer-io/seatlink/internal/protocol"
)

func TestEncodeScenarioLift(t *testing.T) {
	b := NewBindings()
	if err := b.Bind("lift", protocol.Custom1, 1.0); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	got, err := b.Encode("lift", 0.75)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{0x05, 0x00, 0x00, 0x40, 0x3F}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

func TestMultiplierAppliedOnce(t *testing.T) {
	b := NewBindings()
	if err := b.Bind("throttle", protocol.Throttle, 0.5); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	frame, err := b.Encode("throttle", 1)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	cmd, v, err := protocol.DecodeActuator(frame)
	if err != nil {
		t.Fatalf("DecodeActuator: %v", err)
	}
	if cmd != protocol.Throttle || v != 0.5 {
		t.Fatalf("got (%s, %v), want (THROTTLE, 0.5)", cmd, v)
	}
}

func TestEncodeErrors(t *testing.T) {
	b := NewBindings()
	if err := b.Bind("tilt", protocol.Custom2, 1); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	tests := []struct {
		name  string
		input string
		value float32
		want  error
	}{
		{"unknown input", "doesNotExist", 0.5, ErrUnknownInput},
		{"above range", "tilt", 1.5, ErrOutOfRange},
		{"below range", "tilt", -1.01, ErrOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := b.Encode(tt.input, tt.value)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
			if frame != nil {
				t.Fatalf("frame % x returned with error", frame)
			}
		})
	}
}

func TestBindRules(t *testing.T) {
	b := NewBindings()
	if err := b.Bind("lift", protocol.Custom1, 1); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := b.Bind("lift", protocol.Custom2, 1); err == nil {
		t.Fatal("rebinding an input succeeded")
	}
	if err := b.Bind("ghost", protocol.CommandID(77), 1); err == nil {
		t.Fatal("binding an unregistered command succeeded")
	}

	b.Freeze()
	if err := b.Bind("tilt", protocol.Custom2, 1); !errors.Is(err, ErrFrozen) {
		t.Fatalf("got %v, want ErrFrozen", err)
	}
	if diff := cmp.Diff([]string{"lift"}, b.Names()); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
}

func TestJoystickAndSwitch(t *testing.T) {
	b := NewBindings()
	b.Bind("steer", protocol.Steer, 0.2)
	b.Bind("throttle", protocol.Throttle, 0.5)
	b.Bind("switch", protocol.Custom1, 1)

	frames, err := Joystick{X: "steer", Y: "throttle"}.Encode(b, 1, -1)
	if err != nil {
		t.Fatalf("joystick: %v", err)
	}
	if len(frames) != 2 || frames[0][0] != byte(protocol.Steer) || frames[1][0] != byte(protocol.Throttle) {
		t.Fatalf("unexpected joystick frames % x", frames)
	}
	if _, v, _ := protocol.DecodeActuator(frames[1]); v != -0.5 {
		t.Fatalf("throttle value %v, want -0.5", v)
	}

	on, err := NewSwitch("switch").Encode(b, true)
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	if _, v, _ := protocol.DecodeActuator(on); v != 1 {
		t.Fatalf("switch on value %v", v)
	}
}
