package actuator

import "fmt"

// Joystick drives two bound axes from one operator event.
type Joystick struct {
	X string
	Y string
}

// Encode returns the x frame followed by the y frame.
func (j Joystick) Encode(b *Bindings, x, y float32) ([][]byte, error) {
	fx, err := b.Encode(j.X, x)
	if err != nil {
		return nil, fmt.Errorf("joystick x: %w", err)
	}
	fy, err := b.Encode(j.Y, y)
	if err != nil {
		return nil, fmt.Errorf("joystick y: %w", err)
	}
	return [][]byte{fx, fy}, nil
}

// Switch is a two-position input on a bound axis.
type Switch struct {
	Input string
	On    float32
	Off   float32
}

// NewSwitch uses the firmware's default 1/0 positions.
func NewSwitch(input string) Switch {
	return Switch{Input: input, On: 1, Off: 0}
}

func (s Switch) Encode(b *Bindings, on bool) ([]byte, error) {
	v := s.Off
	if on {
		v = s.On
	}
	return b.Encode(s.Input, v)
}
