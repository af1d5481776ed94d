package controller

import (
	"fmt"
	"sort"
	"strings"

	"github.com/autopeer-io/seatlink/internal/actuator"
	"github.com/autopeer-io/seatlink/internal/protocol"
)

// Input names shared by the built-in models.
const (
	InputSteer    = "steer"
	InputThrottle = "throttle"
	InputLift     = "lift"
	InputTilt     = "tilt"
	InputSideways = "sideways"
	InputSwitch   = "switch"
)

// Axis is one bound input of a robot model.
type Axis struct {
	Name       string
	Command    protocol.CommandID
	Multiplier float32
}

// Model describes a robot as a set of axes plus optional composite inputs.
type Model struct {
	Name string
	Axes []Axis
	// Drive is set for car-like robots.
	Drive *actuator.Joystick
	// Switch is set for on/off robots.
	Switch *actuator.Switch
}

var driveJoystick = &actuator.Joystick{X: InputSteer, Y: InputThrottle}

func carAxes(throttle, steer float32) []Axis {
	return []Axis{
		{Name: InputSteer, Command: protocol.Steer, Multiplier: steer},
		{Name: InputThrottle, Command: protocol.Throttle, Multiplier: throttle},
	}
}

// Car is a two-axis car-like robot.
func Car() Model {
	return Model{Name: "car", Axes: carAxes(1, 1), Drive: driveJoystick}
}

// Skidsteer is a car with lift and tilt channels. Drive axes are damped.
func Skidsteer() Model {
	axes := append(carAxes(0.5, 0.2),
		Axis{Name: InputLift, Command: protocol.Custom1, Multiplier: 1},
		Axis{Name: InputTilt, Command: protocol.Custom2, Multiplier: 1},
	)
	return Model{Name: "skidsteer", Axes: axes, Drive: driveJoystick}
}

// M5Rover is a car with a sideways channel.
func M5Rover() Model {
	axes := append(carAxes(1, 1),
		Axis{Name: InputSideways, Command: protocol.Custom1, Multiplier: 1},
	)
	return Model{Name: "m5rover", Axes: axes, Drive: driveJoystick}
}

// SwitchBot exposes one on/off channel.
func SwitchBot() Model {
	sw := actuator.NewSwitch(InputSwitch)
	return Model{
		Name:   "switchbot",
		Axes:   []Axis{{Name: InputSwitch, Command: protocol.Custom1, Multiplier: 1}},
		Switch: &sw,
	}
}

var models = map[string]func() Model{
	"car":       Car,
	"skidsteer": Skidsteer,
	"m5rover":   M5Rover,
	"switchbot": SwitchBot,
}

// ModelNames lists the built-in models.
func ModelNames() []string {
	names := make([]string, 0, len(models))
	for n := range models {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewModel returns the built-in model name with multiplier overrides applied.
// An override is keyed by input name ("lift") or by the name of the command
// the input is bound to ("CUSTOM_1", case-insensitive).
func NewModel(name string, multipliers map[string]float32) (Model, error) {
	build, ok := models[name]
	if !ok {
		return Model{}, fmt.Errorf("unknown robot model %q, want one of %v", name, ModelNames())
	}
	m := build()

	for input, mult := range multipliers {
		match := func(a Axis) bool { return a.Name == input }
		if cmd, err := protocol.ParseCommand(strings.ToUpper(input)); err == nil {
			match = func(a Axis) bool { return a.Name == input || a.Command == cmd }
		}
		found := false
		for i := range m.Axes {
			if match(m.Axes[i]) {
				m.Axes[i].Multiplier = mult
				found = true
			}
		}
		if !found {
			return Model{}, fmt.Errorf("%w: model %s has no input %q", ErrUnknownInput, name, input)
		}
	}
	return m, nil
}

// Bindings registers every axis and freezes the result.
func (m Model) Bindings() (*actuator.Bindings, error) {
	b := actuator.NewBindings()
	for _, a := range m.Axes {
		if err := b.Bind(a.Name, a.Command, a.Multiplier); err != nil {
			return nil, fmt.Errorf("model %s: %w", m.Name, err)
		}
	}
	b.Freeze()
	return b, nil
}
