package options

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/autopeer-io/seatlink/internal/controller"
	"github.com/autopeer-io/seatlink/internal/protocol"
)

// RobotOptions select the robot model and the session the agent follows.
type RobotOptions struct {
	Model string `json:"model" mapstructure:"model"`

	// Multipliers override the per-input scale of the model, e.g. throttle=0.8.
	Multipliers map[string]string `json:"multipliers" mapstructure:"multipliers"`

	SessionFile string `json:"session-file" mapstructure:"session-file"`
}

func NewRobotOptions() *RobotOptions {
	return &RobotOptions{
		Model:       "car",
		Multipliers: map[string]string{},
		SessionFile: "/etc/seatlink/session.yaml",
	}
}

func (o *RobotOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if !sets.New(controller.ModelNames()...).Has(o.Model) {
		errs = append(errs, fmt.Errorf("--robot.model %q is not one of %v", o.Model, controller.ModelNames()))
	}
	if _, err := o.ParseMultipliers(); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(o.SessionFile) == "" {
		errs = append(errs, fmt.Errorf("--robot.session-file is required"))
	}
	return errs
}

// ParseMultipliers converts the flag values to numbers.
func (o *RobotOptions) ParseMultipliers() (map[string]float32, error) {
	out := make(map[string]float32, len(o.Multipliers))
	for input, raw := range o.Multipliers {
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 32)
		if err != nil {
			return nil, fmt.Errorf("--robot.multipliers %s=%q: %w", input, raw, err)
		}
		out[input] = float32(f)
	}
	return out, nil
}

func (o *RobotOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Model, "robot.model", o.Model,
		fmt.Sprintf("Robot model driving the input bindings, one of %v.", controller.ModelNames()))
	fs.StringToStringVar(&o.Multipliers, "robot.multipliers", o.Multipliers,
		fmt.Sprintf("Per-input multiplier overrides keyed by input name or by actuator command (%s), "+
			"e.g. throttle=0.8,CUSTOM_1=0.5.", strings.Join(actuatorCommands(), ", ")))
	fs.StringVar(&o.SessionFile, "robot.session-file", o.SessionFile,
		"YAML or JSON session file with the robots list and current set. It is re-applied on change.")
}

// actuatorCommands lists the command names that carry an actuator value.
func actuatorCommands() []string {
	var out []string
	for _, c := range protocol.Commands() {
		if c == protocol.Ping || c == protocol.Stop {
			continue
		}
		if n, _ := protocol.OutboundPayloadSize(c); n == protocol.ValueSize {
			out = append(out, c.String())
		}
	}
	return out
}
