package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/seatlink/internal/agent"
	"github.com/autopeer-io/seatlink/internal/controller"
	"github.com/autopeer-io/seatlink/internal/seat"
	"github.com/autopeer-io/seatlink/internal/telemetry"
	"github.com/autopeer-io/seatlink/pkg/app"
	"github.com/autopeer-io/seatlink/pkg/log"
	"github.com/autopeer-io/seatlink/pkg/options"
)

type AgentOptions struct {
	Robot         *RobotOptions          `json:"robot" mapstructure:"robot"`
	SeatOptions   *options.SeatOptions   `json:"seat" mapstructure:"seat"`
	PollerOptions *options.PollerOptions `json:"poller" mapstructure:"poller"`
	MqttOptions   *options.MqttOptions   `json:"mqtt" mapstructure:"mqtt"`
	HttpOptions   *options.HttpOptions   `json:"http" mapstructure:"http"`
	GrpcOptions   *options.GrpcOptions   `json:"grpc" mapstructure:"grpc"`
	Log           *log.Options           `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*AgentOptions)(nil)

func NewAgentOptions() *AgentOptions {
	o := &AgentOptions{
		Robot:         NewRobotOptions(),
		SeatOptions:   options.NewSeatOptions(),
		PollerOptions: options.NewPollerOptions(),
		MqttOptions:   options.NewMqttOptions(),
		HttpOptions:   options.NewHttpOptions(),
		GrpcOptions:   options.NewGrpcOptions(),
		Log:           log.NewOptions(),
	}

	return o
}

func (o *AgentOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.Robot.AddFlags(fss.FlagSet("robot"))
	o.SeatOptions.AddFlags(fss.FlagSet("seat"))
	o.PollerOptions.AddFlags(fss.FlagSet("poller"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.GrpcOptions.AddFlags(fss.FlagSet("grpc"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *AgentOptions) Complete() error {
	if o.Robot.Multipliers == nil {
		o.Robot.Multipliers = map[string]string{}
	}
	return nil
}

func (o *AgentOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.Robot.Validate()...)
	errs = append(errs, o.SeatOptions.Validate()...)
	errs = append(errs, o.PollerOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.GrpcOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

// Config resolves the model and the local seat overrides.
func (o *AgentOptions) Config() (*agent.Config, error) {
	multipliers, err := o.Robot.ParseMultipliers()
	if err != nil {
		return nil, err
	}
	model, err := controller.NewModel(o.Robot.Model, multipliers)
	if err != nil {
		return nil, err
	}
	local, err := controller.LoadLocalSeats(o.SeatOptions.LocalConfig)
	if err != nil {
		return nil, err
	}

	return &agent.Config{
		Model: model,
		Controller: controller.Config{
			Port: o.SeatOptions.Port,
			Seat: seat.Config{
				ReadBufferSize: o.SeatOptions.ReadBuffer,
				WriteTimeout:   o.SeatOptions.WriteTimeout,
				ConnectTimeout: o.SeatOptions.ConnectTimeout,
			},
			ReceiveTimeout: o.SeatOptions.ReceiveTimeout,
			FrameTimeout:   o.SeatOptions.FrameTimeout,
			LocalSeats:     local,
			SetFile:        o.SeatOptions.SetFile,
		},
		SessionFile:   o.Robot.SessionFile,
		PollerEnabled: o.PollerOptions.Enabled,
		Poller: telemetry.PollerConfig{
			Interval:          o.PollerOptions.Interval,
			DrainAfterRequest: o.PollerOptions.DrainAfterRequest,
			DrainWindow:       o.PollerOptions.DrainWindow,
		},
		HttpOptions: o.HttpOptions,
		GrpcOptions: o.GrpcOptions,
		MqttOptions: o.MqttOptions,
		Logger:      log.Std(),
	}, nil
}
