package options

import (
	"fmt"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/seatlink/internal/simbot"
	"github.com/autopeer-io/seatlink/pkg/app"
	"github.com/autopeer-io/seatlink/pkg/log"
	"github.com/autopeer-io/seatlink/pkg/options"
)

type SimbotOptions struct {
	Addr          string        `json:"addr" mapstructure:"addr"`
	Voltage       float32       `json:"voltage" mapstructure:"voltage"`
	SoC           float32       `json:"soc" mapstructure:"soc"`
	Discharge     float32       `json:"discharge" mapstructure:"discharge"`
	Ack           bool          `json:"ack" mapstructure:"ack"`
	ResponseDelay time.Duration `json:"response-delay" mapstructure:"response-delay"`
	Log           *log.Options  `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*SimbotOptions)(nil)

func NewSimbotOptions() *SimbotOptions {
	return &SimbotOptions{
		Addr:      ":31338",
		Voltage:   7.4,
		SoC:       100,
		Discharge: 0.5,
		Log:       log.NewOptions(),
	}
}

func (o *SimbotOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	fs := fss.FlagSet("simbot")
	fs.StringVar(&o.Addr, "addr", o.Addr, "Address to accept seat connections on.")
	fs.Float32Var(&o.Voltage, "voltage", o.Voltage, "Reported battery voltage.")
	fs.Float32Var(&o.SoC, "soc", o.SoC, "Initial battery state of charge in percent.")
	fs.Float32Var(&o.Discharge, "discharge", o.Discharge, "State of charge lost per status request.")
	fs.BoolVar(&o.Ack, "ack", o.Ack, "Answer every actuator frame with a one-byte ack.")
	fs.DurationVar(&o.ResponseDelay, "response-delay", o.ResponseDelay, "Delay before answering a battery status request.")
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *SimbotOptions) Complete() error { return nil }

func (o *SimbotOptions) Validate() error {
	var errs []error
	if err := options.ValidateAddress(o.Addr); err != nil {
		errs = append(errs, fmt.Errorf("--addr: %w", err))
	}
	if o.SoC < 0 || o.SoC > 100 {
		errs = append(errs, fmt.Errorf("--soc must be within [0, 100], got %v", o.SoC))
	}
	if o.Discharge < 0 {
		errs = append(errs, fmt.Errorf("--discharge must not be negative"))
	}
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *SimbotOptions) Config() simbot.Config {
	return simbot.Config{
		Addr:          o.Addr,
		Battery:       simbot.Battery{Voltage: o.Voltage, SoC: o.SoC},
		Discharge:     o.Discharge,
		Ack:           o.Ack,
		ResponseDelay: o.ResponseDelay,
		Logger:        log.Std(),
	}
}
