package options

import (
	"fmt"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/seatlink/pkg/app"
	"github.com/autopeer-io/seatlink/pkg/log"
	"github.com/autopeer-io/seatlink/pkg/options"
)

type ProbeOptions struct {
	SessionFile string `json:"session-file" mapstructure:"session-file"`

	// Wait bounds how long battery responses are collected.
	Wait time.Duration `json:"wait" mapstructure:"wait"`

	// AgentAddr, when set, is the gRPC address of a running agent whose
	// health is reported next to the seats.
	AgentAddr    string        `json:"agent-addr" mapstructure:"agent-addr"`
	AgentTimeout time.Duration `json:"agent-timeout" mapstructure:"agent-timeout"`

	SeatOptions *options.SeatOptions `json:"seat" mapstructure:"seat"`
	Log         *log.Options         `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*ProbeOptions)(nil)

func NewProbeOptions() *ProbeOptions {
	lo := log.NewOptions()
	lo.Level = "warn"
	lo.OutputPaths = []string{"stderr"}
	return &ProbeOptions{
		SessionFile:  "/etc/seatlink/session.yaml",
		Wait:         2 * time.Second,
		AgentTimeout: 3 * time.Second,
		SeatOptions:  options.NewSeatOptions(),
		Log:          lo,
	}
}

func (o *ProbeOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	fs := fss.FlagSet("probe")
	fs.StringVar(&o.SessionFile, "session-file", o.SessionFile, "Session file listing the robots to probe.")
	fs.DurationVar(&o.Wait, "wait", o.Wait, "How long to wait for battery responses.")
	fs.StringVar(&o.AgentAddr, "agent-addr", o.AgentAddr, "gRPC address of a running agent to query for health, e.g. 127.0.0.1:8091.")
	fs.DurationVar(&o.AgentTimeout, "agent-timeout", o.AgentTimeout, "Timeout of each health call to the agent.")
	o.SeatOptions.AddFlags(fss.FlagSet("seat"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *ProbeOptions) Complete() error { return nil }

func (o *ProbeOptions) Validate() error {
	var errs []error
	if o.SessionFile == "" {
		errs = append(errs, fmt.Errorf("--session-file is required"))
	}
	if o.Wait <= 0 {
		errs = append(errs, fmt.Errorf("--wait must be positive"))
	}
	if o.AgentAddr != "" {
		if err := options.ValidateAddress(o.AgentAddr); err != nil {
			errs = append(errs, fmt.Errorf("--agent-addr: %w", err))
		}
	}
	errs = append(errs, o.SeatOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}
