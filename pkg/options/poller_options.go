package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*PollerOptions)(nil)

// PollerOptions configure the periodic battery status request.
type PollerOptions struct {
	Enabled  bool          `json:"enabled" mapstructure:"enabled"`
	Interval time.Duration `json:"interval" mapstructure:"interval"`

	// DrainAfterRequest discards everything a seat sends during DrainWindow
	// after each request, including the response itself.
	DrainAfterRequest bool          `json:"drain-after-request" mapstructure:"drain-after-request"`
	DrainWindow       time.Duration `json:"drain-window" mapstructure:"drain-window"`
}

// NewPollerOptions polls every ten seconds without draining.
func NewPollerOptions() *PollerOptions {
	return &PollerOptions{
		Enabled:     true,
		Interval:    10 * time.Second,
		DrainWindow: 200 * time.Millisecond,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *PollerOptions) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}

	var errors []error

	if o.Interval < time.Second {
		errors = append(errors, fmt.Errorf("--poller.interval must be at least 1s, got %s", o.Interval))
	}
	if o.DrainAfterRequest && o.DrainWindow <= 0 {
		errors = append(errors, fmt.Errorf("--poller.drain-window must be positive when draining"))
	}
	if o.DrainAfterRequest && o.DrainWindow >= o.Interval {
		errors = append(errors, fmt.Errorf("--poller.drain-window %s must be shorter than the interval %s", o.DrainWindow, o.Interval))
	}

	return errors
}

// AddFlags adds flags for the battery poller to the specified FlagSet.
func (o *PollerOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.BoolVar(&o.Enabled, "poller.enabled", o.Enabled, "Periodically request battery status from every open seat.")
	fs.DurationVar(&o.Interval, "poller.interval", o.Interval, "Time between two battery status requests.")
	fs.BoolVar(&o.DrainAfterRequest, "poller.drain-after-request", o.DrainAfterRequest,
		"Discard whatever a seat sends right after a request. This also discards the response.")
	fs.DurationVar(&o.DrainWindow, "poller.drain-window", o.DrainWindow, "How long to drain after a request.")
}
