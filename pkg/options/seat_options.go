package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*SeatOptions)(nil)

// SeatOptions tune the TCP connections to the robots.
type SeatOptions struct {
	// Port is used for seat addresses given without one.
	Port int `json:"port" mapstructure:"port"`

	ConnectTimeout time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
	WriteTimeout   time.Duration `json:"write-timeout" mapstructure:"write-timeout"`
	ReceiveTimeout time.Duration `json:"receive-timeout" mapstructure:"receive-timeout"`
	// FrameTimeout is how long a partial inbound frame waits for its remaining bytes.
	FrameTimeout time.Duration `json:"frame-timeout" mapstructure:"frame-timeout"`

	// ReadBuffer bounds the bytes returned by one read.
	ReadBuffer int `json:"read-buffer" mapstructure:"read-buffer"`

	// LocalConfig is a TOML file with per-seat address overrides.
	LocalConfig string `json:"local-config" mapstructure:"local-config"`

	// SetFile holds the current set when the session config has none.
	SetFile string `json:"set-file" mapstructure:"set-file"`
}

// NewSeatOptions returns the defaults used by the robots' firmware.
func NewSeatOptions() *SeatOptions {
	return &SeatOptions{
		Port:           31338,
		ConnectTimeout: 5 * time.Second,
		WriteTimeout:   2 * time.Second,
		ReceiveTimeout: 500 * time.Millisecond,
		FrameTimeout:   time.Second,
		ReadBuffer:     100,
		SetFile:        "/var/lib/srtg/current_set",
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *SeatOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.Port <= 0 || o.Port > 65535 {
		errors = append(errors, fmt.Errorf("--seat.port %d is out of range", o.Port))
	}
	if o.ConnectTimeout <= 0 {
		errors = append(errors, fmt.Errorf("--seat.connect-timeout must be positive"))
	}
	if o.WriteTimeout <= 0 {
		errors = append(errors, fmt.Errorf("--seat.write-timeout must be positive"))
	}
	if o.ReceiveTimeout <= 0 {
		errors = append(errors, fmt.Errorf("--seat.receive-timeout must be positive"))
	}
	if o.FrameTimeout <= 0 {
		errors = append(errors, fmt.Errorf("--seat.frame-timeout must be positive"))
	}
	if o.ReadBuffer < 9 {
		// a battery response is 9 bytes on the stream
		errors = append(errors, fmt.Errorf("--seat.read-buffer must be at least 9, got %d", o.ReadBuffer))
	}

	return errors
}

// AddFlags adds flags for the robot connections to the specified FlagSet.
func (o *SeatOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.IntVar(&o.Port, "seat.port", o.Port, "TCP port of seat addresses that carry none.")
	fs.DurationVar(&o.ConnectTimeout, "seat.connect-timeout", o.ConnectTimeout, "Timeout for connecting to a robot.")
	fs.DurationVar(&o.WriteTimeout, "seat.write-timeout", o.WriteTimeout, "Timeout for writing one frame to a robot.")
	fs.DurationVar(&o.ReceiveTimeout, "seat.receive-timeout", o.ReceiveTimeout, "Timeout of one read in the inbound loop.")
	fs.DurationVar(&o.FrameTimeout, "seat.frame-timeout", o.FrameTimeout, "How long a partial inbound frame may wait for its remaining bytes before it is dropped.")
	fs.IntVar(&o.ReadBuffer, "seat.read-buffer", o.ReadBuffer, "Maximum bytes returned by one read from a robot.")
	fs.StringVar(&o.LocalConfig, "seat.local-config", o.LocalConfig, "TOML file overriding seat addresses, e.g. [seats] 1 = \"10.0.0.5\".")
	fs.StringVar(&o.SetFile, "seat.set-file", o.SetFile, "File holding the current set when the session config has none.")
}
