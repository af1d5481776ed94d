package log

import (
	"fmt"

	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"
)

// Options configure the process-wide logger; see Init.
type Options struct {
	// Name prefixes every logger name, e.g. "seatlink-agent".
	Name   string `json:"name,omitempty" mapstructure:"name"`
	Level  string `json:"level,omitempty" mapstructure:"level"`
	Format string `json:"format,omitempty" mapstructure:"format"` // console or json

	EnableColor   bool `json:"enable-color,omitempty" mapstructure:"enable-color"`
	DisableCaller bool `json:"disable-caller,omitempty" mapstructure:"disable-caller"`
	CallerSkip    int  `json:"caller-skip,omitempty" mapstructure:"caller-skip"`

	// OutputPaths accepts file paths as well as "stdout" and "stderr".
	OutputPaths []string `json:"output-paths,omitempty" mapstructure:"output-paths"`
}

func NewOptions() *Options {
	return &Options{
		Level:       "info",
		Format:      "console",
		EnableColor: true,
		// skips zapLogger and the package-level helper
		CallerSkip:  2,
		OutputPaths: []string{"stdout"},
	}
}

func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(o.Level)); err != nil {
		errs = append(errs, fmt.Errorf("--log.level %q is not a zap level", o.Level))
	}
	switch o.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("--log.format %q, want console or json", o.Format))
	}
	if len(o.OutputPaths) == 0 {
		errs = append(errs, fmt.Errorf("--log.output-paths must not be empty"))
	}
	return errs
}

func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Level, "log.level", o.Level, "Minimum level to log: debug, info, warn or error.")
	fs.StringVar(&o.Format, "log.format", o.Format, "Log encoding: console or json.")
	fs.StringVar(&o.Name, "log.name", o.Name, "Name prefixed to every logger.")
	fs.BoolVar(&o.EnableColor, "log.enable-color", o.EnableColor, "Colorize levels in console output.")
	fs.BoolVar(&o.DisableCaller, "log.disable-caller", o.DisableCaller, "Omit the file:line caller field.")
	fs.IntVar(&o.CallerSkip, "log.caller-skip", o.CallerSkip, "Stack frames to skip when annotating the caller.")
	fs.StringSliceVar(&o.OutputPaths, "log.output-paths", o.OutputPaths,
		"Where to write logs: stdout, stderr or file paths such as /var/log/seatlink/agent.log.")
}
