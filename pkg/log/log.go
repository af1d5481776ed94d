package log

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is what every seatlink component logs through. Key/value pairs
// follow the logr convention; see toFields for how odd lists are handled.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(err error, msg string, keysAndValues ...any)

	// WithName appends a segment to the logger name, e.g. "agent.session".
	WithName(name string) Logger
	WithValues(keysAndValues ...any) Logger

	// Logr adapts the logger for libraries that take a logr.Logger.
	Logr() logr.Logger

	Sync() error
}

var _ Logger = (*zapLogger)(nil)

type zapLogger struct {
	z *zap.Logger
}

func encoderConfig(opts *Options) zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.MessageKey = "message"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	if opts.Format == "console" && opts.EnableColor {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	// durations in milliseconds: receive timeouts and drain windows are sub-second
	ec.EncodeDuration = func(d time.Duration, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendFloat64(float64(d) / float64(time.Millisecond))
	}
	return ec
}

// NewLogger builds a zap-backed Logger. An unknown level falls back to info;
// an output path that cannot be opened panics, as at this point the process
// has no other way to report it.
func NewLogger(opts *Options) Logger {
	if opts == nil {
		opts = NewOptions()
	}

	level := zapcore.InfoLevel
	_ = level.UnmarshalText([]byte(opts.Level))

	var enc zapcore.Encoder
	if opts.Format == "json" {
		enc = zapcore.NewJSONEncoder(encoderConfig(opts))
	} else {
		enc = zapcore.NewConsoleEncoder(encoderConfig(opts))
	}

	paths := opts.OutputPaths
	if len(paths) == 0 {
		paths = []string{"stdout"}
	}
	sink, _, err := zap.Open(paths...)
	if err != nil {
		panic(fmt.Sprintf("log: open %v: %v", paths, err))
	}
	errSink, _, err := zap.Open("stderr")
	if err != nil {
		panic(fmt.Sprintf("log: open stderr: %v", err))
	}

	zopts := []zap.Option{
		zap.ErrorOutput(errSink),
		zap.AddStacktrace(zapcore.ErrorLevel),
	}
	if !opts.DisableCaller {
		zopts = append(zopts, zap.AddCaller(), zap.AddCallerSkip(opts.CallerSkip))
	}

	z := zap.New(zapcore.NewCore(enc, sink, zap.NewAtomicLevelAt(level)), zopts...)
	if opts.Name != "" {
		z = z.Named(opts.Name)
	}
	return &zapLogger{z: z}
}

// FromZap wraps an existing zap logger, e.g. one built on a zaptest/observer core.
func FromZap(z *zap.Logger) Logger {
	return &zapLogger{z: z}
}

// NewNopLogger discards everything.
func NewNopLogger() Logger {
	return &zapLogger{z: zap.NewNop()}
}

func (l *zapLogger) Debug(msg string, kv ...any) { l.z.Debug(msg, toFields(kv...)...) }
func (l *zapLogger) Info(msg string, kv ...any)  { l.z.Info(msg, toFields(kv...)...) }
func (l *zapLogger) Warn(msg string, kv ...any)  { l.z.Warn(msg, toFields(kv...)...) }

func (l *zapLogger) Error(err error, msg string, kv ...any) {
	fields := toFields(kv...)
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	l.z.Error(msg, fields...)
}

func (l *zapLogger) WithName(name string) Logger { return &zapLogger{z: l.z.Named(name)} }

func (l *zapLogger) WithValues(kv ...any) Logger {
	return &zapLogger{z: l.z.With(toFields(kv...)...)}
}

func (l *zapLogger) Logr() logr.Logger { return zapr.NewLogger(l.z) }
func (l *zapLogger) Sync() error       { return l.z.Sync() }

type holder struct{ Logger }

var std atomic.Pointer[holder]

func init() {
	std.Store(&holder{NewNopLogger()})
}

// Init installs the process-wide logger built from opts. Until it is called
// the package-level functions discard their output.
func Init(opts *Options) {
	std.Store(&holder{NewLogger(opts)})
}

// Std returns the process-wide logger.
func Std() Logger { return std.Load().Logger }

func Debug(msg string, kv ...any)            { Std().Debug(msg, kv...) }
func Info(msg string, kv ...any)             { Std().Info(msg, kv...) }
func Warn(msg string, kv ...any)             { Std().Warn(msg, kv...) }
func Error(err error, msg string, kv ...any) { Std().Error(err, msg, kv...) }
func WithName(name string) Logger            { return Std().WithName(name) }
func WithValues(kv ...any) Logger            { return Std().WithValues(kv...) }
func Logr() logr.Logger                      { return Std().Logr() }
func Sync() error                            { return Std().Sync() }
