package log

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the process wide logger. It is a no-op logger until InitLogger is called.
var Logger = zap.NewNop()

var level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

// Options controls how InitLogger builds the logger.
type Options struct {
	Level    string // debug, info, warn, error
	Location string // time zone name for timestamps, empty means local
	Color    bool
	Output   []string
}

func InitLogger(opts Options) error {
	if err := SetLevel(opts.Level); err != nil {
		return err
	}

	location := time.Local
	if opts.Location != "" {
		loc, err := time.LoadLocation(opts.Location)
		if err != nil {
			return fmt.Errorf("log: load location %q: %w", opts.Location, err)
		}
		location = loc
	}

	config := zap.NewProductionConfig()
	config.Level = level
	config.Encoding = "console"
	config.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.In(location).Format(time.RFC3339))
	}
	if opts.Color {
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	if len(opts.Output) > 0 {
		config.OutputPaths = opts.Output
	}

	logger, err := config.Build()
	if err != nil {
		return err
	}
	Logger = logger
	return nil
}

// SetLevel changes the level of the process logger at runtime.
func SetLevel(name string) error {
	if name == "" {
		return nil
	}
	l, err := parseLevel(name)
	if err != nil {
		return err
	}
	level.SetLevel(l)
	return nil
}

// ValidLevel checks a level name without applying it. Empty is valid.
func ValidLevel(name string) error {
	if name == "" {
		return nil
	}
	_, err := parseLevel(name)
	return err
}

func parseLevel(name string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return l, fmt.Errorf("log: unknown level %q", name)
	}
	return l, nil
}

// IsDebug reports whether debug output of the process logger is enabled.
func IsDebug() bool {
	return Logger.Core().Enabled(zapcore.DebugLevel)
}

func Sync() {
	_ = Logger.Sync()
}
