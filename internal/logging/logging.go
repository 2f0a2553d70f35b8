// Package logging builds the zap logger shared by every component.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures New.
type Options struct {
	// Verbose lowers the level to debug and adds caller information.
	Verbose bool
	// JSON switches the encoder from console to JSON.
	JSON bool
	// Output is "stderr", "stdout", or a file path. Defaults to stderr.
	Output string
}

// New builds a logger. Logs go to stderr so stdout stays free for command
// output.
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Verbose {
		level = zapcore.DebugLevel
	}
	encoding := "console"
	levelEncoder := zapcore.CapitalColorLevelEncoder
	if opts.JSON {
		encoding = "json"
		levelEncoder = zapcore.CapitalLevelEncoder
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		levelEncoder = zapcore.CapitalLevelEncoder
	}
	output := opts.Output
	if output == "" {
		output = "stderr"
	}

	timeKey := "T"
	if os.Getenv("REVMIGRATE_LOG_NOTIME") != "" {
		timeKey = ""
	}

	return zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       false,
		DisableCaller:     !opts.Verbose,
		DisableStacktrace: true,
		Encoding:          encoding,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        timeKey,
			LevelKey:       "L",
			NameKey:        "N",
			CallerKey:      "C",
			MessageKey:     "M",
			StacktraceKey:  "S",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    levelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{output},
		ErrorOutputPaths: []string{"stderr"},
	}.Build()
}
