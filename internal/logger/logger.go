package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a new zap logger with pretty console output at the given
// verbosity (1-7, per the -v/--verbose flag). Higher is noisier:
//
//	1-2  error
//	3    warn
//	4-5  info
//	6    debug
//	7    debug, with stacktraces on error-level logs
func New(verbosity int) (*zap.Logger, error) {
	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(levelFor(verbosity)),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    NewConsoleEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	opts := []zap.Option{zap.AddStacktrace(zap.FatalLevel + 1)} // off by default
	if verbosity >= 7 {
		opts = []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
	}

	return config.Build(opts...)
}

// levelFor maps the CLI's 1-7 verbosity scale onto a zap level.
func levelFor(verbosity int) zapcore.Level {
	switch {
	case verbosity <= 2:
		return zap.ErrorLevel
	case verbosity == 3:
		return zap.WarnLevel
	case verbosity <= 5:
		return zap.InfoLevel
	default:
		return zap.DebugLevel
	}
}

// NewConsoleEncoderConfig returns a human-friendly encoder config with colors
func NewConsoleEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "T",
		LevelKey:       "L",
		NameKey:        "N",
		CallerKey:      zapcore.OmitKey,
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "M",
		StacktraceKey:  "S",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006/01/02 - 15:04:05"),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}
