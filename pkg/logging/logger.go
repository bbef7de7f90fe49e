// Package logging builds the process's zap logger and holds the global
// instance the other packages fall back to.
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environment variables read by NewLoggerFromEnv.
const (
	EnvLevel  = "LOG_LEVEL"
	EnvFormat = "LOG_FORMAT"
	EnvDev    = "LOG_DEV"
)

// Logger is the dashboard's zap logger.
type Logger struct {
	*zap.Logger
}

// Options select the encoder and level. The zero value is JSON at info.
type Options struct {
	Level       string
	Format      string
	Development bool
}

// OptionsFromLookup reads LOG_LEVEL, LOG_FORMAT and LOG_DEV.
func OptionsFromLookup(lookup func(string) (string, bool)) Options {
	var o Options
	if v, ok := lookup(EnvDev); ok {
		o.Development = v == "true" || v == "1"
	}
	if v, ok := lookup(EnvLevel); ok {
		o.Level = v
	}
	if v, ok := lookup(EnvFormat); ok {
		o.Format = v
	}
	return o
}

// NewLogger builds a logger writing to stdout. Development mode starts
// from zap's development preset: console output at debug with callers
// and stack traces.
func NewLogger(opts Options) (*Logger, error) {
	zc := zap.NewProductionConfig()
	if opts.Development {
		zc = zap.NewDevelopmentConfig()
	}

	if opts.Level != "" || !opts.Development {
		level, err := ParseLevel(opts.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	if opts.Format != "" {
		zc.Encoding = opts.Format
	}
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	zc.Sampling = nil
	zc.OutputPaths = []string{"stdout"}

	z, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return &Logger{z.With(zap.String("service", "bank-dashboard"))}, nil
}

// NewLoggerFromEnv builds a logger from the process environment.
func NewLoggerFromEnv() (*Logger, error) {
	return NewLogger(OptionsFromLookup(os.LookupEnv))
}

// ParseLevel accepts zap level names plus "warning". Empty means info.
func ParseLevel(level string) (zapcore.Level, error) {
	switch s := strings.ToLower(strings.TrimSpace(level)); s {
	case "":
		return zapcore.InfoLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	default:
		l, err := zapcore.ParseLevel(s)
		if err != nil {
			return zapcore.InfoLevel, fmt.Errorf("%s: %w", EnvLevel, err)
		}
		return l, nil
	}
}

func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{l.Logger.With(fields...)}
}

func (l *Logger) Named(name string) *Logger {
	return &Logger{l.Logger.Named(name)}
}

// ForSession tags entries with the first eight characters of the
// dashboard session id.
func (l *Logger) ForSession(sessionID string) *Logger {
	short := sessionID
	if len(short) > 8 {
		short = short[:8]
	}
	return l.With(zap.String("session", short))
}

var global = &Logger{zap.NewNop()}

// SetGlobal replaces the process-wide logger. Nil restores the no-op one.
func SetGlobal(logger *Logger) {
	if logger == nil {
		logger = &Logger{zap.NewNop()}
	}
	global = logger
}

// Global returns the process-wide logger.
func Global() *Logger {
	return global
}
