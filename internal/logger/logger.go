// Package logger builds the process-wide slog logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ekisa-team/ttsd/internal/env"
)

type options struct {
	writer     io.Writer
	logFile    string
	level      slog.Level
	maxSizeMB  int
	maxBackups int
	maxAgeDays int
	logToFile  bool
}

// Option configures New.
type Option func(*options)

// WithLogToFile enables teeing log output into a rotating file.
func WithLogToFile(enabled bool) Option {
	return func(o *options) {
		o.logToFile = enabled
	}
}

// WithLogFile sets the path of the rotating log file.
func WithLogFile(path string) Option {
	return func(o *options) {
		o.logFile = path
	}
}

// WithLevel sets the minimum level.
func WithLevel(level slog.Level) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithWriter replaces stderr as the console destination.
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		o.writer = w
	}
}

// New returns a logger for the given environment. Development gets colored
// text through tint, production gets JSON. Either one can additionally be
// written to a lumberjack-rotated file.
func New(environment env.Environment, opts ...Option) *slog.Logger {
	o := &options{
		writer:     os.Stderr,
		logFile:    filepath.Join("logs", "ttsd.log"),
		level:      slog.LevelInfo,
		maxSizeMB:  64,
		maxBackups: 3,
		maxAgeDays: 7,
	}
	for _, opt := range opts {
		opt(o)
	}

	var handler slog.Handler
	if environment.IsProduction() {
		handler = slog.NewJSONHandler(o.writer, &slog.HandlerOptions{Level: o.level})
	} else {
		handler = tint.NewHandler(o.writer, &tint.Options{
			Level:      o.level,
			TimeFormat: time.Kitchen,
		})
	}

	if o.logToFile && o.logFile != "" {
		if err := os.MkdirAll(filepath.Dir(o.logFile), 0o755); err != nil {
			slog.New(handler).Warn("Failed to create log directory, logging to console only", "path", o.logFile, "error", err)
			return slog.New(handler)
		}

		file := &lumberjack.Logger{
			Filename:   o.logFile,
			MaxSize:    o.maxSizeMB,
			MaxBackups: o.maxBackups,
			MaxAge:     o.maxAgeDays,
			Compress:   true,
		}
		handler = fanout{handler, slog.NewJSONHandler(file, &slog.HandlerOptions{Level: o.level})}
	}

	return slog.New(handler)
}

// ParseLevel maps debug, info, warn and error to slog levels. Unknown values
// fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
