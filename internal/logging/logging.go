// Package logging configures the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/iotlab-io/labwatch/internal/config"
)

// Options selects the level, encoding and destination of diagnostic logs.
type Options struct {
	Level  string // zerolog level name
	Format string // "console" | "json"
	Output io.Writer
}

// New builds a logger from opts. A nil Output means stderr.
func New(opts Options) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = l
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	switch opts.Format {
	case "", "console":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	case "json":
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q", opts.Format)
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// Setup builds a logger and installs it as the global logger.
func Setup(opts Options) (zerolog.Logger, error) {
	logger, err := New(opts)
	if err != nil {
		return logger, err
	}
	log.Logger = logger
	zerolog.DefaultContextLogger = &log.Logger
	return logger, nil
}

// SetupFile installs a JSON logger writing to ~/.labwatch/labwatch.log.
// The dashboard owns the terminal, so it cannot log to stderr.
func SetupFile(level string) (zerolog.Logger, io.Closer, error) {
	if err := config.EnsureGlobalDir(); err != nil {
		return zerolog.Nop(), nil, err
	}
	path, err := config.GlobalLogFile()
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("failed to open log file: %w", err)
	}

	logger, err := Setup(Options{Level: level, Format: "json", Output: f})
	if err != nil {
		f.Close()
		return logger, nil, err
	}
	return logger, f, nil
}
