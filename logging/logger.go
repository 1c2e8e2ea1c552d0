// Package logging builds the zerolog loggers used by the chanrpc command.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"chanrpc/config"
)

// New builds a logger for app from cfg, writing to stderr, and installs it
// as the global logger.
func New(app string, cfg config.LogConfig) zerolog.Logger {
	logger := newLogger(app, cfg, os.Stderr)
	log.Logger = logger
	return logger
}

func newLogger(app string, cfg config.LogConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	w := out
	if cfg.Format != "json" {
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("app", app).Logger()
}
