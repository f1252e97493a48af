// Package logging builds the process logger from LogConfig.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/abhi007singh/legendary-sniffle/app/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New returns a logger writing to stdout and installs it as the global
// zerolog logger. An unknown level falls back to info.
func New(cfg config.LogConfig) zerolog.Logger {
	return Init(os.Stdout, cfg)
}

// Init is New with an explicit sink.
func Init(w io.Writer, cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	out := w
	if strings.EqualFold(cfg.Style, "pretty") || strings.EqualFold(cfg.Style, "console") {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime, NoColor: !isTerminal(w)}
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
