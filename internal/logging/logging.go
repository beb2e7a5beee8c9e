// Package logging configures the process-wide structured logger.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Options controls logger construction.
type Options struct {
	Verbose bool
	JSON    bool
	Output  io.Writer
}

// New builds a slog.Logger. Verbose enables debug level; JSON switches
// from human-readable text to machine-readable output.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}
	return slog.New(handler)
}

// Setup builds a logger and installs it as the process default.
func Setup(opts Options) *slog.Logger {
	logger := New(opts)
	slog.SetDefault(logger)
	return logger
}
