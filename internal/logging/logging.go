// SPDX-License-Identifier: MPL-2.0

package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultFile is the log file used when no other is configured.
const DefaultFile = "bbgum.log"

type (
	// Options controls sink setup.
	Options struct {
		// Debug lowers the file sink to debug level.
		Debug bool
		// File is the path of the file sink; empty disables it.
		File string
		// Console receives warnings and errors; nil disables it.
		Console io.Writer
		// Prefix is shown in front of every line (e.g. "worker").
		Prefix string
	}

	// Closer releases the sinks opened by Setup.
	Closer func() error
)

// Setup builds the process logger. The file sink records info (debug with
// Options.Debug) and above with timestamps; the console sink only reports
// warnings and errors, with the calling file and line.
func Setup(opts Options) (*slog.Logger, Closer, error) {
	var (
		handlers []slog.Handler
		closers  []io.Closer
	)

	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %s: %w", opts.File, err)
		}
		closers = append(closers, f)

		level := log.InfoLevel
		if opts.Debug {
			level = log.DebugLevel
		}
		handlers = append(handlers, log.NewWithOptions(f, log.Options{
			Level:           level,
			Prefix:          opts.Prefix,
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
		}))
	}

	if opts.Console != nil {
		handlers = append(handlers, log.NewWithOptions(opts.Console, log.Options{
			Level:        log.WarnLevel,
			Prefix:       opts.Prefix,
			ReportCaller: true,
		}))
	}

	var logger *slog.Logger
	if len(handlers) == 0 {
		logger = Nop()
	} else {
		logger = slog.New(NewMultiHandler(handlers...))
	}

	logger.Info("Log system successfully initialized", "file", opts.File, "debug", opts.Debug)

	return logger, closeAll(closers), nil
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// Component derives a logger tagged with the given component name.
func Component(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = Nop()
	}
	return logger.With("component", name)
}

func closeAll(closers []io.Closer) Closer {
	return func() error {
		var errs []error
		for _, c := range closers {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
