// Package log installs the process-wide slog handler. Records are rendered by
// the charmbracelet logger so library and CLI output share one format.
package log

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"

	charmlog "github.com/charmbracelet/log"

	"avmdis/internal/logging"
)

var (
	initOnce    sync.Once
	initialized atomic.Bool
	logger      *logging.LoggerCloser
)

// Setup routes slog and the charmbracelet default logger to logFile when it
// is non-empty, otherwise wherever the AVMDIS_LOG_* environment selects.
// Only the first call has any effect.
func Setup(logFile string, debug bool) {
	initOnce.Do(func() {
		opts := logging.FromEnv()
		if logFile != "" {
			opts.File = logFile
		}
		if debug {
			opts.Level = charmlog.DebugLevel
			opts.Caller = true
		}
		lc, err := logging.New(os.Stderr, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "avmdis: %v; logging to stderr\n", err)
			opts.File = ""
			lc, _ = logging.New(os.Stderr, opts)
		}
		logger = lc

		charmlog.SetDefault(logger.Logger)
		slog.SetDefault(slog.New(logger.Logger))
		initialized.Store(true)
	})
}

func Initialized() bool {
	return initialized.Load()
}

// Logger returns the configured logger, or the charmbracelet default before Setup.
func Logger() *charmlog.Logger {
	if logger == nil {
		return charmlog.Default()
	}
	return logger.Logger
}

// Close releases the log file, if any.
func Close() error {
	if logger == nil {
		return nil
	}
	return logger.Close()
}

func RecoverPanic(name string, cleanup func()) {
	if r := recover(); r != nil {
		if Initialized() {
			slog.Error(fmt.Sprintf("Panic in %s", name),
				"panic", r,
				"stack", string(debug.Stack()))
		}
		if cleanup != nil {
			cleanup()
		}
	}
}
