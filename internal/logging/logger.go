// Package logging builds the charmbracelet loggers used by avmdis.
//
// Environment:
//
//	AVMDIS_LOG_LEVEL    debug, info, warn or error (default info)
//	AVMDIS_LOG_PREFIX   message prefix (default "avmdis ")
//	AVMDIS_LOG_TO_FILE  "1" writes to avmdis-<timestamp>-debug.log
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Options configure a logger.
type Options struct {
	Level  log.Level
	Prefix string
	// File, when set, is opened for append and replaces the writer given to New.
	File string
	// Caller adds the calling file and line to every record.
	Caller bool
}

// FromEnv returns options read from the AVMDIS_LOG_* variables.
func FromEnv() Options {
	o := Options{Level: Level(), Prefix: os.Getenv("AVMDIS_LOG_PREFIX")}
	if o.Prefix == "" {
		o.Prefix = "avmdis "
	}
	if os.Getenv("AVMDIS_LOG_TO_FILE") == "1" {
		o.File = fmt.Sprintf("avmdis-%s-debug.log", time.Now().Format("20060102-150405"))
	}
	return o
}

// Level returns the level named by AVMDIS_LOG_LEVEL, defaulting to info.
func Level() log.Level {
	lvl, err := log.ParseLevel(strings.ToLower(os.Getenv("AVMDIS_LOG_LEVEL")))
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// IsDebug returns true if debug logging is enabled
func IsDebug() bool {
	return Level() == log.DebugLevel
}

// LoggerCloser is a logger that may own its output file.
type LoggerCloser struct {
	*log.Logger
	closer io.Closer
}

// Close closes the log file, if the logger opened one.
func (lc *LoggerCloser) Close() error {
	if lc.closer == nil {
		return nil
	}
	err := lc.closer.Close()
	lc.closer = nil
	return err
}

// New returns a logger writing to w, or to o.File when that is set.
func New(w io.Writer, o Options) (*LoggerCloser, error) {
	lc := &LoggerCloser{}
	if o.File != "" {
		f, err := os.OpenFile(o.File, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w, lc.closer = f, f
	}

	lc.Logger = log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		ReportCaller:    o.Caller,
		TimeFormat:      time.Kitchen,
		Level:           o.Level,
		Prefix:          o.Prefix,
	})
	return lc, nil
}
