// Package ovslog wraps logrus with the level/format selection this
// corpus's tzsp_server logger provides, adapted from a dual
// file/console sink into the single structured sink the datapath
// process writes to (its own stdout/stderr; there is no on-disk log
// file concern here).
package ovslog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Config selects the logger's verbosity and rendering.
type Config struct {
	Level  string // panic, fatal, error, warn, info, debug, trace
	Format string // "text" or "json"
}

// Logger is a thin, structured wrapper around *logrus.Logger, adding
// the component/pipeline-id fields every datapath log line carries.
type Logger struct {
	base *logrus.Logger
}

// New builds a Logger from cfg, defaulting to info level and text
// format on an unrecognized or empty Level/Format, matching the
// teacher logger's "default to console/info if nothing specified"
// fallback.
func New(cfg Config) *Logger {
	l := logrus.New()

	lvl, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if cfg.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
	l.SetOutput(os.Stderr)

	return &Logger{base: l}
}

// WithPipeline returns an entry tagged with the pipeline/core index a
// forwarding loop runs on, so log lines from different cores can be
// told apart without a mutex-guarded shared prefix.
func (l *Logger) WithPipeline(core int) *logrus.Entry {
	return l.base.WithField("pipeline", core)
}

// WithVport returns an entry tagged with a vport id, for port
// lifecycle and I/O error logging.
func (l *Logger) WithVport(id uint32) *logrus.Entry {
	return l.base.WithField("vport", id)
}

// Entry exposes the underlying logrus entry point for call sites that
// need no field tagging.
func (l *Logger) Entry() *logrus.Entry { return logrus.NewEntry(l.base) }
