// Package logging wraps logrus for structured application logging, the
// way the teacher's pkg/logger wraps it: level/format come from
// configuration, JSON output is the default for anything but local
// development.
package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is a thin wrapper around *logrus.Logger so call sites depend on
// this package rather than logrus directly.
type Logger struct {
	*logrus.Logger
}

// Config controls logger construction.
type Config struct {
	Level  string
	Format string
}

// New builds a Logger from Config.
func New(cfg Config) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "text":
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	}

	return &Logger{Logger: base}
}

// WithRequestID returns an entry carrying the request id field, used by
// the HTTP middleware chain to correlate log lines for one request.
func (l *Logger) WithRequestID(id string) *logrus.Entry {
	return l.WithField("request_id", id)
}
