// Package logging provides structured logging for the storage layer,
// generalizing the logrus wrapper pattern used across the request-facing
// services this module's teacher ships to a library with no HTTP surface:
// fields center on store path, operation, and item/node identifiers
// instead of trace/user/role context.
package logging

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger with a component name applied to every entry.
type Logger struct {
	*logrus.Logger
	component string
}

// New creates a Logger for component, parsing level (logrus level names,
// defaulting to info on an unrecognized value) and format ("json" or
// "text").
func New(component, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}
	logger.SetOutput(os.Stderr)

	return &Logger{Logger: logger, component: component}
}

// NewFromEnv builds a Logger from ISOCORE_LOG_LEVEL / ISOCORE_LOG_FORMAT,
// defaulting to info/text.
func NewFromEnv(component string) *Logger {
	level := os.Getenv("ISOCORE_LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	format := os.Getenv("ISOCORE_LOG_FORMAT")
	if format == "" {
		format = "text"
	}
	return New(component, level, format)
}

// With returns a logrus.Entry pre-populated with this logger's component
// and the given fields.
func (l *Logger) With(fields logrus.Fields) *logrus.Entry {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["component"] = l.component
	return l.Logger.WithFields(fields)
}

// Op logs the completion of a storage operation at info level: the path
// it ran against, the operation name, the subject id (a message or node
// id, as a string so callers don't need a shared numeric type), and how
// long it took.
func (l *Logger) Op(path, op, id string, dur time.Duration) {
	l.With(logrus.Fields{
		"path":        path,
		"op":          op,
		"id":          id,
		"duration_ms": dur.Milliseconds(),
	}).Info(op)
}

// OpDebug is Op at debug level, used for the hot-path frame scan/flush
// events that would otherwise drown out operational logs.
func (l *Logger) OpDebug(path, op, id string, dur time.Duration) {
	l.With(logrus.Fields{
		"path":        path,
		"op":          op,
		"id":          id,
		"duration_ms": dur.Milliseconds(),
	}).Debug(op)
}

// Failure logs a failed operation at error level with its cause.
func (l *Logger) Failure(path, op string, err error) {
	l.With(logrus.Fields{
		"path": path,
		"op":   op,
	}).WithError(err).Error(op + " failed")
}
