// Package logger provides subsystem-scoped structured logging on top of logrus.
package logger

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// Log is the logging interface used throughout docflow. Components never
// depend on logrus directly; they take a Log so the backing implementation
// can be swapped (e.g. in tests).
type Log interface {
	WithField(name string, value interface{}) Log
	WithFields(fields Fields) Log
	Trace(args ...interface{})
	Tracef(msg string, args ...interface{})
	Debug(args ...interface{})
	Debugf(msg string, args ...interface{})
	Info(args ...interface{})
	Infof(msg string, args ...interface{})
	Warn(args ...interface{})
	Warnf(msg string, args ...interface{})
	Error(args ...interface{})
	Errorf(msg string, args ...interface{})
}

// Fields is a set of keys/values to include in a structured log message.
type Fields map[string]interface{}

// LogFactory produces a logger scoped to the named subsystem, e.g. "executor" or "watcher".
type LogFactory func(subsystem string) Log

// logrusLogger adapts a *logrus.Entry to the Log interface.
type logrusLogger struct {
	*logrus.Entry
}

func (l *logrusLogger) WithField(name string, value interface{}) Log {
	return &logrusLogger{Entry: l.Entry.WithField(name, value)}
}

func (l *logrusLogger) WithFields(fields Fields) Log {
	return &logrusLogger{Entry: l.Entry.WithFields(logrus.Fields(fields))}
}

// MakeLogFactory returns a LogFactory that writes to stdout, using the supplied
// registry to resolve the level for each subsystem.
func MakeLogFactory(registry *LogRegistry) LogFactory {
	return func(subsystem string) Log {
		log := logrus.New()
		log.SetLevel(registry.GetLevel(subsystem))
		log.SetOutput(os.Stdout)
		if isatty.IsTerminal(os.Stdout.Fd()) {
			log.SetFormatter(&logrus.TextFormatter{
				TimestampFormat: "2006-01-02 15:04:05",
				FullTimestamp:   true,
				DisableQuote:    true,
			})
		} else {
			log.SetFormatter(&logrus.JSONFormatter{})
		}
		return &logrusLogger{Entry: log.WithField("subsystem", subsystem)}
	}
}

// Discard returns a LogFactory whose loggers produce no output; useful in tests.
func Discard() LogFactory {
	return func(subsystem string) Log {
		log := logrus.New()
		log.SetOutput(discardWriter{})
		return &logrusLogger{Entry: log.WithField("subsystem", subsystem)}
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
