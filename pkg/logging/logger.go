package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// LogLevel represents logging levels
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// NewLogger creates a JSON logger writing to stdout
func NewLogger(level LogLevel) *logrus.Logger {
	return NewLoggerWithOutput(level, os.Stdout)
}

// NewLoggerWithOutput creates a JSON logger writing to out
func NewLoggerWithOutput(level LogLevel, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)

	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})

	logger.SetLevel(ParseLogLevel(level))

	return logger
}

// ParseLogLevel converts a configured level to logrus.Level, defaulting to info
func ParseLogLevel(level LogLevel) logrus.Level {
	switch level {
	case LogLevelDebug:
		return logrus.DebugLevel
	case LogLevelInfo:
		return logrus.InfoLevel
	case LogLevelWarn:
		return logrus.WarnLevel
	case LogLevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// LogStartup logs service startup information
func LogStartup(logger *logrus.Logger, version string, port int) {
	logger.WithFields(logrus.Fields{
		"event":   "startup",
		"version": version,
		"port":    port,
	}).Info("Deploy webhook starting")
}

// WithDeliveryID returns a logger entry carrying the delivery ID
func WithDeliveryID(logger *logrus.Logger, deliveryID string) *logrus.Entry {
	return logger.WithField("delivery_id", deliveryID)
}
