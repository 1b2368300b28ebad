// Package logger configures the process-wide logrus logger and carries
// request-scoped fields through a context.
package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type ctxKey struct{}

const RequestIDField = "request_id"

// New builds a logger writing to stdout. format is "json" or "text".
func New(level, format string) *logrus.Logger {
	return NewWithOutput(os.Stdout, level, format)
}

func NewWithOutput(out io.Writer, level, format string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(ParseLevel(level))
	if strings.EqualFold(format, "text") {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}

// ParseLevel falls back to info for unknown levels.
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// WithEntry stores a request-scoped entry in ctx.
func WithEntry(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, ctxKey{}, entry)
}

// WithRequestID derives a request-scoped entry from base and stores it in ctx.
func WithRequestID(ctx context.Context, base logrus.FieldLogger, requestID string) context.Context {
	return WithEntry(ctx, base.WithField(RequestIDField, requestID))
}

// FromContext returns the request-scoped entry, or an entry on fallback when
// the context carries none.
func FromContext(ctx context.Context, fallback logrus.FieldLogger) logrus.FieldLogger {
	if ctx != nil {
		if entry, ok := ctx.Value(ctxKey{}).(*logrus.Entry); ok {
			return entry
		}
	}
	if fallback == nil {
		return logrus.StandardLogger()
	}
	return fallback
}

// RequestID returns the request id stored by WithRequestID, if any.
func RequestID(ctx context.Context) string {
	if entry, ok := ctx.Value(ctxKey{}).(*logrus.Entry); ok {
		if id, ok := entry.Data[RequestIDField].(string); ok {
			return id
		}
	}
	return ""
}

// Discard is a logger for tests.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
