// Package logging configures logrus and carries request-scoped fields
// through context.
package logging

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	userIDKey
)

// New returns a logger tagged with the service name. format is "json"
// or "text"; unknown levels fall back to info.
func New(service, level, format string) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if strings.EqualFold(format, "text") {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	return l.WithField("service", service)
}

// Discard is a logger that drops everything, for tests and defaults.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func NewRequestID() string { return uuid.New().String() }

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func WithUserID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// WithContext adds request_id and user_id to log when ctx carries them.
func WithContext(ctx context.Context, log logrus.FieldLogger) logrus.FieldLogger {
	fields := logrus.Fields{}
	if id := RequestID(ctx); id != "" {
		fields["request_id"] = id
	}
	if uid, ok := ctx.Value(userIDKey).(int64); ok {
		fields["user_id"] = uid
	}
	if len(fields) == 0 {
		return log
	}
	return log.WithFields(fields)
}
