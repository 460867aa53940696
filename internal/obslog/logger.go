// Package obslog provides structured logging shared by every subsystem.
// It wraps logrus the way the rest of this codebase's ancestry does: one
// process-wide logger constructed at startup and threaded through the app
// context, never built ad hoc inside a subsystem.
package obslog

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	moduleKey    ctxKey = "module"
)

// Logger wraps logrus.Logger with request-id and module-scoped helpers.
type Logger struct {
	*logrus.Logger
	service string
}

// New builds a Logger. format is "json" or "text"; level is any logrus level name.
func New(service, level, format string) *Logger {
	l := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if strings.EqualFold(format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	l.SetOutput(os.Stdout)

	return &Logger{Logger: l, service: service}
}

// WithContext returns an entry enriched with the request id, if present.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)
	if v := ctx.Value(requestIDKey); v != nil {
		entry = entry.WithField("request_id", v)
	}
	if v := ctx.Value(moduleKey); v != nil {
		entry = entry.WithField("module", v)
	}
	return entry
}

// WithModule returns a logger scoped to a subsystem name.
func (l *Logger) WithModule(name string) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{"service": l.service, "module": name})
}

// LogSecurityEvent records a gateway-level security event (rate-limit hit,
// auth denial, origin rejection) at warn level with a stable event field.
func (l *Logger) LogSecurityEvent(ctx context.Context, event string, fields map[string]interface{}) {
	entry := l.WithContext(ctx).WithField("security_event", event)
	for k, v := range fields {
		entry = entry.WithField(k, v)
	}
	entry.Warn(event)
}

// WithRequestID stores a request id on the context for downstream logging.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// WithModuleName stores a module/subsystem name on the context.
func WithModuleName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, moduleKey, name)
}
