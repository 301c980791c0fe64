// Package logging provides structured logging with request/trace-id
// context propagation, built on logrus with a context-carried trace id
// generated by google/uuid.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys used by this package.
type ContextKey string

const (
	// TraceIDKey is the context key for the per-request trace id.
	TraceIDKey ContextKey = "trace_id"
	// EnvironmentKey is the context key for the environment a request
	// pertains to, when known.
	EnvironmentKey ContextKey = "environment"
)

// Logger wraps logrus.Logger with edge-specific structured helpers.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a Logger. format is "json" or "text"; level parses via
// logrus.ParseLevel, defaulting to Info on a bad value.
func New(service, level, format string) *Logger {
	logger := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	if strings.EqualFold(format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	logger.SetOutput(os.Stdout)
	return &Logger{Logger: logger, service: service}
}

// NewFromEnv builds a logger from LOG_LEVEL/LOG_FORMAT, defaulting to
// info/json when unset.
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// NewTraceID generates a new trace id.
func NewTraceID() string { return uuid.New().String() }

// WithTraceID returns a context carrying traceID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// TraceID retrieves the trace id from ctx, if present.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(TraceIDKey).(string); ok {
		return v
	}
	return ""
}

// WithEnvironment returns a context carrying the environment name.
func WithEnvironment(ctx context.Context, environment string) context.Context {
	return context.WithValue(ctx, EnvironmentKey, environment)
}

// WithContext returns a logrus entry pre-populated with the service name,
// trace id, and environment carried by ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)
	if traceID := ctx.Value(TraceIDKey); traceID != nil {
		entry = entry.WithField("trace_id", traceID)
	}
	if env := ctx.Value(EnvironmentKey); env != nil {
		entry = entry.WithField("environment", env)
	}
	return entry
}

// LogUpstreamCall logs the result of one upstream HTTP call (validate,
// fetch, post-metrics).
func (l *Logger) LogUpstreamCall(ctx context.Context, call string, statusCode int, duration time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"call":        call,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Warn("upstream call failed")
		return
	}
	entry.Debug("upstream call completed")
}

// LogRefreshTick logs the outcome of one feature-refresher tick for one
// environment.
func (l *Logger) LogRefreshTick(ctx context.Context, environment, representative, outcome string, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"environment":    environment,
		"representative": representative,
		"outcome":        outcome,
	})
	if err != nil {
		entry.WithError(err).Warn("refresh tick")
		return
	}
	entry.Info("refresh tick")
}

// LogSecurityEvent logs a security-relevant event (rate limit, invalid
// token, strict-mode rejection).
func (l *Logger) LogSecurityEvent(ctx context.Context, eventType string, details map[string]interface{}) {
	fields := logrus.Fields{"event_type": eventType, "severity": "security"}
	for k, v := range details {
		fields[k] = v
	}
	l.WithContext(ctx).WithFields(fields).Warn("security event")
}

// WithFields returns a logrus entry with the service name and the supplied
// fields.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	f := logrus.Fields{"service": l.service}
	for k, v := range fields {
		f[k] = v
	}
	return l.Logger.WithFields(f)
}
