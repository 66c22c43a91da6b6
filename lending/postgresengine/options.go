package postgresengine

import (
	"context"
	"time"
)

// Logger interface for SQL query logging, operational messages, warnings,
// and error reporting.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ContextualLogger interface for context-aware logging with automatic trace
// correlation. When both a Logger and a ContextualLogger are configured, the
// contextual one wins.
type ContextualLogger interface {
	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}

// MetricsCollector interface for collecting engine performance and
// operational metrics. Implementations must be safe for concurrent use.
type MetricsCollector interface {
	RecordDuration(metric string, duration time.Duration, labels map[string]string)
	IncrementCounter(metric string, labels map[string]string)
	RecordValue(metric string, value float64, labels map[string]string)
}

// SpanContext represents an active tracing span that can be finished and
// updated with attributes.
type SpanContext interface {
	SetStatus(status string)
	AddAttribute(key, value string)
}

// TracingCollector interface for collecting distributed tracing information
// from engine operations. Dependency-free so any backend (OpenTelemetry,
// Jaeger, Zipkin, ...) can implement it; see lending/oteladapters.
type TracingCollector interface {
	StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, SpanContext)
	FinishSpan(spanCtx SpanContext, status string, attrs map[string]string)
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine) error

// WithLogger sets the logger for the Engine.
//
// Debug level: SQL statements with execution timing (development use)
// Info level: operation outcomes and row counts (production-safe)
// Warn level: non-critical issues like cleanup failures
// Error level: failures that abort an operation.
func WithLogger(logger Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Engine, enabling
// automatic trace/span correlation when tracing is configured as well.
func WithContextualLogger(logger ContextualLogger) Option {
	return func(e *Engine) error {
		e.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Engine. The collector
// receives operation durations, business-rule rejection counts, and storage
// error counts.
func WithMetrics(collector MetricsCollector) Option {
	return func(e *Engine) error {
		e.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Engine. Every public
// operation runs inside one span carrying the entity identifiers it touches.
func WithTracing(collector TracingCollector) Option {
	return func(e *Engine) error {
		e.tracingCollector = collector
		return nil
	}
}
