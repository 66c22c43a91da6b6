package oteladapters

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/branchlib/lending-go/lending/postgresengine"
)

// TracingCollector implements postgresengine.TracingCollector using the
// OpenTelemetry tracing API, creating one span per engine operation.
type TracingCollector struct {
	tracer trace.Tracer
}

// NewTracingCollector creates a tracing collector on the given tracer, which
// should come from your OpenTelemetry TracerProvider.
func NewTracingCollector(tracer trace.Tracer) *TracingCollector {
	return &TracingCollector{tracer: tracer}
}

// StartSpan creates a new span with the given name and attributes.
func (t *TracingCollector) StartSpan(
	ctx context.Context,
	name string,
	attrs map[string]string,
) (context.Context, postgresengine.SpanContext) {

	options := make([]trace.SpanStartOption, 0, len(attrs))
	for key, value := range attrs {
		options = append(options, trace.WithAttributes(attribute.String(key, value)))
	}

	spanCtx, span := t.tracer.Start(ctx, name, options...)

	return spanCtx, &otelSpanContext{span: span}
}

// FinishSpan completes a span with the given status and final attributes.
func (t *TracingCollector) FinishSpan(spanCtx postgresengine.SpanContext, status string, attrs map[string]string) {
	wrapped, ok := spanCtx.(*otelSpanContext)
	if !ok {
		return
	}

	for key, value := range attrs {
		wrapped.span.SetAttributes(attribute.String(key, value))
	}

	wrapped.SetStatus(status)
	wrapped.span.End()
}

var _ postgresengine.TracingCollector = (*TracingCollector)(nil)

// otelSpanContext implements postgresengine.SpanContext by wrapping an
// OpenTelemetry span.
type otelSpanContext struct {
	span trace.Span
}

// SetStatus maps the engine's status strings onto OpenTelemetry codes.
// "rejected" means a business rule said no; the span itself succeeded.
func (s *otelSpanContext) SetStatus(status string) {
	switch status {
	case "success", "rejected":
		s.span.SetStatus(codes.Ok, "")
	case "error":
		s.span.SetStatus(codes.Error, "operation failed")
	default:
		s.span.SetStatus(codes.Unset, "")
	}
}

// AddAttribute adds a string attribute to the span.
func (s *otelSpanContext) AddAttribute(key, value string) {
	s.span.SetAttributes(attribute.String(key, value))
}
