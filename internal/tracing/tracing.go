// Package tracing holds the otel helpers shared by the bus facade and the
// health monitor, so both start spans and record metrics through the same
// small surface instead of touching go.opentelemetry.io/otel directly.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Provider bundles a tracer and meter. Either may be nil, in which case the
// otel API's no-op implementations are substituted — tracing/metrics are
// always optional (spec's explicit non-goal excludes a dedicated metrics
// exporter; instrumentation is API-only, wired to whatever SDK the caller
// configures process-wide).
type Provider struct {
	Tracer trace.Tracer
	Meter  metric.Meter
}

// NewNoop returns a Provider backed entirely by otel's no-op implementations.
func NewNoop() Provider {
	return Provider{
		Tracer: trace.NewNoopTracerProvider().Tracer("ipcbus"),
		Meter:  nil,
	}
}

// StartSpan starts a span named name with the given attributes, returning
// the derived context and the span to End().
func (p Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := p.Tracer
	if tracer == nil {
		tracer = trace.NewNoopTracerProvider().Tracer("ipcbus")
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordOutcome records err on the span, if non-nil, and ends it. The span's
// status is left unset.
func RecordOutcome(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
