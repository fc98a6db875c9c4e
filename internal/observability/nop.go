package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type nopLogger struct{}

func (nopLogger) With(...Field) Logger   { return nopLogger{} }
func (nopLogger) Debug(string, ...Field) {}
func (nopLogger) Info(string, ...Field)  {}
func (nopLogger) Warn(string, ...Field)  {}
func (nopLogger) Error(string, ...Field) {}

// NopLogger returns a logger that discards everything. Safe fallback for
// nil-logger wiring and quiet tests.
func NopLogger() Logger { return nopLogger{} }

type nopTracer struct{}

func (nopTracer) Start(ctx context.Context, _ string, _ ...attribute.KeyValue) (context.Context, trace.Span) {
	return ctx, trace.SpanFromContext(ctx)
}

// NopTracer propagates whatever span is already on the context.
func NopTracer() Tracer { return nopTracer{} }

type nopCounter struct{}

func (nopCounter) Add(float64, ...Label) {}

type nopHistogram struct{}

func (nopHistogram) Observe(float64, ...Label) {}

type nopTelemetry struct{}

func (nopTelemetry) Tracer() Tracer                 { return nopTracer{} }
func (nopTelemetry) Logger() Logger                 { return nopLogger{} }
func (nopTelemetry) Counter(MetricKey) Counter      { return nopCounter{} }
func (nopTelemetry) Histogram(MetricKey) Histogram  { return nopHistogram{} }

// NopTelemetry is the all-discarding Telemetry used in tests.
func NopTelemetry() Telemetry { return nopTelemetry{} }
