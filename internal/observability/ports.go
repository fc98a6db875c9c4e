package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Field is a structured log field; the concrete logger vendor stays hidden
// behind the Logger port.
type Field struct {
	Key   string
	Value any
}

func F(k string, v any) Field { return Field{Key: k, Value: v} }

// Label is a low-cardinality metric label.
type Label struct{ Key, Value string }

func L(k, v string) Label { return Label{Key: k, Value: v} }

type Logger interface {
	With(fields ...Field) Logger
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

type Counter interface {
	Add(delta float64, labels ...Label)
}

type Histogram interface {
	Observe(value float64, labels ...Label)
}

// Tracer is a thin wrapper to start spans without binding callers to a
// concrete tracer implementation.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span)
}

// Telemetry bundles the observability ports handed to services via DI.
// Metric instruments are pre-registered; Counter/Histogram look them up by key.
type Telemetry interface {
	Tracer() Tracer
	Logger() Logger
	Counter(key MetricKey) Counter
	Histogram(key MetricKey) Histogram
}

type MetricKey string
