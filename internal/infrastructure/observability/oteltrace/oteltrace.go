// Package oteltrace adapts the OpenTelemetry tracer to the Tracer port.
// The process must install a TracerProvider (otel.SetTracerProvider) for
// spans to be exported; without one this degrades to no-op spans.
package oteltrace

import (
	"context"

	"github.com/calico-commerce/storefront/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type tracer struct{ t trace.Tracer }

func New(name string) observability.Tracer {
	if name == "" {
		name = "storefront"
	}
	return &tracer{t: otel.Tracer(name)}
}

func (t *tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.t.Start(ctx, name, trace.WithAttributes(attrs...))
}
