// Package logctx threads a request-scoped logger through the context, so
// handlers and services log with the request's prebound fields (request
// id, route) without a logger argument on every call.
package logctx

import (
	"context"

	"github.com/calico-commerce/storefront/internal/observability"
)

type ctxKey struct{}

// With returns a context carrying logger. A nil logger leaves ctx untouched.
func With(ctx context.Context, logger observability.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromOr returns the logger carried by ctx, or fallback when none is set.
func FromOr(ctx context.Context, fallback observability.Logger) observability.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(ctxKey{}).(observability.Logger); ok {
			return logger
		}
	}
	return fallback
}
