package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	apporder "github.com/calico-commerce/storefront/internal/application/order"
	"github.com/calico-commerce/storefront/internal/observability"
	"github.com/calico-commerce/storefront/internal/observability/logctx"
)

const (
	headerUserID = "X-User-ID"
	headerRole   = "X-User-Role"
	roleAdmin    = "admin"
)

// actorFrom reads the caller identity resolved by the gateway in front of
// this service. An empty user id means an unauthenticated request.
func actorFrom(r *http.Request) apporder.Actor {
	return apporder.Actor{
		UserID: r.Header.Get(headerUserID),
		Admin:  r.Header.Get(headerRole) == roleAdmin,
	}
}

func requireUser(w http.ResponseWriter, r *http.Request) (apporder.Actor, bool) {
	actor := actorFrom(r)
	if actor.UserID == "" {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "X-User-ID header is required", nil)
		return apporder.Actor{}, false
	}
	return actor, true
}

// telemetryMiddleware opens a server span, binds a request-scoped logger to
// the context, and records the RED metrics per route pattern.
func telemetryMiddleware(tel observability.Telemetry) func(http.Handler) http.Handler {
	reqs := tel.Counter(observability.MHTTPRequests)
	dur := tel.Histogram(observability.MHTTPRequestDuration)
	baseLog := tel.Logger()
	tracer := tel.Tracer()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, span := tracer.Start(r.Context(), "HTTP "+r.Method,
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			)

			reqLog := baseLog.With(
				observability.F("request_id", middleware.GetReqID(ctx)),
				observability.F("method", r.Method),
				observability.F("path", r.URL.Path),
			)
			ctx = logctx.With(ctx, reqLog)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := chi.RouteContext(ctx).RoutePattern()
			if route == "" {
				route = r.URL.Path
			}

			span.SetAttributes(
				attribute.String("http.route", route),
				attribute.Int("http.status_code", status),
			)
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			} else {
				span.SetStatus(codes.Ok, "")
			}
			span.End()

			lat := time.Since(start).Seconds()
			reqs.Add(1,
				observability.L("method", r.Method),
				observability.L("route", route),
				observability.L("status", strconv.Itoa(status)),
			)
			dur.Observe(lat,
				observability.L("method", r.Method),
				observability.L("route", route),
			)

			reqLog.Info("http_request",
				observability.F("route", route),
				observability.F("status", status),
				observability.F("latency_seconds", lat),
				observability.F("bytes", ww.BytesWritten()),
			)
		})
	}
}
