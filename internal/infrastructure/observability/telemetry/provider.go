// Package telemetry assembles the Telemetry provider handed to services.
// All metric vectors are declared here, once, with their label sets;
// application code must never instantiate instruments itself.
package telemetry

import (
	"github.com/calico-commerce/storefront/internal/infrastructure/observability/prometrics"
	"github.com/calico-commerce/storefront/internal/observability"
)

type metricSpec struct {
	help    string
	labels  []string
	buckets []float64
}

var counterSpecs = map[observability.MetricKey]metricSpec{
	observability.MUsecaseRequests: {
		help:   "Total number of use case invocations.",
		labels: []string{"use_case", "outcome"},
	},
	observability.MHTTPRequests: {
		help:   "Total number of HTTP requests.",
		labels: []string{"method", "route", "status"},
	},
	observability.MStockConflicts: {
		help:   "Checkout transactions aborted by a lost stock race.",
		labels: []string{"use_case"},
	},
	observability.MWebhookEvents: {
		help:   "Payment provider webhook events by type and disposition.",
		labels: []string{"event_type", "disposition"},
	},
	observability.MEventPublishFailures: {
		help:   "Domain event publish failures.",
		labels: []string{"event"},
	},
	observability.MCartsSwept: {
		help:   "Expired carts removed by the background sweeper.",
		labels: []string{},
	},
}

var histogramSpecs = map[observability.MetricKey]metricSpec{
	observability.MUsecaseDuration: {
		help:   "Duration of use case execution in seconds.",
		labels: []string{"use_case"},
	},
	observability.MHTTPRequestDuration: {
		help:   "Duration of HTTP request handling in seconds.",
		labels: []string{"method", "route"},
	},
}

type provider struct {
	tracer     observability.Tracer
	logger     observability.Logger
	counters   map[observability.MetricKey]observability.Counter
	histograms map[observability.MetricKey]observability.Histogram
}

// New pre-registers every known instrument on the registry and returns the
// assembled Telemetry. Nil tracer/logger fall back to no-ops.
func New(tracer observability.Tracer, logger observability.Logger, reg *prometrics.Registry) observability.Telemetry {
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	counters := make(map[observability.MetricKey]observability.Counter, len(counterSpecs))
	histograms := make(map[observability.MetricKey]observability.Histogram, len(histogramSpecs))
	if reg != nil {
		for key, spec := range counterSpecs {
			counters[key] = reg.Counter(string(key), spec.help, spec.labels...)
		}
		for key, spec := range histogramSpecs {
			histograms[key] = reg.Histogram(string(key), spec.help, spec.buckets, spec.labels...)
		}
	}

	return &provider{
		tracer:     tracer,
		logger:     logger,
		counters:   counters,
		histograms: histograms,
	}
}

func (p *provider) Tracer() observability.Tracer { return p.tracer }
func (p *provider) Logger() observability.Logger { return p.logger }

func (p *provider) Counter(key observability.MetricKey) observability.Counter {
	if c, ok := p.counters[key]; ok {
		return c
	}
	return nopCounter{}
}

func (p *provider) Histogram(key observability.MetricKey) observability.Histogram {
	if h, ok := p.histograms[key]; ok {
		return h
	}
	return nopHistogram{}
}

type nopCounter struct{}

func (nopCounter) Add(float64, ...observability.Label) {}

type nopHistogram struct{}

func (nopHistogram) Observe(float64, ...observability.Label) {}
