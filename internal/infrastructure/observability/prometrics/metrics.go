// Package prometrics adapts prometheus/client_golang to the metric ports.
package prometrics

import (
	"sync"

	"github.com/calico-commerce/storefront/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
)

// Registry registers metric vectors once and hands out port-shaped handles.
type Registry struct {
	namespace  string
	registerer prometheus.Registerer

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

func NewRegistry(namespace string, reg prometheus.Registerer) *Registry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Registry{
		namespace:  namespace,
		registerer: reg,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

func (r *Registry) Counter(name, help string, labelKeys ...string) observability.Counter {
	r.mu.Lock()
	defer r.mu.Unlock()

	cv, ok := r.counters[name]
	if !ok {
		cv = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: r.namespace, Name: name, Help: help,
		}, labelKeys)
		r.registerer.MustRegister(cv)
		r.counters[name] = cv
	}
	return &counter{v: cv}
}

func (r *Registry) Histogram(name, help string, buckets []float64, labelKeys ...string) observability.Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()

	hv, ok := r.histograms[name]
	if !ok {
		if len(buckets) == 0 {
			buckets = prometheus.DefBuckets
		}
		hv = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: r.namespace, Name: name, Help: help, Buckets: buckets,
		}, labelKeys)
		r.registerer.MustRegister(hv)
		r.histograms[name] = hv
	}
	return &histogram{v: hv}
}

type counter struct{ v *prometheus.CounterVec }

func (c *counter) Add(d float64, labels ...observability.Label) {
	c.v.With(labelMap(labels)).Add(d)
}

type histogram struct{ v *prometheus.HistogramVec }

func (h *histogram) Observe(v float64, labels ...observability.Label) {
	h.v.With(labelMap(labels)).Observe(v)
}

func labelMap(ls []observability.Label) prometheus.Labels {
	m := make(prometheus.Labels, len(ls))
	for _, l := range ls {
		m[l.Key] = l.Value
	}
	return m
}
