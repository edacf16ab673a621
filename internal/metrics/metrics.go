// Package metrics records resolver decisions as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/uniplat/mpresolve/internal/resolver"
)

const namespace = "mpresolve"

// Collector implements resolver.Observer. Each collector owns its registry
// so several builds in one process don't fight over global metric names.
type Collector struct {
	registry  *prometheus.Registry
	decisions *prometheus.CounterVec
	probes    prometheus.Histogram
}

var _ resolver.Observer = (*Collector)(nil)

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Requests seen by the multi-platform resolver, by decision",
			},
			[]string{"decision"},
		),
		probes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "probes",
				Help:      "File system existence checks per candidate search",
				Buckets:   []float64{1, 2, 4, 8, 16, 32},
			},
		),
	}
	c.registry.MustRegister(c.decisions, c.probes)

	// Pre-create every label so dashboards see zeros instead of gaps
	for _, kind := range resolver.AllDecisionKinds {
		c.decisions.WithLabelValues(kind.String())
	}
	return c
}

func (c *Collector) Observe(d resolver.Decision) {
	c.decisions.WithLabelValues(d.Kind.String()).Inc()
	if d.Probes > 0 {
		c.probes.Observe(float64(d.Probes))
	}
}

// Handler serves the collector's registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Count returns the current value of the decision counter for one kind
func (c *Collector) Count(kind resolver.DecisionKind) float64 {
	return counterValue(c.decisions.WithLabelValues(kind.String()))
}
