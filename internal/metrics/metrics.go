// Package metrics exposes prometheus counters for custody operations.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	SalesTotal        *prometheus.CounterVec
	SaleRejections    *prometheus.CounterVec
	RequestsCreated   *prometheus.CounterVec
	RequestsProcessed *prometheus.CounterVec
	Compensations     *prometheus.CounterVec
	Conflicts         prometheus.Counter
	EventsDropped     prometheus.Counter
}

func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SalesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_total",
			Help:      "Sales recorded, by payment method.",
		}, []string{"method"}),
		SaleRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sale_rejections_total",
			Help:      "Sales rejected, by reason.",
		}, []string{"reason"}),
		RequestsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_created_total",
			Help:      "Workflow requests created, by kind.",
		}, []string{"kind"}),
		RequestsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_processed_total",
			Help:      "Workflow requests processed, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		Compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_compensations_total",
			Help:      "Compensating restocks after a failed assignment, by result.",
		}, []string{"result"}),
		Conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "concurrency_conflicts_total",
			Help:      "Operations aborted by a lock timeout or version mismatch.",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Domain events dropped because the queue was full.",
		}),
	}
	m.registry.MustRegister(
		m.SalesTotal, m.SaleRejections, m.RequestsCreated, m.RequestsProcessed,
		m.Compensations, m.Conflicts, m.EventsDropped,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Sale(method string) {
	if m != nil {
		m.SalesTotal.WithLabelValues(method).Inc()
	}
}

func (m *Metrics) SaleRejected(reason string) {
	if m != nil {
		m.SaleRejections.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) RequestCreated(kind string) {
	if m != nil {
		m.RequestsCreated.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) RequestProcessed(kind, outcome string) {
	if m != nil {
		m.RequestsProcessed.WithLabelValues(kind, outcome).Inc()
	}
}

func (m *Metrics) Compensation(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.Compensations.WithLabelValues(result).Inc()
}

func (m *Metrics) Conflict() {
	if m != nil {
		m.Conflicts.Inc()
	}
}

func (m *Metrics) EventDropped() {
	if m != nil {
		m.EventsDropped.Inc()
	}
}
