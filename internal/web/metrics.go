package web

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts tracker activity on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	Appends            prometheus.Counter
	ValidationFailures prometheus.Counter
	Fallbacks          prometheus.Counter
	Questions          *prometheus.CounterVec
	Requests           *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Appends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_records_appended_total",
			Help: "Test records appended and persisted.",
		}),
		ValidationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_validation_failures_total",
			Help: "Record submissions rejected by validation.",
		}),
		Fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_storage_fallbacks_total",
			Help: "Loads that fell back to the sample table.",
		}),
		Questions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_questions_total",
			Help: "Questions answered, by recognized intent.",
		}, []string{"intent"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_http_requests_total",
			Help: "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
	}
	m.registry.MustRegister(m.Appends, m.ValidationFailures, m.Fallbacks, m.Questions, m.Requests)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
