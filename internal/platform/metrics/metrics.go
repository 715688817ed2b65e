package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the form service.
type Metrics struct {
	FormsRendered        *prometheus.CounterVec
	FormSubmissions      *prometheus.CounterVec
	NotificationDuration prometheus.Histogram
	CatalogReloads       prometheus.Counter
}

// New creates all Prometheus metrics and registers them on reg. Tests pass a
// fresh registry so suites never collide on registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FormsRendered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "form_service_forms_rendered_total",
			Help: "Total number of form render requests by form key",
		}, []string{"form"}),
		FormSubmissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "form_service_submissions_total",
			Help: "Total number of form submissions by outcome",
		}, []string{"outcome"}),
		NotificationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "form_service_notification_duration_seconds",
			Help:    "Latency of downstream workflow notifications",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		CatalogReloads: factory.NewCounter(prometheus.CounterOpts{
			Name: "form_service_catalog_reloads_total",
			Help: "Total number of catalog reloads",
		}),
	}
}
