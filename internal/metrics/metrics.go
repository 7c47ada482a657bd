package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeSuccess    = "success"
	OutcomeInvalid    = "invalid"
	OutcomeStoreError = "store_error"
)

// Metrics holds the Prometheus collectors for subscription intake. Each
// instance owns its registry so several applications can share a process.
type Metrics struct {
	Subscriptions  *prometheus.CounterVec
	InsertDuration prometheus.Histogram
	registry       *prometheus.Registry
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		Subscriptions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "newsletter_subscriptions_total",
			Help: "Subscription requests by outcome",
		}, []string{"outcome"}),
		InsertDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "newsletter_subscription_insert_duration_seconds",
			Help:    "Time spent persisting a subscriber",
			Buckets: prometheus.DefBuckets,
		}),
		registry: registry,
	}
}

// IncrementSubscriptions is a no-op on a nil receiver.
func (m *Metrics) IncrementSubscriptions(outcome string) {
	if m == nil {
		return
	}
	m.Subscriptions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveInsertDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.InsertDuration.Observe(d.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
