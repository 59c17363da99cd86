package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the Prometheus instruments used by the relay.
type Metrics struct {
	WebhookEvents     *prometheus.CounterVec
	Completions       *prometheus.CounterVec
	LoadingTriggers   *prometheus.CounterVec
	CompletionLatency prometheus.Histogram
}

// NewMetrics registers the relay instruments on reg. Tests pass a fresh
// registry so parallel packages never collide.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		WebhookEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Inbound webhook requests by result.",
		}, []string{"result"}),
		Completions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Completion outcomes by source of the reply text.",
		}, []string{"outcome"}),
		LoadingTriggers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loading_triggers_total",
			Help:      "Loading indicator calls by result.",
		}, []string{"result"}),
		CompletionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_latency_seconds",
			Help:      "Latency of successful model completions.",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 15, 25},
		}),
	}
}

// Handler serves the default registry at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
