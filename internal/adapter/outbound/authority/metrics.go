package authority

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics recorded by the authority client.
type Metrics struct {
	RequestDuration   *prometheus.HistogramVec
	TransportFailures *prometheus.CounterVec
}

// NewMetrics creates and registers the client metrics with the given
// registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "kora",
				Name:      "authority_request_duration_seconds",
				Help:      "Authority round-trip duration in seconds, including retries",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"capability"},
		),
		TransportFailures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kora",
				Name:      "authority_transport_failures_total",
				Help:      "Authority requests that failed after all attempts",
			},
			[]string{"kind"}, // kind=unreachable/timeout/http_error/malformed
		),
	}
}

func (m *Metrics) observe(op string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(op).Observe(seconds)
}

func (m *Metrics) failure(kind string) {
	if m == nil {
		return
	}
	m.TransportFailures.WithLabelValues(kind).Inc()
}
