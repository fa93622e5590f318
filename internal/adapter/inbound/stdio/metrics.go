package stdio

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics recorded by the stdio server.
// Pass to NewServer via WithMetrics.
type Metrics struct {
	ToolCalls    *prometheus.CounterVec
	ToolDuration *prometheus.HistogramVec
	Verdicts     *prometheus.CounterVec
}

// NewMetrics creates and registers the stdio metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ToolCalls: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kora",
				Name:      "tool_calls_total",
				Help:      "Total tool calls handled",
			},
			[]string{"tool", "outcome"}, // outcome=ok/error
		),
		ToolDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "kora",
				Name:      "tool_duration_seconds",
				Help:      "Tool call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		Verdicts: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kora",
				Name:      "spend_verdicts_total",
				Help:      "Final spend verdicts by result",
			},
			[]string{"result"}, // result=approved/denied/unavailable
		),
	}
}

func (m *Metrics) recordCall(tool string, isError bool, seconds float64) {
	if m == nil {
		return
	}
	outcome := "ok"
	if isError {
		outcome = "error"
	}
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(seconds)
}

func (m *Metrics) recordVerdict(result string) {
	if m == nil {
		return
	}
	m.Verdicts.WithLabelValues(result).Inc()
}
