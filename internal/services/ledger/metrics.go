package ledger

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector records ledger activity. A Noop implementation keeps
// tests and minimal deployments free of a metrics backend.
type MetricsCollector interface {
	RecordTransition(event Event, result string)
	ObserveTransitionDuration(event Event, d time.Duration)
	RecordEscrowTerminal(escrowStatus string)
}

// NoopMetricsCollector discards all measurements.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordTransition(Event, string)                {}
func (NoopMetricsCollector) ObserveTransitionDuration(Event, time.Duration) {}
func (NoopMetricsCollector) RecordEscrowTerminal(string)                   {}

// PrometheusCollector exports ledger metrics via client_golang.
type PrometheusCollector struct {
	transitions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	terminals   *prometheus.CounterVec
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zone4_ledger_transitions_total",
			Help: "Ledger transition attempts by event and result.",
		}, []string{"event", "result"}),
		duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zone4_ledger_transition_duration_seconds",
			Help:    "Ledger transition latency by event.",
			Buckets: prometheus.DefBuckets,
		}, []string{"event"}),
		terminals: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zone4_ledger_escrow_terminal_total",
			Help: "Escrow terminal settlements by escrow status.",
		}, []string{"escrow_status"}),
	}
}

func (c *PrometheusCollector) RecordTransition(event Event, result string) {
	c.transitions.WithLabelValues(string(event), result).Inc()
}

func (c *PrometheusCollector) ObserveTransitionDuration(event Event, d time.Duration) {
	c.duration.WithLabelValues(string(event)).Observe(d.Seconds())
}

func (c *PrometheusCollector) RecordEscrowTerminal(escrowStatus string) {
	c.terminals.WithLabelValues(escrowStatus).Inc()
}
