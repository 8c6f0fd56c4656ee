package logger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit pipeline.
type Metrics struct {
	EventsLogged    prometheus.Counter
	Flushes         prometheus.Counter
	FlushDuration   prometheus.Histogram
	PersistFailures prometheus.Counter
	PersistRetries  prometheus.Counter
	BufferSize      prometheus.Gauge
	BreakerState    prometheus.Gauge
}

// NewMetrics registers the audit metrics on the default registry. Register at
// most once per process; unit tests simply run without metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		EventsLogged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_audit_events_logged_total",
			Help: "Total number of audit events accepted into the buffer",
		}),
		Flushes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_audit_flushes_total",
			Help: "Total number of completed flush cycles",
		}),
		FlushDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "custodia_audit_flush_duration_seconds",
			Help:    "Duration of the drain-encrypt-chain-persist step",
			Buckets: prometheus.DefBuckets,
		}),
		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_audit_persist_failures_total",
			Help: "Total number of batch persistence failures after retries",
		}),
		PersistRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_audit_persist_retries_total",
			Help: "Total number of persistence retry attempts",
		}),
		BufferSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "custodia_audit_buffer_size",
			Help: "Events currently waiting in the batch buffer",
		}),
		BreakerState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "custodia_audit_breaker_state",
			Help: "Circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
	}
}

func (m *Metrics) incEventsLogged() {
	if m != nil {
		m.EventsLogged.Inc()
	}
}

func (m *Metrics) incFlushes() {
	if m != nil {
		m.Flushes.Inc()
	}
}

func (m *Metrics) observeFlushDuration(seconds float64) {
	if m != nil {
		m.FlushDuration.Observe(seconds)
	}
}

func (m *Metrics) incPersistFailures() {
	if m != nil {
		m.PersistFailures.Inc()
	}
}

func (m *Metrics) incPersistRetries() {
	if m != nil {
		m.PersistRetries.Inc()
	}
}

func (m *Metrics) setBufferSize(n int) {
	if m != nil {
		m.BufferSize.Set(float64(n))
	}
}

func (m *Metrics) setBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerState.Set(1)
	} else {
		m.BreakerState.Set(0)
	}
}
