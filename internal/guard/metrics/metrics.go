package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the route guard.
type Metrics struct {
	Decisions      *prometheus.CounterVec
	CheckDuration  prometheus.Histogram
	CheckFailures  *prometheus.CounterVec
	BreakerOpen    prometheus.Gauge
	ShortCircuited prometheus.Counter
}

// New registers the guard collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certportal_guard_decisions_total",
			Help: "Route guard decisions by route family and outcome",
		}, []string{"family", "outcome"}),
		CheckDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "certportal_guard_session_check_duration_seconds",
			Help:    "Duration of the backend session check made by the route guard",
			Buckets: prometheus.DefBuckets,
		}),
		CheckFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certportal_guard_session_check_failures_total",
			Help: "Backend session checks that failed for reasons other than a rejected session",
		}, []string{"code"}),
		BreakerOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "certportal_guard_breaker_open",
			Help: "1 while the backend circuit breaker is open",
		}),
		ShortCircuited: f.NewCounter(prometheus.CounterOpts{
			Name: "certportal_guard_short_circuited_total",
			Help: "Session checks skipped because the backend circuit was open",
		}),
	}
}

func (m *Metrics) IncrementDecision(family, outcome string) {
	m.Decisions.WithLabelValues(family, outcome).Inc()
}

func (m *Metrics) ObserveCheck(d time.Duration) {
	m.CheckDuration.Observe(d.Seconds())
}

func (m *Metrics) IncrementCheckFailure(code string) {
	m.CheckFailures.WithLabelValues(code).Inc()
}

func (m *Metrics) SetBreakerOpen(open bool) {
	if open {
		m.BreakerOpen.Set(1)
		return
	}
	m.BreakerOpen.Set(0)
}

func (m *Metrics) IncrementShortCircuited() {
	m.ShortCircuited.Inc()
}
