package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"certportal/internal/session/initializer"
)

// Metrics holds Prometheus collectors for the client session lifecycle.
type Metrics struct {
	InitializerOutcomes *prometheus.CounterVec
	ReconcileDuration   prometheus.Histogram
	Logouts             *prometheus.CounterVec
}

// New registers the session collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		InitializerOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certportal_session_initializer_outcomes_total",
			Help: "Session initializer evaluations by outcome",
		}, []string{"outcome"}),
		ReconcileDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "certportal_session_reconcile_duration_seconds",
			Help:    "Duration of the current-user reconciliation call",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		Logouts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certportal_session_logouts_total",
			Help: "User-initiated logouts by server revocation result",
		}, []string{"revoke"}),
	}
}

// Observe implements initializer.Recorder.
func (m *Metrics) Observe(outcome initializer.Outcome) {
	m.InitializerOutcomes.WithLabelValues(string(outcome)).Inc()
}

// ObserveDuration implements initializer.Recorder.
func (m *Metrics) ObserveDuration(d time.Duration) {
	m.ReconcileDuration.Observe(d.Seconds())
}

// IncrementLogout counts a logout; revoked reports whether the server call succeeded.
func (m *Metrics) IncrementLogout(revoked bool) {
	label := "ok"
	if !revoked {
		label = "failed"
	}
	m.Logouts.WithLabelValues(label).Inc()
}

var _ initializer.Recorder = (*Metrics)(nil)
