package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the portal's page and proxy metrics.
type Metrics struct {
	PagesRendered *prometheus.CounterVec
	PageFailures  *prometheus.CounterVec
	ProxyErrors   prometheus.Counter
	ProxyLatency  prometheus.Histogram
}

// New creates and registers the portal metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PagesRendered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certportal_pages_rendered_total",
			Help: "Total number of portal pages rendered, labeled by page",
		}, []string{"page"}),
		PageFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certportal_page_render_failures_total",
			Help: "Total number of page templates that failed to render, labeled by page",
		}, []string{"page"}),
		ProxyErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "certportal_api_proxy_errors_total",
			Help: "Total number of API proxy requests that could not reach the backend",
		}),
		ProxyLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "certportal_api_proxy_latency_seconds",
			Help:    "Latency of proxied API requests in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// IncrementPagesRendered counts one rendered page.
func (m *Metrics) IncrementPagesRendered(page string) {
	m.PagesRendered.WithLabelValues(page).Inc()
}

// IncrementPageFailures counts one failed render.
func (m *Metrics) IncrementPageFailures(page string) {
	m.PageFailures.WithLabelValues(page).Inc()
}

func (m *Metrics) IncrementProxyErrors() {
	m.ProxyErrors.Inc()
}

// ObserveProxyLatency records the latency of one proxied request.
func (m *Metrics) ObserveProxyLatency(durationSeconds float64) {
	m.ProxyLatency.Observe(durationSeconds)
}
