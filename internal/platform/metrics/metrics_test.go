package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementPagesRendered("home")
	m.IncrementPagesRendered("home")
	m.IncrementPageFailures("admin")
	m.IncrementProxyErrors()
	m.ObserveProxyLatency(0.2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PagesRendered.WithLabelValues("home")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PageFailures.WithLabelValues("admin")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProxyErrors))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ProxyLatency))
}
