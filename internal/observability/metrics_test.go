package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewMetricsForTestingIsIsolated(t *testing.T) {
	a := NewMetricsForTesting()
	b := NewMetricsForTesting()

	a.Signals.WithLabelValues("london", "strong").Inc()
	a.Signals.WithLabelValues("london", "strong").Inc()
	a.ResolveDeferred.Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(a.Signals.WithLabelValues("london", "strong")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.ResolveDeferred))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.ResolveDeferred))
}

func TestCollectorsCoverEveryField(t *testing.T) {
	m := NewMetricsForTesting()
	assert.Len(t, m.collectors(), 13)
}
