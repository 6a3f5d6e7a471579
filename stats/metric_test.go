package stats

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterPrometheusFormat(t *testing.T) {
	c := NewCounter("requests_total", "method")
	c.WithLabels("GET").Counter().Add(3)
	c.WithLabels("POST").Counter().Inc()

	var buf bytes.Buffer
	require.NoError(t, c.ToPrometheus(&buf))

	out := buf.String()
	assert.Contains(t, out, `requests_total{method="GET"} 3`)
	assert.Contains(t, out, `requests_total{method="POST"} 1`)
}

func TestGaugeNoLabels(t *testing.T) {
	g := NewGauge("active_connections")
	g.WithLabels().Gauge().Set(5)
	g.WithLabels().Gauge().Add(-2)

	var buf bytes.Buffer
	require.NoError(t, g.ToPrometheus(&buf))
	assert.Contains(t, buf.String(), "active_connections 3")
}

func TestHistogramBucketsCumulative(t *testing.T) {
	h := NewHistogram("latency_seconds", []float64{0.1, 0.5, 1})
	leaf := h.WithLabels().Histogram()
	leaf.Observe(0.05)
	leaf.Observe(0.3)
	leaf.Observe(2)

	var buf bytes.Buffer
	require.NoError(t, h.ToPrometheus(&buf))
	out := buf.String()

	assert.Contains(t, out, `latency_seconds_bucket{le="0.1"} 1`)
	assert.Contains(t, out, `latency_seconds_bucket{le="0.5"} 2`)
	assert.Contains(t, out, `latency_seconds_bucket{le="1"} 2`)
	assert.Contains(t, out, `latency_seconds_bucket{le="+Inf"} 3`)
	assert.Contains(t, out, "latency_seconds_count 3")
}

func TestWithLabelsIdempotent(t *testing.T) {
	c := NewCounter("x", "a", "b")
	s1 := c.WithLabels("1", "2")
	s2 := c.WithLabels("1", "2")
	assert.Same(t, s1, s2)
}
