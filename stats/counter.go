package stats

import (
	"fmt"
	"io"
	"sync/atomic"
)

// Counter is a monotonically increasing value.
type Counter struct {
	value atomic.Uint64 // bit pattern of a float64, via math.Float64bits
}

// NewCounter creates a root Counter metric with the given label
// dimension names (none if the counter is never broken down by label).
func NewCounter(name string, labelNames ...string) *Metric {
	return register(&Metric{
		name:       name,
		labelNames: labelNames,
		subs:       make(map[string]*Metric),
		kind:       kindCounter,
		leaf:       &Counter{},
	})
}

// Counter returns the Counter leaf this Metric node wraps, panicking if
// this node was not constructed as a counter metric.
func (m *Metric) Counter() *Counter {
	c, ok := m.leaf.(*Counter)
	if !ok {
		panic(fmt.Sprintf("stats: %s is not a counter", m.name))
	}
	return c
}

// Add increases the counter by delta, which must be non-negative.
func (c *Counter) Add(delta float64) {
	if delta < 0 {
		panic("stats: counter delta must be non-negative")
	}
	for {
		old := c.value.Load()
		nv := float64fromBits(old) + delta
		if c.value.CompareAndSwap(old, float64bits(nv)) {
			return
		}
	}
}

// Inc increases the counter by 1.
func (c *Counter) Inc() { c.Add(1) }

// Value returns the counter's current value.
func (c *Counter) Value() float64 { return float64fromBits(c.value.Load()) }

func (c *Counter) writePrometheus(w io.Writer, name string, labelNames, labelVals []string) {
	fmt.Fprintf(w, "%s%s %s\n", name, formatLabels(labelNames, labelVals), formatValue(c.Value()))
}
