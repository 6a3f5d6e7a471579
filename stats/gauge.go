package stats

import (
	"fmt"
	"io"
	"sync/atomic"
)

// Gauge is a value that can go up or down.
type Gauge struct {
	value atomic.Uint64
}

// NewGauge creates a root Gauge metric.
func NewGauge(name string, labelNames ...string) *Metric {
	return register(&Metric{
		name:       name,
		labelNames: labelNames,
		subs:       make(map[string]*Metric),
		kind:       kindGauge,
		leaf:       &Gauge{},
	})
}

// Gauge returns the Gauge leaf this Metric node wraps.
func (m *Metric) Gauge() *Gauge {
	g, ok := m.leaf.(*Gauge)
	if !ok {
		panic(fmt.Sprintf("stats: %s is not a gauge", m.name))
	}
	return g
}

// Set assigns the gauge's value.
func (g *Gauge) Set(v float64) { g.value.Store(float64bits(v)) }

// Add adds delta (which may be negative) to the gauge.
func (g *Gauge) Add(delta float64) {
	for {
		old := g.value.Load()
		nv := float64fromBits(old) + delta
		if g.value.CompareAndSwap(old, float64bits(nv)) {
			return
		}
	}
}

// Value returns the gauge's current value.
func (g *Gauge) Value() float64 { return float64fromBits(g.value.Load()) }

func (g *Gauge) writePrometheus(w io.Writer, name string, labelNames, labelVals []string) {
	fmt.Fprintf(w, "%s%s %s\n", name, formatLabels(labelNames, labelVals), formatValue(g.Value()))
}
