package stats

import (
	"io"
	"sync"
)

// defaultRegistry mirrors prometheus.DefaultRegisterer's role for this
// package's own text-format writer: metrics created with NewCounter,
// NewGauge, or NewHistogram register themselves here automatically, and
// WriteAll dumps every one of them in one call — the shape an HTTP
// /metrics handler needs.
var defaultRegistry = struct {
	mu      sync.Mutex
	metrics []*Metric
}{}

func register(m *Metric) *Metric {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	defaultRegistry.metrics = append(defaultRegistry.metrics, m)
	return m
}

// All returns every root Metric registered so far.
func All() []*Metric {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	out := make([]*Metric, len(defaultRegistry.metrics))
	copy(out, defaultRegistry.metrics)
	return out
}

// WriteAll writes the Prometheus text exposition of every registered
// metric to w.
func WriteAll(w io.Writer) error {
	for _, m := range All() {
		if err := m.ToPrometheus(w); err != nil {
			return err
		}
	}
	return nil
}
