// Package stats implements the metric tree described by the Prometheus
// text exposition format: named, optionally labeled Counter, Gauge and
// Histogram values organized in a label-dimension tree, each exportable
// as Prometheus text and, for embedding programs that run a real
// collector, as a prometheus.Collector.
package stats

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Metric is the common tree node: a named metric with a fixed ordered
// list of label dimensions and a map of label-value tuples to the
// sub-metric actually holding values for that combination.
type Metric struct {
	name       string
	labelNames []string

	mu       sync.RWMutex
	subs     map[string]*Metric // keyed by joined label values
	labelVal []string           // this node's own label values, if any

	kind metricKind
	leaf metricLeaf
}

type metricKind int

const (
	kindNone metricKind = iota
	kindCounter
	kindGauge
	kindHistogram
)

type metricLeaf interface {
	writePrometheus(w io.Writer, name string, labelNames, labelVals []string)
}

// WithLabels returns (creating if necessary) the sub-metric for the given
// label values, which must match the order of labelNames this Metric was
// constructed with.
func (m *Metric) WithLabels(values ...string) *Metric {
	if len(values) != len(m.labelNames) {
		panic(fmt.Sprintf("stats: %s expects %d label values, got %d", m.name, len(m.labelNames), len(values)))
	}
	key := strings.Join(values, "\x00")

	m.mu.RLock()
	sub, ok := m.subs[key]
	m.mu.RUnlock()
	if ok {
		return sub
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok = m.subs[key]; ok {
		return sub
	}
	sub = &Metric{name: m.name, kind: m.kind, labelVal: append([]string(nil), values...)}
	if h, ok := m.leaf.(*Histogram); ok {
		sub.leaf = newHistogramLeaf(h.boundaries)
	} else {
		sub.leaf = newLeaf(m.kind)
	}
	m.subs[key] = sub
	return sub
}

func newLeaf(kind metricKind) metricLeaf {
	switch kind {
	case kindCounter:
		return &Counter{}
	case kindGauge:
		return &Gauge{}
	default:
		return nil
	}
}

// GetSub returns the sub-metric registered for values, or nil if none has
// been created yet (unlike WithLabels, GetSub never creates one).
func (m *Metric) GetSub(values ...string) *Metric {
	key := strings.Join(values, "\x00")
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.subs[key]
}

// DumpTree calls fn for every leaf metric reachable from m (including m
// itself if it has no label dimensions), passing the full label path.
func (m *Metric) DumpTree(fn func(labelVals []string, leaf *Metric)) {
	if len(m.labelNames) == 0 {
		if m.leaf != nil {
			fn(m.labelVal, m)
		}
	}
	m.mu.RLock()
	keys := make([]string, 0, len(m.subs))
	for k := range m.subs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	subs := make([]*Metric, 0, len(keys))
	for _, k := range keys {
		subs = append(subs, m.subs[k])
	}
	m.mu.RUnlock()

	for _, sub := range subs {
		sub.DumpTree(fn)
	}
}

// ToPrometheus writes every leaf under m in Prometheus text exposition
// format: one line per label combination,
// `name{label="value",...} number\n`.
func (m *Metric) ToPrometheus(w io.Writer) error {
	var werr error
	m.DumpTree(func(labelVals []string, leaf *Metric) {
		if werr != nil || leaf.leaf == nil {
			return
		}
		leaf.leaf.writePrometheus(w, m.name, m.labelNames, labelVals)
	})
	return werr
}

func formatLabels(names, vals []string) string {
	if len(names) == 0 {
		return ""
	}
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = fmt.Sprintf("%s=%q", n, vals[i])
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// formatValue renders a float64 with the shortest decimal representation
// that round-trips exactly, capped at the spec's 17 significant digits
// (Go's shortest-round-trip formatter never needs more than that for a
// float64).
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
