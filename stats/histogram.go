package stats

import (
	"fmt"
	"io"
	"sort"
	"sync/atomic"
)

// Histogram tracks cumulative counts below each of a fixed set of
// boundaries ("le" buckets in Prometheus parlance), plus a running sum
// and total count, matching api/stats.cpp's Histogram/Percentile shape.
type Histogram struct {
	boundaries []float64 // ascending, does not include +Inf
	buckets    []atomic.Uint64
	sum        atomic.Uint64 // float64 bits
	count      atomic.Uint64
}

// NewHistogram creates a root Histogram metric with the given bucket
// boundaries (ascending, exclusive of +Inf, which is always the final
// implicit bucket) and label dimension names.
func NewHistogram(name string, boundaries []float64, labelNames ...string) *Metric {
	sorted := append([]float64(nil), boundaries...)
	sort.Float64s(sorted)
	return register(&Metric{
		name:       name,
		labelNames: labelNames,
		subs:       make(map[string]*Metric),
		kind:       kindHistogram,
		leaf:       newHistogramLeaf(sorted),
	})
}

func newHistogramLeaf(boundaries []float64) *Histogram {
	return &Histogram{
		boundaries: boundaries,
		buckets:    make([]atomic.Uint64, len(boundaries)),
	}
}

// Histogram returns the Histogram leaf this Metric node wraps.
func (m *Metric) Histogram() *Histogram {
	h, ok := m.leaf.(*Histogram)
	if !ok {
		panic(fmt.Sprintf("stats: %s is not a histogram", m.name))
	}
	return h
}

// Observe records one sample. The sample is counted into every bucket
// whose boundary is >= v (cumulative, per Prometheus convention).
func (h *Histogram) Observe(v float64) {
	for i, b := range h.boundaries {
		if v <= b {
			h.buckets[i].Add(1)
		}
	}
	h.count.Add(1)
	for {
		old := h.sum.Load()
		nv := float64fromBits(old) + v
		if h.sum.CompareAndSwap(old, float64bits(nv)) {
			return
		}
	}
}

// Count returns the total number of observations.
func (h *Histogram) Count() uint64 { return h.count.Load() }

// Sum returns the running sum of all observed values.
func (h *Histogram) Sum() float64 { return float64fromBits(h.sum.Load()) }

// BucketCount returns the cumulative count for boundaries[i].
func (h *Histogram) BucketCount(i int) uint64 { return h.buckets[i].Load() }

func (h *Histogram) writePrometheus(w io.Writer, name string, labelNames, labelVals []string) {
	for i, b := range h.boundaries {
		bucketLabelNames := append(append([]string(nil), labelNames...), "le")
		bucketLabelVals := append(append([]string(nil), labelVals...), formatValue(b))
		fmt.Fprintf(w, "%s_bucket%s %d\n", name, formatLabels(bucketLabelNames, bucketLabelVals), h.buckets[i].Load())
	}
	infLabelNames := append(append([]string(nil), labelNames...), "le")
	infLabelVals := append(append([]string(nil), labelVals...), "+Inf")
	fmt.Fprintf(w, "%s_bucket%s %d\n", name, formatLabels(infLabelNames, infLabelVals), h.count.Load())

	fmt.Fprintf(w, "%s_sum%s %s\n", name, formatLabels(labelNames, labelVals), formatValue(h.Sum()))
	fmt.Fprintf(w, "%s_count%s %d\n", name, formatLabels(labelNames, labelVals), h.count.Load())
}
