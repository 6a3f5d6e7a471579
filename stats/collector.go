package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector adapts a Metric tree to prometheus.Collector, so an embedding
// program can register it with a real prometheus.Registry instead of (or
// in addition to) scraping ToPrometheus's hand-rolled text output. Both
// paths read the same underlying Counter/Gauge/Histogram values.
type Collector struct {
	metric *Metric
	desc   *prometheus.Desc
}

// NewCollector wraps m for registration with a prometheus.Registry.
func NewCollector(m *Metric) *Collector {
	return &Collector{
		metric: m,
		desc:   prometheus.NewDesc(m.name, m.name, m.labelNames, nil),
	}
}

var _ prometheus.Collector = (*Collector)(nil)

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.metric.DumpTree(func(labelVals []string, leaf *Metric) {
		switch leaf.kind {
		case kindCounter:
			ch <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue, leaf.leaf.(*Counter).Value(), labelVals...)
		case kindGauge:
			ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, leaf.leaf.(*Gauge).Value(), labelVals...)
		case kindHistogram:
			h := leaf.leaf.(*Histogram)
			buckets := make(map[float64]uint64, len(h.boundaries))
			for i, b := range h.boundaries {
				buckets[b] = h.BucketCount(i)
			}
			m, err := prometheus.NewConstHistogram(c.desc, h.Count(), h.Sum(), buckets, labelVals...)
			if err == nil {
				ch <- m
			}
		}
	})
}
