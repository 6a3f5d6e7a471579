package main

import (
	"github.com/pipeflow/pipeflow/pipeline"
	"github.com/pipeflow/pipeflow/pipeline/event"
	"github.com/pipeflow/pipeflow/stats"
)

// echoFilter forwards every event unchanged, tracking live connections
// and total bytes echoed as it goes.
type echoFilter struct {
	pipeline.BaseFilter
	conns *stats.Gauge
	bytes *stats.Counter
	open  bool
}

func newEchoFilter(conns *stats.Gauge, bytes *stats.Counter) *echoFilter {
	return &echoFilter{conns: conns, bytes: bytes}
}

func (f *echoFilter) Clone() pipeline.Filter {
	return newEchoFilter(f.conns, f.bytes)
}

func (f *echoFilter) Process(evt event.Event) {
	switch e := evt.(type) {
	case event.StreamStart:
		f.open = true
		f.conns.Add(1)
	case event.Data:
		f.bytes.Add(float64(e.Chunks.Len()))
	case event.StreamEnd:
		if f.open {
			f.conns.Add(-1)
			f.open = false
		}
	}
	f.Emit(evt)
}

func (f *echoFilter) Reset() {
	if f.open {
		f.conns.Add(-1)
		f.open = false
	}
}
