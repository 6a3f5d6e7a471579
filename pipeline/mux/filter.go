package mux

import (
	"fmt"
	"io"

	"github.com/pipeflow/pipeflow/pipeline"
	"github.com/pipeflow/pipeflow/pipeline/event"
)

// Filter is the concrete pipeline.Filter wiring a QueueMuxer into a
// filter chain: one Filter instance per pipeline run owns one upstream
// Stream, dispatched through its own QueueMuxer. The QueueMuxer's Base
// resolves the same SessionCluster as any other Filter instance sharing
// its pool and presenting the same key, so concurrently running Filters
// land their Streams on one shared Session (up to Options.MaxQueue).
// Setting MaxQueue to 1 degenerates this into the simpler non-pipelining
// "Mux" variant the original implements as a separate filter — a single
// Filter type covers both here, since the behavior differs only in that
// one admission parameter.
type Filter struct {
	pool    *SessionPool
	keyFunc KeyFunc
	options Options

	ctx    *pipeline.Context
	muxer  *QueueMuxer
	stream *Stream
	output event.Input
}

var _ pipeline.Filter = (*Filter)(nil)

// NewFilter builds a Filter template. Clone is called once per Pipeline
// allocation; the template itself is never Processed.
func NewFilter(pool *SessionPool, keyFunc KeyFunc, opts Options) *Filter {
	return &Filter{pool: pool, keyFunc: keyFunc, options: opts}
}

// BindContext must be called once, after Clone, with the owning
// Pipeline's Context — mux needs it to resolve the session key.
func (f *Filter) BindContext(ctx *pipeline.Context) { f.ctx = ctx }

func (f *Filter) Clone() pipeline.Filter {
	return &Filter{pool: f.pool, keyFunc: f.keyFunc, options: f.options}
}

func (f *Filter) Chain(next event.Input) { f.output = next }

func (f *Filter) Process(evt event.Event) {
	if f.muxer == nil {
		f.muxer = NewQueueMuxer(f.pool, f.keyFunc, f.options)
	}
	if _, ok := event.IsStreamEnd(evt); ok {
		if f.stream != nil {
			f.muxer.CloseStream(f.stream)
		}
		f.output(evt)
		return
	}
	if f.stream == nil {
		s, err := f.muxer.OpenStream(f.ctx, f.output)
		if err != nil {
			f.output(event.StreamEnd{Error: event.ConnectionAborted})
			return
		}
		f.stream = s
	}
	f.stream.OnEvent(evt)
}

func (f *Filter) Reset() {
	if f.muxer != nil {
		f.muxer.Reset()
	}
	f.stream = nil
}

func (f *Filter) Shutdown() {
	if f.muxer != nil {
		f.muxer.Shutdown()
	}
}

func (f *Filter) Dump(w io.Writer) {
	fmt.Fprintf(w, "mux(maxQueue=%d, maxMessages=%d)\n", f.options.MaxQueue, f.options.MaxMessages)
}
