// Package pipeline implements the filter chain contract, the per-run
// Context, and the free-list pooled allocation of Pipeline instances from
// a PipelineLayout.
package pipeline

import (
	"io"

	"github.com/pipeflow/pipeflow/pipeline/event"
)

// Filter is implemented by every stage of a pipeline. A Filter is first
// built once as a template (bound to static configuration) and then
// Clone()d for every Pipeline instance allocated from its Layout; Clone
// must not share mutable per-run state with the template.
type Filter interface {
	// Process handles one event. It may forward zero or more events
	// downstream via Chain's registered output, synchronously.
	Process(evt event.Event)

	// Reset clears per-run state so the filter can be reused by the next
	// Pipeline popped from the free list. Called after the previous run
	// has fully completed (both StreamEnd seen and pipeline recycled).
	Reset()

	// Clone returns a fresh copy of the filter for a new Pipeline
	// instance, carrying over the filter's static configuration only.
	Clone() Filter

	// Shutdown is a graceful-stop hint delivered to every filter
	// template when its owning Layout is torn down, and to a running
	// Pipeline's cloned filters by Pipeline.Shutdown. It does not
	// necessarily run synchronously with in-flight pipelines.
	Shutdown()

	// Chain registers the Input that receives this filter's output
	// events. Process implementations call it directly, synchronously.
	Chain(next event.Input)

	// Dump writes a one-line human-readable description of the filter's
	// static configuration, for pipeline introspection / debugging.
	Dump(w io.Writer)
}

// ContextBinder is implemented by filters that need the owning
// Pipeline's Context (e.g. to resolve a session multiplexing key). If a
// cloned Filter implements it, Layout.Alloc calls BindContext once,
// immediately after Clone, before the Pipeline's first event.
type ContextBinder interface {
	BindContext(ctx *Context)
}

// SubPipelineHost is implemented by filters that can spawn nested
// pipelines (e.g. a protocol demux filter allocating one sub-pipeline per
// parsed message). Most filters don't need it.
type SubPipelineHost interface {
	// SubPipeline allocates (or, if reuse is true and one is idle,
	// reuses) a sub-pipeline at the given layout index, wiring its
	// output to out, and returns it bound to argv.
	SubPipeline(index int, reuse bool, out event.Input, argv []any) *Pipeline
}

// BaseFilter provides no-op implementations of the optional parts of the
// Filter contract (Reset, Shutdown, Dump) so concrete filters can embed it
// and only implement what they need, and a Chain/output helper used by
// nearly every filter.
type BaseFilter struct {
	output event.Input
}

func (f *BaseFilter) Chain(next event.Input) { f.output = next }

func (f *BaseFilter) Emit(evt event.Event) {
	if f.output != nil {
		f.output(evt)
	}
}

func (f *BaseFilter) Reset()          {}
func (f *BaseFilter) Shutdown()       {}
func (f *BaseFilter) Dump(io.Writer) {}
