package pipeline

import (
	"github.com/pipeflow/pipeflow/pipeline/event"
)

// Pipeline is one run of a Layout's filter chain: a cloned, chained copy
// of every filter template bound to a Context. Pipelines are allocated
// from and returned to their Layout's free list; they are never garbage
// collected individually under steady load.
type Pipeline struct {
	layout   *Layout
	ctx      *Context
	filters  []Filter
	output   event.Input
	nextFree *Pipeline

	shutdownOnce bool
}

// Context returns the run's Context.
func (p *Pipeline) Context() *Context { return p.ctx }

// Layout returns the Layout this Pipeline was allocated from.
func (p *Pipeline) Layout() *Layout { return p.layout }

// SetOutput wires the final filter's (or, if there are no filters, the
// Pipeline's own input) output to out.
func (p *Pipeline) SetOutput(out event.Input) {
	p.output = out
	if len(p.filters) == 0 {
		return
	}
	p.filters[len(p.filters)-1].Chain(out)
}

// chain wires every filter's output to the next filter's Process, and the
// last filter's output to whatever SetOutput supplies later.
func (p *Pipeline) chain() {
	for i := 0; i < len(p.filters)-1; i++ {
		next := p.filters[i+1]
		p.filters[i].Chain(next.Process)
	}
}

// Input returns the entry point events should be fed into: the first
// filter's Process, or the pipeline's own output if it has no filters.
func (p *Pipeline) Input() event.Input {
	if len(p.filters) == 0 {
		return p.forwardToOutput
	}
	return p.filters[0].Process
}

func (p *Pipeline) forwardToOutput(evt event.Event) {
	if p.output != nil {
		p.output(evt)
	}
}

// OnEvent feeds one event into the pipeline's filter chain.
func (p *Pipeline) OnEvent(evt event.Event) {
	p.Input()(evt)
	if se, ok := event.IsStreamEnd(evt); ok && se.Error != event.NoError {
		p.ctx.SetErr(streamEndErr{se.Error})
	}
}

// Shutdown propagates a graceful-stop hint to every filter in this run
// (not the Layout's templates — see Layout.Shutdown for that).
func (p *Pipeline) Shutdown() {
	if p.shutdownOnce {
		return
	}
	p.shutdownOnce = true
	for _, f := range p.filters {
		f.Shutdown()
	}
}

// Recycle resets every filter and returns the Pipeline to its Layout's
// free list. Call only after StreamEnd has been fully observed.
func (p *Pipeline) Recycle() {
	p.shutdownOnce = false
	p.layout.Free(p)
}

type streamEndErr struct {
	kind event.ErrorKind
}

func (e streamEndErr) Error() string { return "stream ended: " + e.kind.String() }
