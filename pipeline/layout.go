package pipeline

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pipeflow/pipeflow/internal/telemetry/logger"
)

var log = logger.Logger("pipeline")

// LayoutType classifies how a Layout's pipelines get their first
// Context: a Listen pipeline is driven by an Inbound, a Read pipeline by
// a file or stdin source, a Task pipeline runs on a schedule with no
// inbound, and a Named layout is only ever reached as someone else's
// sub-pipeline.
type LayoutType int

const (
	Listen LayoutType = iota
	Read
	Task
	Named
)

func (t LayoutType) String() string {
	switch t {
	case Listen:
		return "Listen"
	case Read:
		return "Read"
	case Task:
		return "Task"
	case Named:
		return "Named"
	default:
		return "Unknown"
	}
}

// Layout is a bound, reusable filter-chain template: the static, ordered
// list of filter templates a Pipeline instance is cloned from, plus a
// LIFO free list of retired Pipeline instances available for reuse.
//
// The free list is guarded by mu, so Alloc and Free may be called from
// multiple goroutines.
type Layout struct {
	Name      string
	Type      LayoutType
	Templates []Filter

	mu        sync.Mutex
	freeHead  *Pipeline
	allocated uint64 // monotonically increasing, never decremented
}

// NewLayout builds a Layout from filter templates in chain order. The
// templates are never Processed directly; Alloc clones them per run.
func NewLayout(name string, typ LayoutType, templates []Filter) *Layout {
	return &Layout{Name: name, Type: typ, Templates: templates}
}

// Allocated returns the total number of Pipeline instances ever created
// by this Layout, including ones currently on the free list. It never
// decreases — this is the testable property from the spec's pooling
// invariant.
func (l *Layout) Allocated() uint64 { return atomic.LoadUint64(&l.allocated) }

// Alloc pops a Pipeline off the free list if one is available, resetting
// its Context for inbound; otherwise it clones every filter template and
// builds a new chain, bumping Allocated().
func (l *Layout) Alloc(inbound InboundHandle) *Pipeline {
	l.mu.Lock()
	p := l.freeHead
	if p != nil {
		l.freeHead = p.nextFree
		p.nextFree = nil
	}
	l.mu.Unlock()

	if p != nil {
		p.ctx.reset(inbound)
		log.Debug("pipeline reused from free list", "layout", l.Name, "ctx", p.ctx.id)
		return p
	}

	ctx := NewContext(inbound)
	filters := make([]Filter, len(l.Templates))
	for i, tmpl := range l.Templates {
		clone := tmpl.Clone()
		if binder, ok := clone.(ContextBinder); ok {
			binder.BindContext(ctx)
		}
		filters[i] = clone
	}
	p = &Pipeline{layout: l, ctx: ctx, filters: filters}
	p.chain()

	atomic.AddUint64(&l.allocated, 1)
	log.Debug("pipeline allocated", "layout", l.Name, "ctx", ctx.id, "total", l.allocated)
	return p
}

// Free resets every filter in p and pushes it onto the free list for
// reuse by a later Alloc. Free must only be called once a Pipeline has
// fully finished its run (StreamEnd observed and propagated).
func (l *Layout) Free(p *Pipeline) {
	if p.layout != l {
		panic("pipeline freed to a layout it was not allocated from")
	}
	for _, f := range p.filters {
		f.Reset()
	}
	p.output = nil

	l.mu.Lock()
	p.nextFree = l.freeHead
	l.freeHead = p
	l.mu.Unlock()
}

// Shutdown calls Shutdown on every filter template. Shutdown is a
// graceful-stop hint; it does not forcibly recycle pipelines that are
// still running.
func (l *Layout) Shutdown() {
	for _, tmpl := range l.Templates {
		tmpl.Shutdown()
	}
}

func (l *Layout) String() string {
	return fmt.Sprintf("Layout(%s, %s, %d filters)", l.Name, l.Type, len(l.Templates))
}
