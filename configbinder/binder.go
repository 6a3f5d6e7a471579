package configbinder

import (
	"fmt"

	"github.com/pipeflow/pipeflow/net/listener"
	"github.com/pipeflow/pipeflow/pipeline"
	"github.com/pipeflow/pipeflow/pipeline/event"
	"github.com/pipeflow/pipeflow/pipeline/filters/replay"
	"github.com/pipeflow/pipeflow/pipeline/mux"
)

// Bound is everything Bind produced from one script: the listeners it
// started, and every Layout it built (listen/read/task/named), keyed by
// name for the ones that have one.
type Bound struct {
	Listeners []*listener.Listener
	Layouts   map[string]*pipeline.Layout
}

// Binder resolves a Script's declarations into live Layouts (and started
// Listeners). It runs in two passes: first every named/listen/read/task
// pipeline is built assuming its leaf filters only, producing a Layout
// per declaration; second, every joint filter's To() target is resolved
// against that registry and the real filter chain is assembled. This
// lets a mux_queue or replay filter name a pipeline declared later in
// the script.
type Binder struct {
	s *Script
}

// NewBinder returns a Binder for s.
func NewBinder(s *Script) *Binder {
	return &Binder{s: s}
}

// Bind runs the full two-pass resolution described on Binder and starts
// every declared Listener. Callers should Close each returned Listener
// on shutdown.
func (b *Binder) Bind() (*Bound, error) {
	if len(b.s.bindErrors) > 0 {
		return nil, b.s.bindErrors[0]
	}
	if err := b.checkImports(); err != nil {
		return nil, err
	}

	modules := map[string]*Module{}
	layouts := map[string]*pipeline.Layout{}

	register := func(name string, kind pipeline.LayoutType, build func(*Module)) error {
		m := newModule(name)
		build(m)
		modules[name] = m
		slots, err := m.finish()
		if err != nil {
			return err
		}
		filters, err := resolveLeaf(slots)
		if err != nil {
			// Joint filters aren't resolvable yet on this pass; leave a
			// placeholder Layout to be replaced once every name exists.
			filters = nil
		}
		layouts[name] = pipeline.NewLayout(name, kind, filters)
		return nil
	}

	for _, d := range b.s.named {
		if err := register(d.name, pipeline.Named, d.build); err != nil {
			return nil, err
		}
	}
	for i, d := range b.s.listens {
		name := fmt.Sprintf("listen:%s", d.addr)
		if err := register(name, pipeline.Listen, d.build); err != nil {
			return nil, err
		}
		_ = i
	}
	for _, d := range b.s.reads {
		name := fmt.Sprintf("read:%s", d.pathname)
		if err := register(name, pipeline.Read, d.build); err != nil {
			return nil, err
		}
	}
	for i, d := range b.s.tasks {
		name := fmt.Sprintf("task:%d", i)
		if err := register(name, pipeline.Task, d.build); err != nil {
			return nil, err
		}
	}

	// Second pass: resolve every joint filter now that every name exists,
	// and rebuild the Layouts that needed it.
	for name, m := range modules {
		filters, err := resolveAll(m.slots, layouts)
		if err != nil {
			return nil, fmt.Errorf("configbinder: pipeline %q: %w", name, err)
		}
		layouts[name] = pipeline.NewLayout(name, layouts[name].Type, filters)
	}

	bound := &Bound{Layouts: layouts}
	for _, d := range b.s.listens {
		name := fmt.Sprintf("listen:%s", d.addr)
		l, err := listener.New(d.addr, layouts[name], d.opts)
		if err != nil {
			for _, started := range bound.Listeners {
				_ = started.Close()
			}
			return nil, fmt.Errorf("configbinder: listen %q: %w", d.addr, err)
		}
		log.Info("listener bound", "addr", d.addr)
		bound.Listeners = append(bound.Listeners, l)
	}

	return bound, nil
}

func (b *Binder) checkImports() error {
	for local, remote := range b.s.imports {
		ns, name := splitNamespace(remote)
		if _, ok := b.s.exports[ns][name]; !ok {
			return fmt.Errorf("configbinder: import %q -> %q: not exported by namespace %q", local, remote, ns)
		}
	}
	return nil
}

func splitNamespace(ref string) (namespace, name string) {
	for i := 0; i < len(ref); i++ {
		if ref[i] == '.' {
			return ref[:i], ref[i+1:]
		}
	}
	return "", ref
}

// resolveLeaf returns the filter chain if every slot is already a plain
// leaf filter, or an error if any joint filter is still unresolved —
// used on the first pass to special-case pipelines with no joints at
// all.
func resolveLeaf(slots []*filterSlot) ([]pipeline.Filter, error) {
	out := make([]pipeline.Filter, 0, len(slots))
	for _, s := range slots {
		if s.filter == nil {
			return nil, fmt.Errorf("unresolved joint filter %q", s.verb)
		}
		out = append(out, s.filter)
	}
	return out, nil
}

// resolveAll builds the final filter chain, calling each joint slot's
// resolver with its target's Layout.
func resolveAll(slots []*filterSlot, layouts map[string]*pipeline.Layout) ([]pipeline.Filter, error) {
	out := make([]pipeline.Filter, 0, len(slots))
	for _, s := range slots {
		if s.filter != nil {
			out = append(out, s.filter)
			continue
		}
		sub, ok := layouts[s.target]
		if !ok {
			return nil, fmt.Errorf("joint filter %q: To(%q): no such pipeline", s.verb, s.target)
		}
		f, err := s.resolver(sub)
		if err != nil {
			return nil, fmt.Errorf("joint filter %q: %w", s.verb, err)
		}
		out = append(out, f)
	}
	return out, nil
}

// MuxQueue appends a mux_queue joint filter, keyed per message by keyFunc
// and pooled with the given Options. Unlike Replay, the sub-pipeline a
// session dials into is baked into pool's Factory at construction time
// (mux.NewSessionPool(factory, ...)) rather than resolved here — Go's
// static wiring builds that factory closure before the script runs, so
// To's target name is accepted for DSL symmetry with the closed verb set
// but isn't separately dereferenced.
func (m *Module) MuxQueue(pool *mux.SessionPool, keyFunc mux.KeyFunc, opts mux.Options) *Module {
	return m.UseJoint("mux_queue", func(sub *pipeline.Layout) (pipeline.Filter, error) {
		_ = sub
		return mux.NewFilter(pool, keyFunc, opts), nil
	})
}

// Replay appends a replay joint filter. Its To() target is the
// sub-pipeline layout events are replayed into.
func (m *Module) Replay(opts replay.Options) *Module {
	return m.UseJoint("replay", func(sub *pipeline.Layout) (pipeline.Filter, error) {
		build := func(out event.Input) *pipeline.Pipeline {
			p := sub.Alloc(nil)
			p.SetOutput(out)
			return p
		}
		return replay.New(build, opts), nil
	})
}
