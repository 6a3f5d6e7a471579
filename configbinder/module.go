package configbinder

import (
	"fmt"

	"github.com/pipeflow/pipeflow/pipeline"
)

// jointResolver builds the real pipeline.Filter for a joint filter once
// its To() target has been bound to a concrete *pipeline.Layout. Binder
// supplies the Layout in a second pass, after every Pipeline(...)
// declaration has been registered, so forward references (a pipeline
// naming one declared later in the script) resolve correctly.
type jointResolver func(sub *pipeline.Layout) (pipeline.Filter, error)

type filterSlot struct {
	verb     string
	filter   pipeline.Filter // set directly for leaf filters
	resolver jointResolver   // set instead for joint filters, until To() target resolves
	target   string
}

// Module is the fluent, per-pipeline configurator a Declarations build
// callback receives. Each call appends one filter template to the
// pipeline under construction; joint filters (those that open a
// sub-pipeline) must be closed with exactly one To before the module can
// be finalized.
type Module struct {
	name    string
	slots   []*filterSlot
	pending *filterSlot // the joint slot awaiting its To(), nil otherwise
	errs    []error
}

func newModule(name string) *Module {
	return &Module{name: name}
}

// Use appends an already-constructed leaf filter template to the
// pipeline (one with no sub-pipeline of its own — print, pack, split,
// and the rest of the non-joint verb set all go through here).
func (m *Module) Use(verb string, f pipeline.Filter) *Module {
	if m.pending != nil {
		m.errs = append(m.errs, fmt.Errorf("configbinder: %q appended before %q's To()", verb, m.pending.verb))
		return m
	}
	m.slots = append(m.slots, &filterSlot{verb: verb, filter: f})
	return m
}

// UseJoint appends a filter whose template can't be fully built until its
// sub-pipeline target is known; resolve is called with that target's
// Layout once To names it.
func (m *Module) UseJoint(verb string, resolve jointResolver) *Module {
	if m.pending != nil {
		m.errs = append(m.errs, fmt.Errorf("configbinder: %q appended before %q's To()", verb, m.pending.verb))
		return m
	}
	slot := &filterSlot{verb: verb, resolver: resolve}
	m.slots = append(m.slots, slot)
	m.pending = slot
	return m
}

// To closes the most recent joint filter, linking it to a named
// pipeline. name must resolve to a Pipeline(...) declaration; an
// unresolved name is a bind-time error reported by Bind, not here, since
// forward references are legal.
func (m *Module) To(name string) *Module {
	if m.pending == nil {
		m.errs = append(m.errs, fmt.Errorf("configbinder: To(%q) with no open joint filter", name))
		return m
	}
	m.pending.target = name
	m.pending = nil
	return m
}

// finish checks the module is well-formed (no filter left without a
// closing To, no append outside an open pipeline) without yet resolving
// joint targets — Binder does that once every named pipeline exists.
func (m *Module) finish() ([]*filterSlot, error) {
	if m.pending != nil {
		return nil, fmt.Errorf("configbinder: pipeline %q: joint filter %q has no To()", m.name, m.pending.verb)
	}
	if len(m.errs) > 0 {
		return nil, m.errs[0]
	}
	if len(m.slots) == 0 {
		return nil, fmt.Errorf("configbinder: pipeline %q: empty pipeline", m.name)
	}
	return m.slots, nil
}
