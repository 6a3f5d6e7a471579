package pipeline

import "sync/atomic"

var nextContextID atomic.Uint64

// InboundHandle is a weak, read-only handle to the Inbound connection
// (if any) that originated a pipeline run. It is an interface so
// net/listener can supply the concrete type without pipeline importing
// net/listener.
type InboundHandle interface {
	LocalAddr() string
	RemoteAddr() string
}

// Context carries the mutable, per-run state threaded through one
// Pipeline instance's filter chain: its id (for logs), an optional
// Inbound handle, user-visible variables, and the first error observed
// on this run, if any.
type Context struct {
	id      uint64
	inbound InboundHandle
	vars    map[string]any
	err     error
}

// NewContext returns a fresh Context with a new monotonic id.
func NewContext(inbound InboundHandle) *Context {
	return &Context{
		id:      nextContextID.Add(1),
		inbound: inbound,
		vars:    make(map[string]any),
	}
}

// ID returns this context's monotonically increasing id, stable for one
// run of the Pipeline it is bound to; a reused Pipeline gets a fresh id.
// It is for logs and
// diagnostics only; it carries no ordering guarantee across workers.
func (c *Context) ID() uint64 { return c.id }

// Inbound returns the originating connection handle, or nil if this
// pipeline was not driven by an Inbound (e.g. a Task pipeline).
func (c *Context) Inbound() InboundHandle { return c.inbound }

// Get reads a user-visible variable.
func (c *Context) Get(name string) (any, bool) {
	v, ok := c.vars[name]
	return v, ok
}

// Set writes a user-visible variable.
func (c *Context) Set(name string, v any) { c.vars[name] = v }

// Err returns the first error recorded on this run, if any.
func (c *Context) Err() error { return c.err }

// SetErr records err if no error has been recorded yet; subsequent calls
// are no-ops, matching "first error wins" semantics.
func (c *Context) SetErr(err error) {
	if c.err == nil {
		c.err = err
	}
}

// reset reassigns a fresh monotonic id and clears per-run variables and
// error, so the Context (and the Pipeline holding it) can be reused from
// the free list for a new run.
func (c *Context) reset(inbound InboundHandle) {
	c.id = nextContextID.Add(1)
	c.inbound = inbound
	c.err = nil
	for k := range c.vars {
		delete(c.vars, k)
	}
}
