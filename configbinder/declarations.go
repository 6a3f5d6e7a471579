// Package configbinder turns a user script's top-level declarations
// (listen, read, task, pipeline, import, export) into a bound set of
// pipeline.Layout instances, running the same integrity checks the
// original configurator ran at bind time: every joint filter must be
// followed by exactly one To, every append must happen inside an open
// pipeline, and no namespace may export the same name twice.
package configbinder

import (
	"fmt"
	"strconv"

	"github.com/pipeflow/pipeflow/internal/telemetry/logger"
	"github.com/pipeflow/pipeflow/net/listener"
	"github.com/pipeflow/pipeflow/pipeline"
)

var log = logger.Logger("configbinder")

// ScriptFunction is an opaque user callback: the binder never inspects
// or runs one, it only threads it through to the filter that asked for
// it (e.g. a task's "when" schedule, a handle_* predicate). Treating
// script values as opaque handles mirrors how the runtime stays
// agnostic to whatever embeds it.
type ScriptFunction func(ctx *pipeline.Context, argv []any) (any, error)

// Declarations is the closed set of top-level statements a configuration
// script may make. Each call registers work to be resolved by Bind; none
// of them take effect immediately.
type Declarations interface {
	// Listen binds a PipelineLayout of type Listen to addr (either a bare
	// port or "ip:port"). Bind starts one new Listener per Listen
	// declaration; an address that is already running is not rebound.
	Listen(addr string, opts listener.Options, build func(*Module)) Declarations

	// Read declares a file-reading pipeline, triggered by the host
	// program rather than a socket.
	Read(pathname string, build func(*Module)) Declarations

	// Task declares a recurring pipeline run on the given schedule.
	// when is opaque — the binder does not interpret it, it is handed to
	// whatever scheduler the host wires up.
	Task(when any, build func(*Module)) Declarations

	// Pipeline declares a named, addressable sub-pipeline template that
	// other pipelines can reach via To(name).
	Pipeline(name string, build func(*Module)) Declarations

	// Import makes the named exports of other namespaces available as
	// local bindings. An import that can't be resolved against a prior
	// Export is a bind-time error.
	Import(bindings map[string]string) Declarations

	// Export publishes values under namespace so other modules' Import
	// calls can see them. Exporting the same name twice under one
	// namespace is a bind-time error.
	Export(namespace string, values map[string]any) Declarations
}

type namedPipeline struct {
	name  string
	build func(*Module)
}

type listenDecl struct {
	addr  string
	opts  listener.Options
	build func(*Module)
}

type readDecl struct {
	pathname string
	build    func(*Module)
}

type taskDecl struct {
	when  any
	build func(*Module)
}

// Script accumulates declarations made by one configuration script. It
// implements Declarations; create one with NewScript and pass it to a
// user-supplied configuration function before calling Bind.
type Script struct {
	listens    []listenDecl
	reads      []readDecl
	tasks      []taskDecl
	named      []namedPipeline
	imports    map[string]string
	exports    map[string]map[string]any
	exportSeen map[string]map[string]bool
	bindErrors []error
}

// NewScript returns an empty set of declarations.
func NewScript() *Script {
	return &Script{
		imports:    map[string]string{},
		exports:    map[string]map[string]any{},
		exportSeen: map[string]map[string]bool{},
	}
}

func (s *Script) Listen(addr string, opts listener.Options, build func(*Module)) Declarations {
	if _, err := strconv.Atoi(addr); err == nil {
		addr = ":" + addr
	}
	s.listens = append(s.listens, listenDecl{addr: addr, opts: opts, build: build})
	return s
}

func (s *Script) Read(pathname string, build func(*Module)) Declarations {
	s.reads = append(s.reads, readDecl{pathname: pathname, build: build})
	return s
}

func (s *Script) Task(when any, build func(*Module)) Declarations {
	s.tasks = append(s.tasks, taskDecl{when: when, build: build})
	return s
}

func (s *Script) Pipeline(name string, build func(*Module)) Declarations {
	s.named = append(s.named, namedPipeline{name: name, build: build})
	return s
}

func (s *Script) Import(bindings map[string]string) Declarations {
	for local, remote := range bindings {
		s.imports[local] = remote
	}
	return s
}

func (s *Script) Export(namespace string, values map[string]any) Declarations {
	if s.exportSeen[namespace] == nil {
		s.exportSeen[namespace] = map[string]bool{}
	}
	if s.exports[namespace] == nil {
		s.exports[namespace] = map[string]any{}
	}
	for name, val := range values {
		if s.exportSeen[namespace][name] {
			// Recorded as a bind error rather than panicking here so one
			// bad Export doesn't take down script evaluation before Bind
			// has a chance to report every problem together.
			s.bindErrors = append(s.bindErrors, fmt.Errorf("configbinder: duplicate export %q in namespace %q", name, namespace))
			continue
		}
		s.exportSeen[namespace][name] = true
		s.exports[namespace][name] = val
	}
	return s
}
