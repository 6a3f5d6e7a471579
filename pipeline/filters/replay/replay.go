// Package replay implements the Replay filter: it captures every event
// of the current message run and, if the run ends with
// StreamEnd{Error: event.Replay}, re-creates a sub-pipeline and reinjects
// the captured events into it instead of propagating the StreamEnd
// downstream.
package replay

import (
	"fmt"
	"io"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/pipeflow/pipeflow/internal/telemetry/logger"
	"github.com/pipeflow/pipeflow/pipeline"
	"github.com/pipeflow/pipeflow/pipeline/event"
)

var log = logger.Logger("replay")

// Options configures capture limits.
type Options struct {
	// MaxCount caps the number of replay attempts per stream. 0 means
	// unlimited, matching the original's default.
	MaxCount int
	// Delay is how long to wait before replaying, scheduled on the
	// injected clock rather than executed synchronously (grounded on
	// the original's m_timer.schedule(0, ...) — it always goes through
	// the event loop's timer, never a direct re-entrant call).
	Delay time.Duration
}

// SubPipelineBuilder builds a fresh sub-pipeline instance to replay
// captured events into, wired to out.
type SubPipelineBuilder func(out event.Input) *pipeline.Pipeline

// Filter is the replay filter.
type Filter struct {
	build SubPipelineBuilder
	opts  Options
	clk   clock.Clock

	output  event.Input
	buffer  []event.Event
	count   int
	current *pipeline.Pipeline
}

var _ pipeline.Filter = (*Filter)(nil)

// New creates a replay Filter template.
func New(build SubPipelineBuilder, opts Options) *Filter {
	return NewWithClock(build, opts, clock.New())
}

// NewWithClock is New with an injectable clock, for deterministic tests.
func NewWithClock(build SubPipelineBuilder, opts Options, clk clock.Clock) *Filter {
	return &Filter{build: build, opts: opts, clk: clk}
}

func (f *Filter) Clone() pipeline.Filter {
	return &Filter{build: f.build, opts: f.opts, clk: f.clk}
}

func (f *Filter) Chain(next event.Input) { f.output = next }

// Process captures every event it sees and forwards it downstream as it
// arrives, a normal StreamEnd included. On StreamEnd{Error: event.Replay} it
// schedules a replay instead of forwarding the StreamEnd.
func (f *Filter) Process(evt event.Event) {
	f.buffer = append(f.buffer, evt)

	se, isEnd := event.IsStreamEnd(evt)
	if !isEnd {
		f.output(evt)
		return
	}

	if se.Error != event.Replay || (f.opts.MaxCount > 0 && f.count >= f.opts.MaxCount) {
		f.output(evt)
		return
	}

	f.count++
	f.buffer = f.buffer[:len(f.buffer)-1] // the StreamEnd itself is not replayed
	f.scheduleReplay()
}

func (f *Filter) scheduleReplay() {
	log.Debug("replay scheduled", "attempt", f.count, "events", len(f.buffer))
	timer := f.clk.Timer(f.opts.Delay)
	go func() {
		<-timer.C
		f.replay()
	}()
}

func (f *Filter) replay() {
	captured := f.buffer
	f.buffer = nil
	f.current = f.build(f.output)
	for _, evt := range captured {
		f.current.OnEvent(evt)
	}
}

func (f *Filter) Reset() {
	f.buffer = nil
	f.count = 0
	f.current = nil
}

func (f *Filter) Shutdown() {
	if f.current != nil {
		f.current.Shutdown()
	}
}

func (f *Filter) Dump(w io.Writer) {
	fmt.Fprintf(w, "replay(maxCount=%d)\n", f.opts.MaxCount)
}
