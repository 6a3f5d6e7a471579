package replay

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipeflow/pipeflow/pipeline"
	"github.com/pipeflow/pipeflow/pipeline/event"
)

type passthroughFilter struct{ pipeline.BaseFilter }

func (f *passthroughFilter) Process(evt event.Event) { f.Emit(evt) }
func (f *passthroughFilter) Clone() pipeline.Filter   { return &passthroughFilter{} }

func TestReplayForwardsNormalStreamEnd(t *testing.T) {
	clk := clock.NewMock()
	f := NewWithClock(func(out event.Input) *pipeline.Pipeline {
		layout := pipeline.NewLayout("replayed", pipeline.Named, []pipeline.Filter{&passthroughFilter{}})
		p := layout.Alloc(nil)
		p.SetOutput(out)
		return p
	}, Options{}, clk)

	var got []event.Event
	f.Chain(func(evt event.Event) { got = append(got, evt) })

	f.Process(event.StreamStart{})
	f.Process(event.NewData([]byte("x")))
	f.Process(event.StreamEnd{Error: event.NoError})

	require.Len(t, got, 3)
	assert.IsType(t, event.StreamEnd{}, got[2])
}

func TestReplayReinjectsCapturedEvents(t *testing.T) {
	clk := clock.NewMock()
	f := NewWithClock(func(out event.Input) *pipeline.Pipeline {
		layout := pipeline.NewLayout("replayed", pipeline.Named, []pipeline.Filter{&passthroughFilter{}})
		p := layout.Alloc(nil)
		p.SetOutput(out)
		return p
	}, Options{}, clk)

	var got []event.Event
	f.Chain(func(evt event.Event) { got = append(got, evt) })

	f.Process(event.StreamStart{})
	f.Process(event.NewData([]byte("payload")))
	f.Process(event.StreamEnd{Error: event.Replay})

	// the replay StreamEnd is not forwarded synchronously
	assert.Len(t, got, 2)

	clk.Add(1) // fire the zero-delay replay timer
	waitForReplay(t)

	require.Len(t, got, 4, "captured StreamStart+Data replayed, original StreamEnd withheld")
	assert.IsType(t, event.StreamStart{}, got[2])
	assert.IsType(t, event.Data{}, got[3])
}

func TestReplayRespectsMaxCount(t *testing.T) {
	clk := clock.NewMock()
	f := NewWithClock(func(out event.Input) *pipeline.Pipeline {
		layout := pipeline.NewLayout("replayed", pipeline.Named, []pipeline.Filter{&passthroughFilter{}})
		p := layout.Alloc(nil)
		p.SetOutput(out)
		return p
	}, Options{MaxCount: 0}, clk)
	f.opts.MaxCount = 1

	var got []event.Event
	f.Chain(func(evt event.Event) { got = append(got, evt) })

	f.Process(event.StreamStart{})
	f.Process(event.StreamEnd{Error: event.Replay})
	clk.Add(1)
	waitForReplay(t)

	// second replay attempt exceeds MaxCount: StreamEnd forwards normally
	f.Process(event.StreamEnd{Error: event.Replay})
	require.NotEmpty(t, got)
	assert.IsType(t, event.StreamEnd{}, got[len(got)-1])
}

func waitForReplay(t *testing.T) {
	t.Helper()
	time.Sleep(20 * time.Millisecond)
}
