package mux

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipeflow/pipeflow/pipeline"
	"github.com/pipeflow/pipeflow/pipeline/event"
)

// bufferingEchoFilter buffers one whole message before replying, so tests
// can distinguish request and reply ordering from pass-through ordering.
type bufferingEchoFilter struct {
	pipeline.BaseFilter
	buf []event.Event
}

func (f *bufferingEchoFilter) Process(evt event.Event) {
	f.buf = append(f.buf, evt)
	if event.IsMessageEnd(evt) {
		for _, e := range f.buf {
			f.Emit(e)
		}
		f.buf = nil
	}
}
func (f *bufferingEchoFilter) Clone() pipeline.Filter { return &bufferingEchoFilter{} }

func bufferingEchoLayout() *pipeline.Layout {
	return pipeline.NewLayout("echo", pipeline.Named, []pipeline.Filter{&bufferingEchoFilter{}})
}

func newQueueMuxerForTest(t *testing.T) (*QueueMuxer, *SessionPool) {
	t.Helper()
	layout := bufferingEchoLayout()
	factory := func(key any) (*pipeline.Pipeline, <-chan struct{}) { return layout.Alloc(nil), nil }
	pool := NewSessionPoolWithClock(factory, Options{}, clock.NewMock())
	keyFunc := func(ctx *pipeline.Context) any { return "shared" }
	return NewQueueMuxer(pool, keyFunc, Options{}), pool
}

func oneMessage(body string) []event.Event {
	return []event.Event{
		event.MessageStart{},
		event.NewData([]byte(body)),
		event.MessageEnd{},
	}
}

func TestQueueMuxerSingleStreamRoundTrip(t *testing.T) {
	m, pool := newQueueMuxerForTest(t)
	defer pool.Shutdown()

	ctx := pipeline.NewContext(nil)
	var got []event.Event
	s, err := m.OpenStream(ctx, func(evt event.Event) { got = append(got, evt) })
	require.NoError(t, err)

	for _, evt := range oneMessage("hello") {
		s.OnEvent(evt)
	}

	require.Len(t, got, 3)
	assert.IsType(t, event.MessageStart{}, got[0])
	assert.IsType(t, event.MessageEnd{}, got[2])
}

func TestQueueMuxerTwoStreamsShareSessionFIFO(t *testing.T) {
	m, pool := newQueueMuxerForTest(t)
	defer pool.Shutdown()

	ctx := pipeline.NewContext(nil)

	var gotA, gotB []event.Event
	sA, err := m.OpenStream(ctx, func(evt event.Event) { gotA = append(gotA, evt) })
	require.NoError(t, err)
	sB, err := m.OpenStream(ctx, func(evt event.Event) { gotB = append(gotB, evt) })
	require.NoError(t, err)

	for _, evt := range oneMessage("first") {
		sA.OnEvent(evt)
	}
	for _, evt := range oneMessage("second") {
		sB.OnEvent(evt)
	}

	assert.Len(t, gotA, 3, "first-dispatched stream gets the first reply")
	assert.Len(t, gotB, 3, "second-dispatched stream gets the second reply")
	require.NotNil(t, sA.session)
	assert.Same(t, sA.session, sB.session, "both streams land on the same shared session")
}

func TestQueueMuxerOneWayStreamGetsNoReplySlot(t *testing.T) {
	m, pool := newQueueMuxerForTest(t)
	defer pool.Shutdown()

	ctx := pipeline.NewContext(nil)
	var got []event.Event
	s, err := m.OpenStream(ctx, func(evt event.Event) { got = append(got, evt) })
	require.NoError(t, err)
	s.SetOneWay()

	for _, evt := range oneMessage("fire-and-forget") {
		s.OnEvent(evt)
	}

	require.NotNil(t, s.session)
	assert.Zero(t, s.session.queue.Len(), "one-way streams never sit on the FIFO queue")
}

// TestQueueMuxerCrossInstanceSharesSession exercises two independently
// constructed QueueMuxer instances (standing in for two concurrently
// running Filter instances) presenting the same key against the same
// pool: under a MaxQueue big enough for both, they must land their
// streams on the very same Session rather than each getting their own.
func TestQueueMuxerCrossInstanceSharesSession(t *testing.T) {
	layout := bufferingEchoLayout()
	factory := func(key any) (*pipeline.Pipeline, <-chan struct{}) { return layout.Alloc(nil), nil }
	pool := NewSessionPoolWithClock(factory, Options{}, clock.NewMock())
	defer pool.Shutdown()

	keyFunc := func(ctx *pipeline.Context) any { return "shared-host" }
	m1 := NewQueueMuxer(pool, keyFunc, Options{MaxQueue: 2})
	m2 := NewQueueMuxer(pool, keyFunc, Options{MaxQueue: 2})

	ctx := pipeline.NewContext(nil)
	var got1, got2 []event.Event
	s1, err := m1.OpenStream(ctx, func(evt event.Event) { got1 = append(got1, evt) })
	require.NoError(t, err)
	s2, err := m2.OpenStream(ctx, func(evt event.Event) { got2 = append(got2, evt) })
	require.NoError(t, err)

	for _, evt := range oneMessage("from-m1") {
		s1.OnEvent(evt)
	}
	for _, evt := range oneMessage("from-m2") {
		s2.OnEvent(evt)
	}

	require.NotNil(t, s1.session)
	require.NotNil(t, s2.session)
	assert.Same(t, s1.session, s2.session, "two separate muxers presenting the same key share one session")
	assert.Len(t, got1, 3)
	assert.Len(t, got2, 3)
}

// TestQueueMuxerMaxQueueSpawnsSecondSession exercises the other half of
// the admission rule: a stream still parked on a session (its reply not
// yet fully read back) pins that session's share count, so a
// concurrently dispatched stream for the same key must spawn a second
// session once MaxQueue is reached rather than queue behind the first.
func TestQueueMuxerMaxQueueSpawnsSecondSession(t *testing.T) {
	layout := bufferingEchoLayout()
	factory := func(key any) (*pipeline.Pipeline, <-chan struct{}) { return layout.Alloc(nil), nil }
	pool := NewSessionPoolWithClock(factory, Options{}, clock.NewMock())
	defer pool.Shutdown()

	keyFunc := func(ctx *pipeline.Context) any { return "shared-host" }
	opts := Options{MaxQueue: 1}
	m1 := NewQueueMuxer(pool, keyFunc, opts)
	m2 := NewQueueMuxer(pool, keyFunc, opts)

	ctx := pipeline.NewContext(nil)
	s1, err := m1.OpenStream(ctx, func(event.Event) {})
	require.NoError(t, err)
	// Expecting two downstream replies keeps s1 parked on its session's
	// queue after the first one arrives, pinning the session's share
	// count at MaxQueue for the duration of this test.
	s1.IncreaseQueueCount()

	for _, evt := range oneMessage("first-key-holder") {
		s1.OnEvent(evt)
	}
	require.NotNil(t, s1.session, "s1 must have dispatched and acquired a session")

	s2, err := m2.OpenStream(ctx, func(event.Event) {})
	require.NoError(t, err)
	for _, evt := range oneMessage("second-key-holder") {
		s2.OnEvent(evt)
	}

	require.NotNil(t, s2.session)
	assert.NotSame(t, s1.session, s2.session, "second stream spawns a new session once the first is at MaxQueue")
}

// TestSessionCloseSendsStreamEndToDownstreamPipeline proves idle
// recycling actually shuts the session's downstream pipeline down with a
// real StreamEnd, not just a bookkeeping removal.
func TestSessionCloseSendsStreamEndToDownstreamPipeline(t *testing.T) {
	var sawStreamEnd bool
	layout := pipeline.NewLayout("watch-end", pipeline.Named, []pipeline.Filter{&streamEndWatcher{seen: &sawStreamEnd}})
	factory := func(key any) (*pipeline.Pipeline, <-chan struct{}) { return layout.Alloc(nil), nil }

	clk := clock.NewMock()
	pool := NewSessionPoolWithClock(factory, Options{MaxIdle: time.Second}, clk)
	defer pool.Shutdown()

	s, err := pool.Alloc("host-a")
	require.NoError(t, err)
	pool.Release(s)

	clk.Add(2 * time.Second)
	waitForScan(t, clk)

	assert.True(t, sawStreamEnd, "recycling an idle session must send a real StreamEnd downstream")
}

type streamEndWatcher struct {
	pipeline.BaseFilter
	seen *bool
}

func (f *streamEndWatcher) Process(evt event.Event) {
	if _, ok := event.IsStreamEnd(evt); ok {
		*f.seen = true
	}
	f.Emit(evt)
}
func (f *streamEndWatcher) Clone() pipeline.Filter { return &streamEndWatcher{seen: f.seen} }
