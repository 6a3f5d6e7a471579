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

type echoFilter struct{ pipeline.BaseFilter }

func (f *echoFilter) Process(evt event.Event) { f.Emit(evt) }
func (f *echoFilter) Clone() pipeline.Filter   { return &echoFilter{} }

func echoLayout() *pipeline.Layout {
	return pipeline.NewLayout("echo", pipeline.Named, []pipeline.Filter{&echoFilter{}})
}

func newTestPool(t *testing.T, clk clock.Clock) *SessionPool {
	t.Helper()
	layout := echoLayout()
	factory := func(key any) (*pipeline.Pipeline, <-chan struct{}) {
		return layout.Alloc(nil), nil
	}
	return NewSessionPoolWithClock(factory, Options{MaxIdle: time.Second}, clk)
}

func TestSessionPoolReusesIdleSession(t *testing.T) {
	clk := clock.NewMock()
	pool := newTestPool(t, clk)
	defer pool.Shutdown()

	s1, err := pool.Alloc("host-a")
	require.NoError(t, err)
	pool.Release(s1)

	s2, err := pool.Alloc("host-a")
	require.NoError(t, err)
	assert.Same(t, s1, s2)
}

func TestSessionPoolRecyclesAfterMaxIdle(t *testing.T) {
	clk := clock.NewMock()
	pool := newTestPool(t, clk)
	defer pool.Shutdown()

	s1, err := pool.Alloc("host-a")
	require.NoError(t, err)
	pool.Release(s1)

	clk.Add(2 * time.Second)
	// give the scan goroutine a chance to run after the mock tick fires
	waitForScan(t, clk)

	s2, err := pool.Alloc("host-a")
	require.NoError(t, err)
	assert.NotSame(t, s1, s2, "session idle past MaxIdle must be recycled, not reused")
}

func TestSessionPoolDifferentKeysDifferentSessions(t *testing.T) {
	clk := clock.NewMock()
	pool := newTestPool(t, clk)
	defer pool.Shutdown()

	s1, err := pool.Alloc("host-a")
	require.NoError(t, err)
	s2, err := pool.Alloc("host-b")
	require.NoError(t, err)
	assert.NotSame(t, s1, s2)
}

func TestSessionPoolAllocAfterShutdown(t *testing.T) {
	clk := clock.NewMock()
	pool := newTestPool(t, clk)
	pool.Shutdown()

	_, err := pool.Alloc("host-a")
	assert.ErrorIs(t, err, ErrPoolShutdown)
}

// TestSessionPoolAllocSharesUntilMaxQueue exercises the share-count
// admission rule directly at the pool level, without going through a
// QueueMuxer: unreleased allocations for the same key pile onto one
// session up to MaxQueue, then spill onto a second one.
func TestSessionPoolAllocSharesUntilMaxQueue(t *testing.T) {
	clk := clock.NewMock()
	layout := echoLayout()
	factory := func(key any) (*pipeline.Pipeline, <-chan struct{}) {
		return layout.Alloc(nil), nil
	}
	pool := NewSessionPoolWithClock(factory, Options{MaxIdle: time.Second, MaxQueue: 2}, clk)
	defer pool.Shutdown()

	s1, err := pool.Alloc("host-a")
	require.NoError(t, err)
	s2, err := pool.Alloc("host-a")
	require.NoError(t, err)
	assert.Same(t, s1, s2, "second allocation shares the first session while under MaxQueue")

	s3, err := pool.Alloc("host-a")
	require.NoError(t, err)
	assert.NotSame(t, s1, s3, "third allocation spills onto a new session once MaxQueue is reached")
}

// waitForScan gives the pool's background scan goroutine real wall-clock
// time to observe a mock-clock tick and run recycleAll before assertions
// run against its effects.
func waitForScan(t *testing.T, clk *clock.Mock) {
	t.Helper()
	time.Sleep(50 * time.Millisecond)
}
