package outbound

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipeflow/pipeflow/pipeline/event"
)

// recorder collects every event an Outbound emits, safe for concurrent
// use since Receive is called from the dial/read goroutines.
type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) receive(evt event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) snapshot() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Event, len(r.events))
	copy(out, r.events)
	return out
}

func echoServer(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				buf := make([]byte, 4096)
				for {
					n, err := conn.Read(buf)
					if n > 0 {
						_, _ = conn.Write(buf[:n])
					}
					if err != nil {
						return
					}
				}
			}()
		}
	}()
	return ln
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Fail(t, "condition not met before timeout")
}

func TestOutboundConnectsAndEchoes(t *testing.T) {
	ln := echoServer(t)
	defer ln.Close()

	rec := &recorder{}
	o := New(ln.Addr().String(), Options{})
	o.Receive = rec.receive
	o.Dial()

	waitUntil(t, time.Second, func() bool { return o.State() == Connected })

	o.Write([]byte("ping"))

	waitUntil(t, time.Second, func() bool {
		for _, e := range rec.snapshot() {
			if d, ok := e.(event.Data); ok && string(d.Chunks.Bytes()) == "ping" {
				return true
			}
		}
		return false
	})

	o.Close()
	assert.Equal(t, Closed, o.State())
}

func TestOutboundBuffersWritesBeforeConnected(t *testing.T) {
	ln := echoServer(t)
	defer ln.Close()

	rec := &recorder{}
	o := New(ln.Addr().String(), Options{})
	o.Receive = rec.receive

	// Write before Dial: should be buffered, not dropped, and flushed
	// once the connection completes.
	o.Write([]byte("buffered"))
	o.Dial()

	waitUntil(t, time.Second, func() bool {
		for _, e := range rec.snapshot() {
			if d, ok := e.(event.Data); ok && string(d.Chunks.Bytes()) == "buffered" {
				return true
			}
		}
		return false
	})

	o.Close()
}

func TestOutboundDiscardsBeyondBufferLimit(t *testing.T) {
	o := New("127.0.0.1:1", Options{BufferLimit: 4, RetryCount: 0})
	o.Write([]byte("ab"))
	o.Write([]byte("cdef"))

	assert.Equal(t, 2, o.bufferSize)
	assert.Equal(t, 4, o.DiscardedDataSize())
}

func TestOutboundRetriesThenGivesUp(t *testing.T) {
	clk := clock.NewMock()
	rec := &recorder{}

	// Nothing listens here; every dial attempt fails immediately.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	o := NewWithClock(addr, Options{RetryCount: 2, RetryDelay: time.Second}, clk)
	o.Receive = rec.receive
	o.Dial()

	for i := 0; i < 2; i++ {
		time.Sleep(20 * time.Millisecond)
		clk.Add(time.Second)
	}

	waitUntil(t, time.Second, func() bool { return o.State() == Closed })

	events := rec.snapshot()
	require.Len(t, events, 1)
	se, ok := events[0].(event.StreamEnd)
	require.True(t, ok)
	assert.Equal(t, event.ConnectionRefused, se.Error)
}

func TestOutboundStateString(t *testing.T) {
	assert.Equal(t, "Connected", Connected.String())
	assert.Equal(t, "Unknown", State(99).String())
}
