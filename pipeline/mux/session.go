package mux

import (
	"container/list"
	"sync"
	"time"

	"github.com/pipeflow/pipeflow/pipeline"
	"github.com/pipeflow/pipeflow/pipeline/event"
)

// Session wraps one downstream Pipeline instance (the real connection)
// so it can be shared by any number of Streams at once. share_count is
// the number of live Streams plus the number of muxers still waiting for
// this Session to stop being pending; a SessionCluster only ever admits
// a new Stream onto a Session with share_count below its Options.MaxQueue
// and message_count below its Options.MaxMessages.
//
// shareCount, messageCount, pending, waiting, retiring and idleSince are
// mutated only while the owning SessionCluster's mu is held. Session's
// own mu guards the FIFO reply queue, closed and dedicated routing,
// which any number of Streams from different goroutines write into
// concurrently once a Session is shared, independent of cluster
// bookkeeping.
type Session struct {
	cluster *SessionCluster
	down    *pipeline.Pipeline

	mu          sync.Mutex
	queue       *list.List // *Stream, oldest-unanswered-first
	dedicated   bool
	dedicatedTo *Stream

	shareCount   int
	messageCount int

	// pending is true from creation until the downstream connection
	// this Session wraps is confirmed ready (the Factory's readiness
	// channel closes). Streams that acquire a pending Session are
	// parked on waiting rather than written through immediately.
	pending bool
	waiting []func(*Session)

	retiring  bool // MaxMessages reached; admits nothing further
	closed    bool
	idleSince time.Time
}

func newSession(cluster *SessionCluster, down *pipeline.Pipeline) *Session {
	s := &Session{cluster: cluster, down: down, queue: list.New()}
	down.SetOutput(s.onDownstreamEvent)
	return s
}

// Enqueue parks stream at the tail of the FIFO reply queue (unless it is
// one-way) and writes evts into the downstream pipeline. The queue push
// happens before the write so a synchronous downstream reply (an
// in-process echo, for instance) finds stream already at the tail.
func (s *Session) Enqueue(stream *Stream, evts []event.Event) {
	s.mu.Lock()
	if !stream.oneWay {
		s.queue.PushBack(stream)
	}
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	for _, evt := range evts {
		s.down.OnEvent(evt)
	}
}

// removeQueued removes stream from the FIFO queue if it is still
// sitting there unanswered, used when its upstream side aborts early.
func (s *Session) removeQueued(stream *Stream) {
	s.mu.Lock()
	for e := s.queue.Front(); e != nil; e = e.Next() {
		if e.Value.(*Stream) == stream {
			s.queue.Remove(e)
			break
		}
	}
	s.mu.Unlock()
}

// Dedicate hands this Session over to raw byte piping for stream (e.g.
// after a protocol upgrade such as WebSocket): once dedicated, the
// Session stops FIFO-matching replies and simply forwards everything it
// reads back to stream's output.
func (s *Session) Dedicate(stream *Stream) {
	s.mu.Lock()
	s.dedicated = true
	s.dedicatedTo = stream
	s.mu.Unlock()
}

// onDownstreamEvent is the downstream pipeline's sole output sink. It
// implements the head-of-queue dispatch table: MessageStart is forwarded
// only if the head stream hasn't already had one forwarded for its
// current reply (and marks it as such); Data is forwarded only once the
// head has a forwarded, unmatched MessageStart; MessageEnd is always
// forwarded and decrements the head's queued_count, releasing the head
// only once that reaches zero (otherwise just clearing its started
// flag, so a pipelined head can receive another MessageStart/MessageEnd
// cycle before it is released). A StreamEnd closes the session and fans
// out to every queued stream unconditionally, synthesizing a
// MessageStart first for any that never got one.
func (s *Session) onDownstreamEvent(evt event.Event) {
	if se, ok := event.IsStreamEnd(evt); ok {
		s.mu.Lock()
		s.closed = true
		var drained []*Stream
		for e := s.queue.Front(); e != nil; e = e.Next() {
			drained = append(drained, e.Value.(*Stream))
		}
		s.queue.Init()
		s.mu.Unlock()

		for _, st := range drained {
			if !st.started {
				st.output(event.MessageStart{})
			}
			st.output(se)
			st.muxer.completeStream(st, s)
		}
		return
	}

	s.mu.Lock()
	if s.dedicated {
		target := s.dedicatedTo
		s.mu.Unlock()
		if target != nil {
			target.output(evt)
		}
		return
	}

	front := s.queue.Front()
	if front == nil {
		s.mu.Unlock()
		return
	}
	head := front.Value.(*Stream)

	switch {
	case event.IsMessageStart(evt):
		if head.started {
			s.mu.Unlock()
			return
		}
		head.started = true
		s.mu.Unlock()
		head.output(evt)

	case event.IsMessageEnd(evt):
		if head.queuedCount > 0 {
			head.queuedCount--
		}
		released := head.queuedCount == 0
		if released {
			s.queue.Remove(front)
		} else {
			head.started = false
		}
		s.mu.Unlock()
		head.output(evt)
		if released {
			head.muxer.completeStream(head, s)
		}

	default:
		started := head.started
		s.mu.Unlock()
		if started {
			head.output(evt)
		}
	}
}

// IsDone reports whether the downstream pipeline has already ended.
func (s *Session) IsDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// IsRetiring reports whether this session has reached MaxMessages and
// should be discarded once its share count drops to zero.
func (s *Session) IsRetiring() bool { return s.retiring }

// Close shuts the session's downstream pipeline down and recycles it.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.down.Shutdown()
	s.down.OnEvent(event.StreamEnd{Error: event.NoError})
	s.down.Recycle()
}
