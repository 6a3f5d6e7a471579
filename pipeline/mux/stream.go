package mux

import "github.com/pipeflow/pipeflow/pipeline/event"

// Stream is one upstream-facing logical request/reply pair multiplexed
// through a QueueMuxer: it buffers a whole message (MessageStart through
// MessageEnd) before handing it to a shared Session, then sits on that
// Session's FIFO queue until its matching reply (or replies, if
// IncreaseQueueCount raised its queued count) has been read back.
type Stream struct {
	muxer   *QueueMuxer
	output  event.Input
	session *Session // set once dispatch has acquired a session for this stream

	buffer       []event.Event
	pendingStart bool // an upstream MessageStart is buffered, not yet matched by a MessageEnd
	oneWay       bool
	closed       bool // CloseStream was called; a resume still in flight must not enqueue
	released     bool // completeStream already ran for this stream

	// started and queuedCount track the downstream reply side and are
	// mutated only by the owning Session while holding its mu: started
	// marks that the current reply's MessageStart has already been
	// forwarded, and queuedCount is the number of downstream replies
	// still expected before this Stream is released from the queue.
	started     bool
	queuedCount int
}

// OnEvent buffers evt; once a full message (MessageStart..MessageEnd) has
// been accumulated, it is handed to the owning QueueMuxer for dispatch.
// A StreamEnd is ignored here; Filter.Process closes the Stream through
// CloseStream when the upstream side ends. At most one MessageStart is ever kept pending in
// the buffer — a second one arriving before the first's MessageEnd is
// dropped rather than appended.
func (s *Stream) OnEvent(evt event.Event) {
	if _, ok := event.IsStreamEnd(evt); ok {
		return
	}
	if event.IsMessageStart(evt) {
		if s.pendingStart {
			return
		}
		s.pendingStart = true
	}
	s.buffer = append(s.buffer, evt)
	if event.IsMessageEnd(evt) {
		s.pendingStart = false
		s.muxer.dispatch(s)
	}
}

// IncreaseQueueCount marks this stream as expecting more than one
// downstream reply before it is released — the hook a protocol filter
// uses when one upstream message logically triggers several downstream
// replies (e.g. a pipelined batch).
func (s *Stream) IncreaseQueueCount() { s.queuedCount++ }

// SetOneWay marks this stream as not expecting any reply at all: once
// dispatched, it is never parked on a session's FIFO queue.
func (s *Stream) SetOneWay() { s.oneWay = true }
