package mux

import (
	"github.com/pipeflow/pipeflow/pipeline"
	"github.com/pipeflow/pipeflow/pipeline/event"
)

// QueueMuxer multiplexes any number of upstream Streams onto whatever
// Session its Base's SessionCluster admits them onto, matching each
// reply back to its request by strict FIFO order within that Session:
// the reply for the oldest still-unanswered stream on a given Session is
// always the next one that Session reads back, regardless of which
// QueueMuxer dispatched it there. Under share-count admission pressure
// (Options.MaxQueue), two streams dispatched through the very same
// QueueMuxer can land on two different Sessions.
type QueueMuxer struct {
	base *Base

	// inFlight tracks every Stream this muxer has dispatched but not yet
	// seen released, so Reset/CloseStream can find and release them
	// without disturbing other muxers sharing the same Session(s).
	inFlight map[*Stream]struct{}
}

// NewQueueMuxer creates a QueueMuxer sharing sessions from pool, keyed by
// keyFunc.
func NewQueueMuxer(pool *SessionPool, keyFunc KeyFunc, opts Options) *QueueMuxer {
	return &QueueMuxer{base: NewBase(pool, keyFunc, opts)}
}

// OpenStream returns a new Stream bound to ctx's session key, delivering
// replies to output. It expects exactly one downstream reply by default;
// call IncreaseQueueCount on the returned Stream for protocols where one
// upstream message triggers more than one.
func (m *QueueMuxer) OpenStream(ctx *pipeline.Context, output event.Input) (*Stream, error) {
	if err := m.base.Open(ctx); err != nil {
		return nil, err
	}
	return &Stream{muxer: m, output: output, queuedCount: 1}, nil
}

// CloseStream removes s from whatever Session's queue it is sitting on
// (or, if it is still waiting on a pending Session, cancels that wait)
// without expecting its reply, used when the upstream side aborts early.
func (m *QueueMuxer) CloseStream(s *Stream) {
	if _, ok := m.inFlight[s]; !ok {
		return
	}
	s.closed = true
	if s.session != nil {
		s.session.removeQueued(s)
		m.completeStream(s, s.session)
	} else {
		delete(m.inFlight, s)
	}
}

// Dedicate hands s's underlying Session over to raw byte piping (e.g.
// after a protocol upgrade such as WebSocket): once dedicated, that
// Session stops FIFO-matching replies and simply forwards everything it
// reads back to s's output.
func (m *QueueMuxer) Dedicate(s *Stream) {
	if s.session != nil {
		s.session.Dedicate(s)
	}
}

// dispatch hands a fully-buffered message from s to whichever Session
// its Base's cluster admits it onto. If that Session is still pending,
// dispatch returns immediately and the write happens later, once the
// cluster reports the Session ready.
func (m *QueueMuxer) dispatch(s *Stream) {
	buffer := s.buffer
	s.buffer = nil

	if m.inFlight == nil {
		m.inFlight = make(map[*Stream]struct{})
	}
	m.inFlight[s] = struct{}{}

	resume := func(session *Session) {
		if s.closed {
			return
		}
		session.Enqueue(s, buffer)
		if s.oneWay {
			m.completeStream(s, session)
		}
	}

	session, ready := m.base.acquire(resume)
	s.session = session
	if !ready {
		return
	}
	resume(session)
}

// IncreaseQueueCount is the package-level analog of Stream's method,
// exposed for parity with the design note naming it as a QueueMuxer
// operation.
func (m *QueueMuxer) IncreaseQueueCount(s *Stream) { s.IncreaseQueueCount() }

// completeStream is called once for every Stream this muxer dispatched,
// exactly once it either gets its final reply, is force-closed, or its
// Session ends — releasing it from the muxer's in-flight bookkeeping and
// decrementing its Session's share count.
func (m *QueueMuxer) completeStream(s *Stream, session *Session) {
	if s.released {
		return
	}
	s.released = true
	delete(m.inFlight, s)
	session.cluster.release(session)
}

// Reset releases every Stream still in flight and clears the Base's
// resolved key, so the QueueMuxer can be reused by a fresh pipeline run.
func (m *QueueMuxer) Reset() {
	for s := range m.inFlight {
		s.closed = true
		if s.session != nil {
			s.session.removeQueued(s)
			m.completeStream(s, s.session)
		}
	}
	m.inFlight = nil
	m.base.Reset()
}

// Shutdown is Reset; a QueueMuxer holds no other resources to drain.
func (m *QueueMuxer) Shutdown() { m.Reset() }
