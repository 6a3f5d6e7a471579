// Package event defines the five event kinds that flow through every
// pipeline (StreamStart, MessageStart, Data, MessageEnd, StreamEnd) and the
// ref-counted chunk buffer (Chunks) that Data events carry.
//
// A well-formed stream is:
//
//	StreamStart (MessageStart Data* MessageEnd | Data)* StreamEnd
//
// Exactly one StreamEnd terminates a stream; nothing may follow it.
package event

import "fmt"

// Event is implemented by every event kind. It is a closed set — callers
// switch on the concrete type, never add new ones outside this package.
type Event interface {
	isEvent()
	String() string
}

// Input is the receiving end of an event stream: a filter's Process
// method, a pipeline's output, or a socket writer all satisfy it.
type Input func(Event)

// StreamStart opens a stream. It carries no payload.
type StreamStart struct{}

func (StreamStart) isEvent()        {}
func (StreamStart) String() string  { return "StreamStart" }

// Headers is a generic ordered header/metadata carrier used by
// MessageStart and MessageEnd. Protocol filters define their own
// concrete head/tail shapes and store them here as an opaque value.
type Headers = any

// MessageStart opens one message within the stream.
type MessageStart struct {
	Head Headers
}

func (MessageStart) isEvent() {}
func (m MessageStart) String() string {
	return fmt.Sprintf("MessageStart(%v)", m.Head)
}

// Data carries a chunk of body bytes for the currently open message (or,
// outside any message, a raw byte stream).
type Data struct {
	Chunks *Chunks
}

func (Data) isEvent() {}
func (d Data) String() string {
	n := 0
	if d.Chunks != nil {
		n = d.Chunks.Len()
	}
	return fmt.Sprintf("Data(%d bytes)", n)
}

// NewData wraps a single byte slice as a Data event. The slice is taken
// by reference, not copied; callers must not mutate it afterward.
func NewData(b []byte) Data {
	return Data{Chunks: NewChunks(b)}
}

// MessageEnd closes the currently open message.
type MessageEnd struct {
	Tail Headers
}

func (MessageEnd) isEvent() {}
func (m MessageEnd) String() string {
	return fmt.Sprintf("MessageEnd(%v)", m.Tail)
}

// StreamEnd terminates the stream. Error is NoError for a normal close.
type StreamEnd struct {
	Error ErrorKind
}

func (StreamEnd) isEvent() {}
func (e StreamEnd) String() string {
	return fmt.Sprintf("StreamEnd(%s)", e.Error)
}

// IsMessageStart reports whether evt is a MessageStart.
func IsMessageStart(evt Event) bool { _, ok := evt.(MessageStart); return ok }

// IsMessageEnd reports whether evt is a MessageEnd.
func IsMessageEnd(evt Event) bool { _, ok := evt.(MessageEnd); return ok }

// IsStreamEnd reports whether evt is a StreamEnd, returning it if so.
func IsStreamEnd(evt Event) (StreamEnd, bool) {
	se, ok := evt.(StreamEnd)
	return se, ok
}
