// Package mux implements session multiplexing over a shared downstream
// pipeline: QueueMuxer matches replies back to requests by strict FIFO
// order over whatever Sessions a SessionCluster currently has admitting
// new streams. A Session is not owned by one QueueMuxer — any number of
// Filter/QueueMuxer instances presenting the same key share the same
// Session, up to Options.MaxQueue concurrent streams, via the cluster's
// share-count admission rule. Setting MaxQueue to 1 degenerates a Filter
// into the non-pipelining single-in-flight variant the original
// implements as a separate "Mux" filter; this package does not carry a
// second type for it.
package mux

import (
	"errors"
	"time"
)

// Options configures session admission and recycling for a Base.
type Options struct {
	// MaxIdle is how long a session may sit with a zero share count
	// before being recycled. Zero means the package default (60s,
	// matching the original's typical configuration).
	MaxIdle time.Duration

	// MaxQueue is the maximum share count (live streams plus muxers
	// still waiting on it) a single session may carry at once. 0 means
	// unlimited. When every existing session for a key is already at
	// MaxQueue, a new session is admitted instead of queuing the stream
	// behind one of them.
	MaxQueue int

	// MaxMessages caps how many streams a single session may ever be
	// asked to carry over its lifetime before it is retired: once its
	// message count reaches MaxMessages, it admits no new streams and is
	// discarded as soon as its share count drops to zero.
	MaxMessages int
}

// ErrInvalidOptions is returned by Options.Validate.
var ErrInvalidOptions = errors.New("mux: invalid options")

// Validate rejects negative limits.
func (o Options) Validate() error {
	if o.MaxIdle < 0 || o.MaxQueue < 0 || o.MaxMessages < 0 {
		return ErrInvalidOptions
	}
	return nil
}

func (o Options) withDefaults() Options {
	if o.MaxIdle == 0 {
		o.MaxIdle = 60 * time.Second
	}
	return o
}
