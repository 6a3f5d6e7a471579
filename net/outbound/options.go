// Package outbound implements the client-side connection state machine:
// Idle -> Resolving -> Connecting -> Connected -> Closed, with retry and
// a bounded write buffer that discards data past its limit instead of
// growing unbounded.
package outbound

import (
	"errors"
	"time"
)

// Options configures one Outbound's dial and retry behavior.
type Options struct {
	// ConnectTimeout bounds a single dial attempt.
	ConnectTimeout time.Duration

	// RetryCount is how many additional dial attempts follow an initial
	// failure. 0 means no retry.
	RetryCount int

	// RetryDelay is the delay before each retry attempt.
	RetryDelay time.Duration

	// BufferLimit caps buffered-but-unsent write bytes; 0 means
	// unlimited. Writes beyond the limit are discarded and counted in
	// DiscardedDataSize.
	BufferLimit int

	// IdleTimeout closes the connection if nothing is read or written
	// for this long. Zero disables it.
	IdleTimeout time.Duration
}

var ErrInvalidOptions = errors.New("outbound: invalid options")

func (o Options) Validate() error {
	if o.RetryCount < 0 || o.BufferLimit < 0 {
		return ErrInvalidOptions
	}
	return nil
}
