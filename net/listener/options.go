// Package listener implements a TCP Listener with admission control
// (max connections, pause/resume), SO_REUSEPORT-based load distribution
// across worker processes, and per-connection Inbound pipelines.
package listener

import (
	"errors"
	"time"
)

// Options configures a Listener, grounded on the original's
// Listener::Options parsing (listener.cpp).
type Options struct {
	// MaxConnections caps concurrently open Inbounds; 0 means
	// unlimited. Once reached, Accept pauses until a connection closes.
	MaxConnections int

	// ReadTimeout/WriteTimeout bound the Inbound's underlying socket
	// deadlines. Zero means no deadline. IdleTimeout is validated and
	// stored but Inbound does not apply it.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Transparent requests IP_TRANSPARENT (Linux only; ignored, with a
	// logged warning, on every other platform).
	Transparent bool

	// CloseEOF: when true, the Inbound finishes its output side as soon
	// as the socket reaches EOF, instead of waiting for the pipeline's
	// own output to also finish. Named but left undescribed by the
	// distilled spec; behavior here follows the original's
	// m_options.close_eof guard.
	CloseEOF bool
}

var ErrInvalidOptions = errors.New("listener: invalid options")

func (o Options) Validate() error {
	if o.MaxConnections < 0 {
		return ErrInvalidOptions
	}
	return nil
}
