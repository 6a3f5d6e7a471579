package mux

import "errors"

// ErrSessionClosed names the condition of a session that has been closed
// or discarded. No function in this package returns it: Session.Enqueue
// on a closed session drops its events without reporting an error.
var ErrSessionClosed = errors.New("mux: session closed")

// ErrPoolShutdown is returned by SessionPool.Alloc and Base.Open after
// Shutdown.
var ErrPoolShutdown = errors.New("mux: session pool shut down")
