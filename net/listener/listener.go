package listener

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/pipeflow/pipeflow/internal/telemetry/logger"
	"github.com/pipeflow/pipeflow/pipeline"
)

var log = logger.Logger("listener")

// reusePort is process-wide: once enabled, every subsequent Listener
// sets SO_REUSEPORT, matching the original's static s_reuse_port flag
// that lets multiple worker processes share one bound address.
var reusePort atomic.Bool

// SetReusePort toggles SO_REUSEPORT for every Listener started after the
// call. It does not affect already-running listeners.
func SetReusePort(enabled bool) { reusePort.Store(enabled) }

// Listener accepts TCP connections and drives one Inbound pipeline per
// connection from layout.
type Listener struct {
	addr    string
	opts    Options
	layout  *pipeline.Layout

	ln net.Listener

	mu           sync.Mutex
	open         map[*Inbound]struct{}
	peak         int
	paused       bool
	closed       bool
	acceptGroup  sync.WaitGroup
	resumeSignal *signal
}

// allListeners mirrors the original's s_all_listeners registry, used by
// Find for admin/diagnostic lookups.
var (
	allListenersMu sync.Mutex
	allListeners   []*Listener
)

// New binds addr (host:port) and starts accepting connections that are
// run through layout. layout must be of type pipeline.Listen.
func New(addr string, layout *pipeline.Layout, opts Options) (*Listener, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	lc := net.ListenConfig{Control: controlFor(reusePort.Load(), opts)}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listener: listen %s: %w", addr, err)
	}

	l := &Listener{
		addr:         ln.Addr().String(),
		opts:         opts,
		layout:       layout,
		ln:           ln,
		open:         make(map[*Inbound]struct{}),
		resumeSignal: newSignal(),
	}

	allListenersMu.Lock()
	allListeners = append(allListeners, l)
	allListenersMu.Unlock()

	l.acceptGroup.Add(1)
	go l.acceptLoop()

	log.Info("listener started", "addr", l.addr)
	return l, nil
}

// Find returns the Listener bound to addr, if any is currently running.
func Find(addr string) *Listener {
	allListenersMu.Lock()
	defer allListenersMu.Unlock()
	for _, l := range allListeners {
		if l.addr == addr {
			return l
		}
	}
	return nil
}

// Addr returns the bound local address.
func (l *Listener) Addr() string { return l.addr }

func (l *Listener) acceptLoop() {
	defer l.acceptGroup.Done()
	for {
		l.waitForCapacity()
		if l.isClosed() {
			return
		}

		conn, err := l.ln.Accept()
		if err != nil {
			if l.isClosed() {
				return
			}
			log.Warn("accept failed", "err", err)
			continue
		}
		l.admit(conn)
	}
}

// waitForCapacity blocks the accept loop itself (not merely the accepted
// socket) while MaxConnections is reached, matching the original's
// pause()/resume() around the listener's event source rather than
// accepting and immediately rejecting.
func (l *Listener) waitForCapacity() {
	for {
		l.mu.Lock()
		full := l.opts.MaxConnections > 0 && len(l.open) >= l.opts.MaxConnections
		if full && !l.paused {
			l.paused = true
			log.Warn("admission paused: at max_connections", "addr", l.addr)
		}
		closed := l.closed
		l.mu.Unlock()
		if !full || closed {
			return
		}
		l.resumeSignal.wait()
	}
}

func (l *Listener) admit(conn net.Conn) {
	l.mu.Lock()
	ib := newInbound(l, conn)
	l.open[ib] = struct{}{}
	if len(l.open) > l.peak {
		l.peak = len(l.open)
	}
	l.mu.Unlock()

	ib.run()
}

func (l *Listener) forget(ib *Inbound) {
	l.mu.Lock()
	delete(l.open, ib)
	wasPaused := l.paused
	l.paused = false
	l.mu.Unlock()
	if wasPaused {
		log.Info("admission resumed", "addr", l.addr)
		l.resumeSignal.broadcast()
	}
}

// OpenConnections returns the current number of live Inbounds.
func (l *Listener) OpenConnections() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.open)
}

// PeakConnections returns the highest concurrent connection count ever
// observed by this Listener.
func (l *Listener) PeakConnections() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peak
}

func (l *Listener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Close stops accepting new connections and shuts down every open
// Inbound, aggregating any close errors.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	inbounds := make([]*Inbound, 0, len(l.open))
	for ib := range l.open {
		inbounds = append(inbounds, ib)
	}
	l.mu.Unlock()
	l.resumeSignal.broadcast()

	var errs error
	errs = multierr.Append(errs, l.ln.Close())
	l.acceptGroup.Wait()

	for _, ib := range inbounds {
		errs = multierr.Append(errs, ib.Close())
	}

	allListenersMu.Lock()
	for i, other := range allListeners {
		if other == l {
			allListeners = append(allListeners[:i], allListeners[i+1:]...)
			break
		}
	}
	allListenersMu.Unlock()

	log.Info("listener closed", "addr", l.addr)
	return errs
}
