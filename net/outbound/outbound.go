package outbound

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/pipeflow/pipeflow/internal/telemetry/logger"
	"github.com/pipeflow/pipeflow/pipeline/event"
)

var log = logger.Logger("outbound")

// Outbound is a client-side TCP connection driven by the pipeline's
// output events (End() closes the write side; Data writes bytes) and
// feeding socket reads back as Data/StreamEnd events through Receive.
type Outbound struct {
	addr string
	opts Options
	clk  clock.Clock

	// Receive is called with every event this Outbound produces: Data
	// for bytes read, StreamEnd once the connection is fully done.
	Receive event.Input

	mu         sync.Mutex
	state      State
	conn       net.Conn
	buffer     [][]byte
	bufferSize int
	discarded  int
	attempt    int

	writeClosed bool
	readClosed  bool
}

// New creates an Outbound targeting addr, not yet connected — call Dial
// to start connecting.
func New(addr string, opts Options) *Outbound {
	return NewWithClock(addr, opts, clock.New())
}

// NewWithClock is New with an injectable clock, for deterministic retry
// backoff tests.
func NewWithClock(addr string, opts Options, clk clock.Clock) *Outbound {
	return &Outbound{addr: addr, opts: opts, clk: clk, state: Idle}
}

// State returns the current lifecycle state.
func (o *Outbound) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// DiscardedDataSize returns the total bytes ever discarded for exceeding
// BufferLimit.
func (o *Outbound) DiscardedDataSize() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.discarded
}

// Dial begins connecting asynchronously; Receive(StreamEnd) is called if
// every retry attempt fails.
func (o *Outbound) Dial() {
	o.mu.Lock()
	o.state = Resolving
	o.mu.Unlock()
	go o.dialAttempt(0)
}

func (o *Outbound) dialAttempt(attempt int) {
	o.mu.Lock()
	o.state = Connecting
	o.attempt = attempt
	o.mu.Unlock()

	ctx := context.Background()
	var cancel context.CancelFunc
	if o.opts.ConnectTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, o.opts.ConnectTimeout)
		defer cancel()
	}

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", o.addr)
	if err != nil {
		o.handleDialError(err, attempt)
		return
	}

	o.mu.Lock()
	o.state = Connected
	o.conn = conn
	pending := o.buffer
	o.buffer = nil
	o.bufferSize = 0
	o.mu.Unlock()

	log.Info("outbound connected", "addr", o.addr, "attempt", attempt)

	for _, b := range pending {
		_, _ = conn.Write(b)
	}
	go o.readLoop(conn)
}

func (o *Outbound) handleDialError(err error, attempt int) {
	var kind event.ErrorKind
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		kind = event.ConnectionTimeout
	} else {
		kind = event.ConnectionRefused
	}

	if attempt < o.opts.RetryCount {
		log.Warn("dial failed, retrying", "addr", o.addr, "attempt", attempt, "err", err)
		timer := o.clk.Timer(o.opts.RetryDelay)
		go func() {
			<-timer.C
			o.dialAttempt(attempt + 1)
		}()
		return
	}

	o.mu.Lock()
	o.state = Closed
	o.mu.Unlock()
	log.Warn("dial failed, giving up", "addr", o.addr, "attempts", attempt+1, "err", err)
	if o.Receive != nil {
		o.Receive(event.StreamEnd{Error: kind})
	}
}

// Write sends b if connected, or buffers it (subject to BufferLimit)
// until the connection is established.
func (o *Outbound) Write(b []byte) {
	o.mu.Lock()
	if o.state == Connected && o.conn != nil {
		conn := o.conn
		o.mu.Unlock()
		_, _ = conn.Write(b)
		return
	}
	if o.opts.BufferLimit > 0 && o.bufferSize+len(b) > o.opts.BufferLimit {
		o.discarded += len(b)
		o.mu.Unlock()
		log.Warn("outbound buffer overflow, discarding", "addr", o.addr, "discarded", len(b))
		return
	}
	o.buffer = append(o.buffer, b)
	o.bufferSize += len(b)
	o.mu.Unlock()
}

// End half-closes the write side: no more Write calls are expected.
func (o *Outbound) End() {
	o.mu.Lock()
	o.writeClosed = true
	conn := o.conn
	o.mu.Unlock()
	if conn != nil {
		if cw, ok := conn.(interface{ CloseWrite() error }); ok {
			_ = cw.CloseWrite()
		}
	}
	o.maybeClose()
}

func (o *Outbound) readLoop(conn net.Conn) {
	buf := make([]byte, 16*1024)
	for {
		if o.opts.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(o.opts.IdleTimeout))
		}
		n, err := conn.Read(buf)
		if n > 0 {
			b := make([]byte, n)
			copy(b, buf[:n])
			if o.Receive != nil {
				o.Receive(event.NewData(b))
			}
		}
		if err != nil {
			kind := classifyReadErr(err)
			o.mu.Lock()
			o.readClosed = true
			o.mu.Unlock()
			if o.Receive != nil {
				o.Receive(event.StreamEnd{Error: kind})
			}
			o.maybeClose()
			return
		}
	}
}

func classifyReadErr(err error) event.ErrorKind {
	if err == io.EOF {
		return event.NoError
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return event.IdleTimeout
	}
	return event.ReadError
}

func (o *Outbound) maybeClose() {
	o.mu.Lock()
	done := o.writeClosed && o.readClosed
	o.mu.Unlock()
	if done {
		o.Close()
	}
}

// Close tears the connection down immediately.
func (o *Outbound) Close() {
	o.mu.Lock()
	if o.state == Closed {
		o.mu.Unlock()
		return
	}
	o.state = Closed
	conn := o.conn
	o.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}
