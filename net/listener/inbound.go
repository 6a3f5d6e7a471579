package listener

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pipeflow/pipeflow/internal/telemetry/logger"
	"github.com/pipeflow/pipeflow/pipeline"
	"github.com/pipeflow/pipeflow/pipeline/event"
)

// Inbound drives one accepted connection's worth of a Listener's
// pipeline.Layout: it reads bytes into Data events, feeds them through
// the allocated Pipeline, and writes whatever the pipeline emits back to
// the socket.
type Inbound struct {
	listener *Listener
	conn     net.Conn
	id       string

	pipeline *pipeline.Pipeline

	mu           sync.Mutex
	readClosed   bool
	writeClosed  bool
	closed       bool
}

// ConnectionID returns the connection's unique id.
func (ib *Inbound) ConnectionID() string { return ib.id }

// LocalAddr satisfies pipeline.InboundHandle.
func (ib *Inbound) LocalAddr() string { return ib.conn.LocalAddr().String() }

// RemoteAddr satisfies pipeline.InboundHandle.
func (ib *Inbound) RemoteAddr() string { return ib.conn.RemoteAddr().String() }

var _ pipeline.InboundHandle = (*Inbound)(nil)

func newInbound(l *Listener, conn net.Conn) *Inbound {
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
		_ = tc.SetKeepAlive(true)
	}
	return &Inbound{
		listener: l,
		conn:     conn,
		id:       uuid.NewString(),
	}
}

// run allocates a Pipeline from the Listener's layout and pumps events
// between the socket and the pipeline until the stream ends.
func (ib *Inbound) run() {
	ib.pipeline = ib.listener.layout.Alloc(ib)
	ib.pipeline.SetOutput(ib.onPipelineEvent)

	accessLog := logger.Access()
	start := time.Now()

	ib.pipeline.OnEvent(event.StreamStart{})
	go ib.readLoop()

	defer func() {
		accessLog.Info("inbound stream closed",
			zap.String("conn_id", ib.id),
			zap.String("remote", ib.RemoteAddr()),
			zap.Duration("duration", time.Since(start)))
	}()
}

func (ib *Inbound) readLoop() {
	buf := make([]byte, 16*1024)
	for {
		if ib.listener.opts.ReadTimeout > 0 {
			_ = ib.conn.SetReadDeadline(time.Now().Add(ib.listener.opts.ReadTimeout))
		}
		n, err := ib.conn.Read(buf)
		if n > 0 {
			b := make([]byte, n)
			copy(b, buf[:n])
			ib.pipeline.OnEvent(event.NewData(b))
		}
		if err != nil {
			kind := event.ReadError
			if err == io.EOF {
				kind = event.NoError
			} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
				kind = event.ReadTimeout
			}
			ib.finishRead(kind)
			return
		}
	}
}

func (ib *Inbound) finishRead(kind event.ErrorKind) {
	ib.mu.Lock()
	ib.readClosed = true
	closeEOF := ib.listener.opts.CloseEOF
	ib.mu.Unlock()

	ib.pipeline.OnEvent(event.StreamEnd{Error: kind})

	// close_eof: tear the whole connection down as soon as the read side
	// sees EOF/error, instead of waiting for the pipeline's own output
	// side to also finish — matches the original's m_options.close_eof.
	if closeEOF {
		ib.close()
		return
	}
	ib.maybeClose()
}

// onPipelineEvent writes the pipeline's output back to the socket; a
// StreamEnd from the pipeline finishes the write side.
func (ib *Inbound) onPipelineEvent(evt event.Event) {
	switch e := evt.(type) {
	case event.Data:
		e.Chunks.Iterate(func(b []byte) bool {
			if ib.listener.opts.WriteTimeout > 0 {
				_ = ib.conn.SetWriteDeadline(time.Now().Add(ib.listener.opts.WriteTimeout))
			}
			_, err := ib.conn.Write(b)
			return err == nil
		})
	case event.StreamEnd:
		ib.mu.Lock()
		ib.writeClosed = true
		ib.mu.Unlock()
		if tc, ok := ib.conn.(interface{ CloseWrite() error }); ok {
			_ = tc.CloseWrite()
		}
		ib.maybeClose()
	}
}

func (ib *Inbound) maybeClose() {
	ib.mu.Lock()
	done := ib.readClosed && ib.writeClosed
	ib.mu.Unlock()
	if done {
		ib.close()
	}
}

func (ib *Inbound) close() {
	ib.mu.Lock()
	if ib.closed {
		ib.mu.Unlock()
		return
	}
	ib.closed = true
	ib.mu.Unlock()

	ib.pipeline.Shutdown()
	_ = ib.conn.Close()
	ib.pipeline.Recycle()
	ib.listener.forget(ib)
}

// Close forcibly tears down the connection and its pipeline.
func (ib *Inbound) Close() error {
	ib.close()
	return nil
}
