package mux

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/pipeflow/pipeflow/internal/telemetry/logger"
	"github.com/pipeflow/pipeflow/pipeline"
)

var poolLog = logger.Logger("mux-session-pool")

// Factory builds the downstream Pipeline a new Session wraps, for the
// given multiplexing key. Factory must return promptly: any actual dial
// or handshake work happens after it returns, signaled by closing the
// returned channel once the connection is ready to carry traffic. A nil
// channel means the Pipeline is ready immediately — the common case for
// purely in-process downstream pipelines.
type Factory func(key any) (*pipeline.Pipeline, <-chan struct{})

// SessionPool owns every SessionCluster keyed by multiplexing key and
// runs a once-per-second scan (an injectable clock.Clock, so tests don't
// sleep) recycling sessions whose share count has sat at zero longer
// than their cluster's MaxIdle.
type SessionPool struct {
	options Options
	factory Factory
	clk     clock.Clock

	mu       sync.Mutex
	clusters map[any]*SessionCluster

	stop     chan struct{}
	stopped  bool
	doneScan chan struct{}
}

// NewSessionPool creates a pool that builds downstream pipelines via
// factory and starts its recycling scan immediately.
func NewSessionPool(factory Factory, opts Options) *SessionPool {
	return NewSessionPoolWithClock(factory, opts, clock.New())
}

// NewSessionPoolWithClock is NewSessionPool with an injectable clock, for
// deterministic idle-recycling tests.
func NewSessionPoolWithClock(factory Factory, opts Options, clk clock.Clock) *SessionPool {
	p := &SessionPool{
		options:  opts.withDefaults(),
		factory:  factory,
		clk:      clk,
		clusters: make(map[any]*SessionCluster),
		stop:     make(chan struct{}),
		doneScan: make(chan struct{}),
	}
	ticker := clk.Ticker(time.Second)
	go p.scanLoop(ticker)
	return p
}

func (p *SessionPool) clock() clock.Clock { return p.clk }

func (p *SessionPool) isShutdown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// clusterFor returns key's SessionCluster, creating it if this is the
// first stream ever presenting key.
func (p *SessionPool) clusterFor(key any) *SessionCluster {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.clusters[key]
	if !ok {
		c = newCluster(p, key, p.options)
		p.clusters[key] = c
	}
	return c
}

// createSession builds a fresh Session for cluster via the pool's
// Factory. If the Factory reports a readiness channel, the Session
// starts pending and a goroutine flips it ready once that channel
// closes, flushing whatever muxers accumulated on it in the meantime.
// Called by SessionCluster.acquire with its mu already held, so the
// Factory call itself must not block.
func (p *SessionPool) createSession(c *SessionCluster) *Session {
	down, ready := p.factory(c.key)
	s := newSession(c, down)
	if ready == nil {
		return s
	}
	s.pending = true
	go func() {
		<-ready
		c.onSessionReady(s)
	}()
	return s
}

// Alloc checks out a Session for key directly, bypassing the muxer
// layer: mainly useful for tests and callers that want raw session
// checkout/release rather than QueueMuxer's streams. Sessions it returns
// are shared under the same share-count rule as QueueMuxer's.
// Alloc blocks until the chosen Session is ready.
func (p *SessionPool) Alloc(key any) (*Session, error) {
	if p.isShutdown() {
		return nil, ErrPoolShutdown
	}
	c := p.clusterFor(key)
	readyCh := make(chan *Session, 1)
	s, ready := c.acquire(p.options, func(sess *Session) { readyCh <- sess })
	if !ready {
		s = <-readyCh
	}
	poolLog.Debug("session allocated", "key", key)
	return s, nil
}

// Release decrements s's share count by one (discarding it, if it went
// idle while retiring or done).
func (p *SessionPool) Release(s *Session) {
	s.cluster.release(s)
}

func (p *SessionPool) discardCluster(key any) {
	p.mu.Lock()
	delete(p.clusters, key)
	p.mu.Unlock()
}

// scanLoop recycles idle sessions once per second, matching the
// original's fixed recycling interval. Shutdown ends the loop with one
// final scan that uses a MaxIdle of zero, recycling every idle session.
func (p *SessionPool) scanLoop(ticker *clock.Ticker) {
	defer close(p.doneScan)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			p.recycleAll(true)
			return
		case <-ticker.C:
			p.recycleAll(false)
		}
	}
}

func (p *SessionPool) recycleAll(forceAll bool) {
	now := p.clk.Now()
	p.mu.Lock()
	clusters := make([]*SessionCluster, 0, len(p.clusters))
	for _, c := range p.clusters {
		clusters = append(clusters, c)
	}
	p.mu.Unlock()

	for _, c := range clusters {
		maxIdle := c.options.MaxIdle
		if forceAll {
			maxIdle = 0
		}
		if empty := c.recycleIdle(now, maxIdle); empty {
			p.discardCluster(c.key)
		}
	}
}

// Shutdown stops the scan loop and recycles every idle session
// immediately; sessions currently checked out finish on their own.
func (p *SessionPool) Shutdown() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.stop)
	<-p.doneScan
}
