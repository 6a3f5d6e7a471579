package mux

import (
	"container/list"
	"sort"
	"sync"
	"time"
)

// SessionCluster groups every Session created for one multiplexing key
// (e.g. a target host:port). acquire implements the admission rule that
// lets many independently-constructed muxers share one Session: scan the
// cluster's not-closed, not-retiring sessions for the one with the
// lowest share_count that still has share_count < MaxQueue and
// message_count < MaxMessages, admit onto it; only when none qualify is
// a fresh Session created. The owning SessionPool's recycling scan
// evicts sessions whose share_count has sat at zero longer than MaxIdle.
type SessionCluster struct {
	key     any
	options Options

	mu       sync.Mutex
	sessions *list.List // every session for this key, sorted ascending by share_count

	pool *SessionPool
}

func newCluster(pool *SessionPool, key any, opts Options) *SessionCluster {
	return &SessionCluster{
		key:      key,
		options:  opts,
		sessions: list.New(),
		pool:     pool,
	}
}

// acquire returns a Session admitting one more stream under opts,
// incrementing its share_count and message_count. If the chosen Session
// is still pending (its downstream connection hasn't confirmed ready),
// acquire parks resume on it and returns (session, false); resume fires
// exactly once, with that session, after it becomes ready. Otherwise it
// returns (session, true) immediately and resume is never called.
func (c *SessionCluster) acquire(opts Options, resume func(*Session)) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var best *Session
	for e := c.sessions.Front(); e != nil; e = e.Next() {
		s := e.Value.(*Session)
		if s.closed || s.retiring {
			continue
		}
		if opts.MaxQueue > 0 && s.shareCount >= opts.MaxQueue {
			continue
		}
		if opts.MaxMessages > 0 && s.messageCount >= opts.MaxMessages {
			continue
		}
		if best == nil || s.shareCount < best.shareCount {
			best = s
		}
	}
	if best == nil {
		best = c.pool.createSession(c)
		c.sessions.PushBack(best)
	}

	best.shareCount++
	best.messageCount++
	if opts.MaxMessages > 0 && best.messageCount >= opts.MaxMessages {
		best.retiring = true
	}
	c.resortLocked()

	if best.pending {
		best.waiting = append(best.waiting, resume)
		return best, false
	}
	return best, true
}

// onSessionReady is called once s's downstream connection is confirmed
// ready (its Factory readiness channel closed). It flips s out of
// pending and flushes every muxer parked on it, in arrival order.
func (c *SessionCluster) onSessionReady(s *Session) {
	c.mu.Lock()
	s.pending = false
	waiters := s.waiting
	s.waiting = nil
	c.mu.Unlock()

	for _, resume := range waiters {
		resume(s)
	}
}

// resortLocked rebuilds c.sessions in ascending share_count order. mu
// must be held.
func (c *SessionCluster) resortLocked() {
	sessions := make([]*Session, 0, c.sessions.Len())
	for e := c.sessions.Front(); e != nil; e = e.Next() {
		sessions = append(sessions, e.Value.(*Session))
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].shareCount < sessions[j].shareCount
	})
	c.sessions.Init()
	for _, s := range sessions {
		c.sessions.PushBack(s)
	}
}

// release decrements s's share_count by one, stamping its idle time once
// the count reaches zero. A session that is retiring or already done is
// discarded as soon as it goes idle instead of being kept around for
// reuse.
func (c *SessionCluster) release(s *Session) {
	c.mu.Lock()
	if s.shareCount > 0 {
		s.shareCount--
	}
	c.resortLocked()
	idle := s.shareCount == 0
	var discard bool
	if idle {
		s.idleSince = c.pool.clock().Now()
		discard = s.retiring || s.IsDone()
	}
	c.mu.Unlock()

	if discard {
		c.discard(s)
	}
}

func (c *SessionCluster) discard(s *Session) {
	c.mu.Lock()
	for e := c.sessions.Front(); e != nil; e = e.Next() {
		if e.Value.(*Session) == s {
			c.sessions.Remove(e)
			break
		}
	}
	empty := c.sessions.Len() == 0
	c.mu.Unlock()
	s.Close()
	if empty {
		c.pool.discardCluster(c.key)
	}
}

// recycleIdle closes every session that has been idle (share_count zero
// and not pending) longer than maxIdle as of now, returning true if the
// cluster is now empty (and should be discarded by the pool).
func (c *SessionCluster) recycleIdle(now time.Time, maxIdle time.Duration) bool {
	c.mu.Lock()
	var expired []*Session
	for e := c.sessions.Front(); e != nil; {
		next := e.Next()
		s := e.Value.(*Session)
		if s.shareCount == 0 && !s.pending && now.Sub(s.idleSince) >= maxIdle {
			c.sessions.Remove(e)
			expired = append(expired, s)
		}
		e = next
	}
	empty := c.sessions.Len() == 0
	c.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
	return empty
}
