package listener

import "sync"

// signal is a broadcastable, re-armable wakeup: wait() blocks until the
// next broadcast() (or close()), and every waiter present at that moment
// is released.
type signal struct {
	mu sync.Mutex
	ch chan struct{}
}

func newSignal() *signal { return &signal{ch: make(chan struct{})} }

func (s *signal) wait() {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()
	<-ch
}

func (s *signal) broadcast() {
	s.mu.Lock()
	close(s.ch)
	s.ch = make(chan struct{})
	s.mu.Unlock()
}
