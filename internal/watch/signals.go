package watch

import "sync"

// Signals is an unbounded queue of unit change signals. Producers never
// block; the queue is represented as a pending count plus a wake channel.
type Signals struct {
	mu      sync.Mutex
	pending int
	wake    chan struct{}
}

// NewSignals returns an empty queue.
func NewSignals() *Signals {
	return &Signals{wake: make(chan struct{}, 1)}
}

// Notify enqueues one signal.
func (s *Signals) Notify() {
	s.mu.Lock()
	s.pending++
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of signals not yet consumed.
func (s *Signals) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// take removes and returns every pending signal.
func (s *Signals) take() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.pending
	s.pending = 0
	return n
}
