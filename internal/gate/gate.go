// Package gate provides a single-fire broadcast used to hold requests while
// a build is in progress.
//
// A Gate is created closed-for-passage and opened exactly once. Opening it
// releases every goroutine waiting on it, and any goroutine that waits after
// it has opened passes straight through. Gates are never reset: each build
// gets a fresh one.
package gate

import (
	"context"
	"sync"
)

// Gate is a one-shot broadcast. The zero value is not usable; call New.
type Gate struct {
	once sync.Once
	done chan struct{}
}

// New returns an unopened gate.
func New() *Gate {
	return &Gate{done: make(chan struct{})}
}

// Open releases all current and future waiters. Calls after the first are no-ops.
func (g *Gate) Open() {
	g.once.Do(func() { close(g.done) })
}

// Done returns a channel that is closed when the gate opens.
func (g *Gate) Done() <-chan struct{} {
	return g.done
}

// IsOpen reports whether Open has been called.
func (g *Gate) IsOpen() bool {
	select {
	case <-g.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the gate opens or ctx is done, returning ctx.Err() in the latter case.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
