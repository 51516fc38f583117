package watch

import (
	"context"
	"time"
)

const (
	DefaultWindow     = 10 * time.Millisecond
	DefaultBatchLimit = 1_000_000
)

// Debounce coalesces raw signals into rebuild triggers. A batch opens with
// its first signal and is emitted once window has elapsed since then, or as
// soon as it holds limit signals. Signals arriving while a trigger is still
// waiting to be received accumulate and form the next batch. Each value sent
// is the number of signals in the batch. The channel is closed when ctx is
// done.
func Debounce(ctx context.Context, s *Signals, window time.Duration, limit int) <-chan int {
	if window <= 0 {
		window = DefaultWindow
	}
	if limit <= 0 {
		limit = DefaultBatchLimit
	}

	out := make(chan int)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
			}

			batch := s.take()
			if batch == 0 {
				continue
			}

			deadline := time.NewTimer(window)
		collect:
			for batch < limit {
				select {
				case <-ctx.Done():
					deadline.Stop()
					return
				case <-deadline.C:
					break collect
				case <-s.wake:
					batch += s.take()
				}
			}
			deadline.Stop()

			select {
			case out <- batch:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
