// Package probe decides when a freshly spawned child is ready to take
// traffic: either it accepts a TCP connection on its address or it has
// already exited.
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// Reason records why a probe returned.
type Reason string

const (
	ReasonListening Reason = "listening"
	ReasonExited    Reason = "exited"
	ReasonTimeout   Reason = "timeout"
)

// DefaultInterval is the pause between connection attempts.
const DefaultInterval = 100 * time.Millisecond

// Config holds probe configuration.
type Config struct {
	Addr     string        // host:port the child is expected to listen on
	Interval time.Duration // time between attempts
	Timeout  time.Duration // give up and report ready after this long; 0 waits forever
}

// Wait polls until the child listens on cfg.Addr or exited is closed. An
// exited child counts as ready so queued requests are released and answered
// with an error instead of hanging. The only error returned is ctx.Err().
func Wait(ctx context.Context, cfg Config, exited <-chan struct{}, logger *slog.Logger) (Reason, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	var deadline <-chan time.Time
	if cfg.Timeout > 0 {
		t := time.NewTimer(cfg.Timeout)
		defer t.Stop()
		deadline = t.C
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	attempts := 0
	for {
		select {
		case <-exited:
			return ReasonExited, nil
		default:
		}

		attempts++
		if err := Check(ctx, cfg.Addr, cfg.Interval); err == nil {
			return ReasonListening, nil
		} else if ctx.Err() != nil {
			return "", ctx.Err()
		} else {
			logger.Debug("child not listening yet", "addr", cfg.Addr, "attempt", attempts, "error", err)
		}

		select {
		case <-ticker.C:
		case <-exited:
			return ReasonExited, nil
		case <-deadline:
			logger.Warn("child did not start listening in time", "addr", cfg.Addr, "timeout", cfg.Timeout)
			return ReasonTimeout, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Check makes a single TCP connection attempt to addr.
func Check(ctx context.Context, addr string, timeout time.Duration) error {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("tcp connect failed: %w", err)
	}
	conn.Close()
	return nil
}
