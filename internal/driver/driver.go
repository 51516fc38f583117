package driver

import (
	"context"
	"time"
)

// State represents the lifecycle state of a child process.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped" // killed by the supervisor
	StateExited   State = "exited"  // exited on its own
)

// ProcessInfo holds runtime information about a child process.
type ProcessInfo struct {
	PID       int
	State     State
	StartedAt time.Time
	ExitCode  int
	Error     string
}

// Driver is the lifecycle interface the supervisor uses for its child.
type Driver interface {
	// Start launches the process and returns immediately.
	Start(ctx context.Context) error

	// Stop terminates the process group and waits for the process to exit.
	// A zero timeout sends SIGKILL straight away; otherwise SIGTERM is sent
	// first and SIGKILL follows once the timeout elapses.
	Stop(ctx context.Context, timeout time.Duration) error

	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}

	// Info returns current process state and metadata.
	Info() ProcessInfo
}
