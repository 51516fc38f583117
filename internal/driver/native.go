package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// waitDelay bounds how long Wait keeps copying output after the shell exits,
// in case a grandchild escaped the process group and still holds the pipes.
const waitDelay = 2 * time.Second

// Native runs a shell command as a child process in its own process group.
type Native struct {
	command    string
	env        []string
	workingDir string
	stdout     io.Writer
	stderr     io.Writer

	mu        sync.Mutex
	cmd       *exec.Cmd
	state     State
	startedAt time.Time
	exitCode  int
	exitErr   string
	done      chan struct{}
}

// NativeConfig holds configuration for a native child.
type NativeConfig struct {
	Command    string    // passed to `sh -c`
	Env        []string  // appended to the supervisor's environment
	WorkingDir string
	Stdout     io.Writer // nil discards
	Stderr     io.Writer // nil discards
}

// NewNative creates a driver for cfg. The process is not started.
func NewNative(cfg NativeConfig) *Native {
	return &Native{
		command:    cfg.Command,
		env:        cfg.Env,
		workingDir: cfg.WorkingDir,
		stdout:     cfg.Stdout,
		stderr:     cfg.Stderr,
		state:      StateIdle,
		done:       make(chan struct{}),
	}
}

// Shell returns the path of the platform shell used to run commands.
func Shell() (string, error) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		return "", fmt.Errorf("locating sh: %w", err)
	}
	return sh, nil
}

// Start spawns `sh -c <command>`. Cancelling ctx kills the whole process group.
func (d *Native) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateIdle {
		return fmt.Errorf("process already started")
	}

	sh, err := Shell()
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, sh, "-c", d.command)
	cmd.Env = append(os.Environ(), d.env...)
	cmd.Dir = d.workingDir
	cmd.Stdout = d.stdout
	cmd.Stderr = d.stderr
	// Own process group so kill(-pid) reaches everything sh spawned.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return killGroup(cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = waitDelay

	if err := cmd.Start(); err != nil {
		d.state = StateExited
		d.exitErr = err.Error()
		close(d.done)
		return fmt.Errorf("starting process: %w", err)
	}

	d.cmd = cmd
	d.state = StateRunning
	d.startedAt = time.Now()

	go d.wait()
	return nil
}

func (d *Native) wait() {
	err := d.cmd.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateStopping {
		d.state = StateStopped
	} else {
		d.state = StateExited
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		d.exitCode = 0
	case errors.As(err, &exitErr):
		d.exitCode = exitErr.ExitCode()
		d.exitErr = err.Error()
	default:
		d.exitCode = -1
		d.exitErr = err.Error()
	}

	close(d.done)
}

// Stop terminates the process group and blocks until the child is reaped.
// Stopping a child that already exited, or was never started, is not an error.
func (d *Native) Stop(ctx context.Context, timeout time.Duration) error {
	d.mu.Lock()
	if d.state != StateRunning {
		d.mu.Unlock()
		if d.state == StateIdle {
			return nil
		}
		<-d.done
		return nil
	}
	d.state = StateStopping
	pid := d.cmd.Process.Pid
	d.mu.Unlock()

	if timeout <= 0 {
		_ = killGroup(pid, unix.SIGKILL)
		<-d.done
		return nil
	}

	_ = killGroup(pid, unix.SIGTERM)

	select {
	case <-d.done:
		return nil
	case <-time.After(timeout):
		_ = killGroup(pid, unix.SIGKILL)
		<-d.done
		return nil
	case <-ctx.Done():
		_ = killGroup(pid, unix.SIGKILL)
		<-d.done
		return ctx.Err()
	}
}

// Done is closed once the process has exited.
func (d *Native) Done() <-chan struct{} {
	return d.done
}

func (d *Native) Info() ProcessInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	info := ProcessInfo{
		State:     d.state,
		StartedAt: d.startedAt,
		ExitCode:  d.exitCode,
		Error:     d.exitErr,
	}
	if d.cmd != nil && d.cmd.Process != nil {
		info.PID = d.cmd.Process.Pid
	}
	return info
}

func killGroup(pid int, sig unix.Signal) error {
	if err := unix.Kill(-pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("signalling process group %d: %w", pid, err)
	}
	return nil
}
