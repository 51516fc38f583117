// Package cycle runs the rebuild loop: on every trigger it replaces the
// child server with a fresh one and tracks whether the newest child is still
// starting (Building) or ready to serve (Running).
package cycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/modelfoxdotdev/sunfish/internal/driver"
	"github.com/modelfoxdotdev/sunfish/internal/gate"
	"github.com/modelfoxdotdev/sunfish/internal/journal"
	"github.com/modelfoxdotdev/sunfish/internal/logbuf"
	"github.com/modelfoxdotdev/sunfish/internal/metrics"
	"github.com/modelfoxdotdev/sunfish/internal/probe"
	"github.com/modelfoxdotdev/sunfish/internal/state"
)

// State is the phase of the current cycle.
type State string

const (
	StateGround   State = "ground"   // no child spawned yet
	StateBuilding State = "building" // child spawned, not yet ready
	StateRunning  State = "running"  // child ready, or gave up waiting on it
)

var allStates = []string{string(StateGround), string(StateBuilding), string(StateRunning)}

// Config describes the child and how it is supervised.
type Config struct {
	Command       string
	ChildHost     string
	ChildPort     int
	WorkingDir    string
	ProbeInterval time.Duration
	ReadyTimeout  time.Duration // 0 waits for the child indefinitely
	KillTimeout   time.Duration // 0 kills immediately
}

// ChildAddr returns the host:port the child is told to bind.
func (c Config) ChildAddr() string {
	return net.JoinHostPort(c.ChildHost, strconv.Itoa(c.ChildPort))
}

// Options carries the supervisor's collaborators. Every field is optional.
type Options struct {
	Logger  *slog.Logger
	Output  *logbuf.Ring // shared child output buffer
	Stdout  io.Writer    // child stdout is copied here as well
	Stderr  io.Writer
	Metrics *metrics.Metrics
	State   *state.File
	Journal *journal.Journal
}

// Status is a snapshot of the supervisor for reporting.
type Status struct {
	State         State        `json:"state"`
	Cycle         uint64       `json:"cycle"`
	BuildID       string       `json:"build_id,omitempty"`
	PID           int          `json:"pid,omitempty"`
	ChildAddr     string       `json:"child_addr"`
	ChildState    driver.State `json:"child_state,omitempty"`
	ExitCode      int          `json:"exit_code,omitempty"`
	ReadyReason   probe.Reason `json:"ready_reason,omitempty"`
	BuildDuration float64      `json:"build_duration_seconds,omitempty"`
	Uptime        string       `json:"uptime,omitempty"`
}

// Supervisor owns the cycle. Run is the only writer; Admit and Status may be
// called from any goroutine.
type Supervisor struct {
	cfg     Config
	logger  *slog.Logger
	output  *logbuf.Ring
	stdout  io.Writer
	stderr  io.Writer
	metrics *metrics.Metrics
	state   *state.File
	journal *journal.Journal

	mu            sync.Mutex
	phase         State
	gate          *gate.Gate // set while Building
	child         driver.Driver
	cycle         uint64
	buildID       string
	readyReason   probe.Reason
	buildDuration time.Duration
	readyAt       time.Time
}

// New creates a supervisor in the Ground state.
func New(cfg Config, opts Options) *Supervisor {
	s := &Supervisor{
		cfg:     cfg,
		logger:  opts.Logger,
		output:  opts.Output,
		stdout:  opts.Stdout,
		stderr:  opts.Stderr,
		metrics: opts.Metrics,
		state:   opts.State,
		journal: opts.Journal,
		phase:   StateGround,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "cycle")
	if s.metrics != nil {
		s.metrics.SetState(string(StateGround), allStates...)
	}
	return s
}

// Admit returns the gate a new request must wait on, or nil if the request
// may proceed now. The returned gate belongs to the cycle current at the
// time of the call; later cycles never affect it.
func (s *Supervisor) Admit() *gate.Gate {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == StateBuilding {
		return s.gate
	}
	return nil
}

// Status returns a snapshot of the current cycle.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:         s.phase,
		Cycle:         s.cycle,
		BuildID:       s.buildID,
		ChildAddr:     s.cfg.ChildAddr(),
		ReadyReason:   s.readyReason,
		BuildDuration: s.buildDuration.Seconds(),
	}
	if s.child != nil {
		info := s.child.Info()
		st.PID = info.PID
		st.ChildState = info.State
		st.ExitCode = info.ExitCode
	}
	if s.phase == StateRunning && !s.readyAt.IsZero() {
		st.Uptime = time.Since(s.readyAt).Round(time.Second).String()
	}
	return st
}

// Run performs the initial build, then one rebuild per value received from
// triggers. It returns nil when triggers is closed or ctx is done, and an
// error if a child cannot be spawned. The current child is killed on return.
func (s *Supervisor) Run(ctx context.Context, triggers <-chan int) error {
	defer s.shutdown()

	if err := s.rebuild(ctx, 0); err != nil {
		return ignoreCanceled(ctx, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-triggers:
			if !ok {
				s.logger.Debug("trigger channel closed")
				return nil
			}
			if err := s.rebuild(ctx, n); err != nil {
				return ignoreCanceled(ctx, err)
			}
		}
	}
}

func ignoreCanceled(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

// rebuild runs one cycle: kill the running child, spawn a new one, wait for
// it to become ready, release everyone queued on its gate.
func (s *Supervisor) rebuild(ctx context.Context, signals int) error {
	s.mu.Lock()
	prev := s.child
	running := s.phase == StateRunning
	s.mu.Unlock()

	if running && prev != nil {
		pid := prev.Info().PID
		s.logger.Info("stopping child", "pid", pid)
		err := prev.Stop(ctx, s.cfg.KillTimeout)
		s.record(journal.Entry{Action: journal.ActionKill, Cycle: s.cycle, BuildID: s.buildID, PID: pid})
		if err != nil {
			return fmt.Errorf("stopping child %d: %w", pid, err)
		}
	}

	g := gate.New()
	cycle := s.cycle + 1
	buildID := uuid.NewString()

	if s.output != nil {
		s.output.Mark("cycle %d build %s", cycle, buildID)
	}

	child := driver.NewNative(driver.NativeConfig{
		Command:    s.cfg.Command,
		Env:        []string{"HOST=" + s.cfg.ChildHost, "PORT=" + strconv.Itoa(s.cfg.ChildPort)},
		WorkingDir: s.cfg.WorkingDir,
		Stdout:     s.sink(s.stdout),
		Stderr:     s.sink(s.stderr),
	})
	spawned := time.Now()
	if err := child.Start(ctx); err != nil {
		s.record(journal.Entry{Action: journal.ActionSpawn, Cycle: cycle, BuildID: buildID, Signals: signals, Error: err.Error()})
		return fmt.Errorf("spawning child: %w", err)
	}
	pid := child.Info().PID

	s.mu.Lock()
	s.phase = StateBuilding
	s.gate = g
	s.child = child
	s.cycle = cycle
	s.buildID = buildID
	s.readyReason = ""
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.Rebuilds.Inc()
		s.metrics.SetState(string(StateBuilding), allStates...)
	}
	s.persist(child, cycle, buildID, spawned)
	s.record(journal.Entry{Action: journal.ActionSpawn, Cycle: cycle, BuildID: buildID, PID: pid, Signals: signals})
	s.logger.Info("child started", "cycle", cycle, "pid", pid, "build_id", buildID, "signals", signals)

	reason, err := probe.Wait(ctx, probe.Config{
		Addr:     s.cfg.ChildAddr(),
		Interval: s.cfg.ProbeInterval,
		Timeout:  s.cfg.ReadyTimeout,
	}, child.Done(), s.logger)
	elapsed := time.Since(spawned)

	s.mu.Lock()
	s.phase = StateRunning
	s.gate = nil
	s.readyReason = reason
	s.buildDuration = elapsed
	s.readyAt = time.Now()
	s.mu.Unlock()
	g.Open()

	if s.metrics != nil {
		s.metrics.SetState(string(StateRunning), allStates...)
	}
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.BuildDuration.WithLabelValues(string(reason)).Observe(elapsed.Seconds())
	}
	ready := journal.Entry{Action: journal.ActionReady, Cycle: cycle, BuildID: buildID, PID: pid, Reason: string(reason), DurationMS: elapsed.Milliseconds()}
	if reason == probe.ReasonExited {
		code := child.Info().ExitCode
		ready.ExitCode = &code
	}
	s.record(ready)

	switch reason {
	case probe.ReasonExited:
		info := child.Info()
		attrs := []any{"cycle", cycle, "exit_code", info.ExitCode}
		if s.output != nil {
			attrs = append(attrs, "output", s.output.Last(5))
		}
		s.logger.Warn("child exited before listening", attrs...)
	case probe.ReasonListening:
		s.logger.Info("child ready", "cycle", cycle, "pid", pid, "duration", elapsed.Round(time.Millisecond))
		go s.watchExit(child, cycle)
	default:
		go s.watchExit(child, cycle)
	}
	return nil
}

// watchExit logs a child that dies on its own while it is current.
func (s *Supervisor) watchExit(child driver.Driver, cycle uint64) {
	<-child.Done()
	info := child.Info()
	if info.State != driver.StateExited {
		return
	}
	s.mu.Lock()
	current := s.cycle == cycle
	s.mu.Unlock()
	if current {
		s.logger.Warn("child exited", "cycle", cycle, "pid", info.PID, "exit_code", info.ExitCode)
	}
}

func (s *Supervisor) sink(w io.Writer) io.Writer {
	switch {
	case w == nil && s.output == nil:
		return nil
	case w == nil:
		return s.output
	case s.output == nil:
		return w
	default:
		return io.MultiWriter(w, s.output)
	}
}

func (s *Supervisor) record(e journal.Entry) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Record(e); err != nil {
		s.logger.Warn("failed to write journal", "error", err)
	}
}

func (s *Supervisor) persist(child driver.Driver, cycle uint64, buildID string, started time.Time) {
	if s.state == nil {
		return
	}
	err := s.state.Save(state.ChildRecord{
		PID:           child.Info().PID,
		SupervisorPID: os.Getpid(),
		Command:       s.cfg.Command,
		Cycle:         cycle,
		BuildID:       buildID,
		StartedAt:     started.Unix(),
	})
	if err != nil {
		s.logger.Warn("failed to persist child state", "error", err)
	}
}

func (s *Supervisor) shutdown() {
	s.mu.Lock()
	child := s.child
	s.mu.Unlock()

	if child != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.KillTimeout+5*time.Second)
		defer cancel()
		alive := child.Info().State == driver.StateRunning
		if err := child.Stop(ctx, s.cfg.KillTimeout); err != nil {
			s.logger.Warn("error stopping child", "error", err)
		}
		if alive {
			s.record(journal.Entry{Action: journal.ActionKill, Cycle: s.cycle, BuildID: s.buildID, PID: child.Info().PID})
		}
	}
	if s.state != nil {
		if err := s.state.Clear(); err != nil {
			s.logger.Warn("failed to clear child state", "error", err)
		}
	}
}
