package cycle

import (
	"log/slog"
	"os"

	"github.com/modelfoxdotdev/sunfish/internal/driver"
	"github.com/modelfoxdotdev/sunfish/internal/state"
)

// ReapStale kills the child recorded in f if the supervisor that spawned it
// is gone. A record whose supervisor is still alive belongs to another
// running instance and is left alone. It reports whether a child was killed.
func ReapStale(f *state.File, logger *slog.Logger) (bool, error) {
	rec, err := f.Load()
	if err != nil || rec == nil {
		return false, err
	}

	if rec.SupervisorPID != os.Getpid() && driver.Alive(rec.SupervisorPID) {
		logger.Warn("child state owned by a live supervisor, not reaping",
			"supervisor_pid", rec.SupervisorPID, "pid", rec.PID, "state_file", f.Path())
		return false, nil
	}

	killed, err := driver.Reap(rec.PID, rec.Command)
	if err != nil {
		return false, err
	}
	if killed {
		logger.Info("killed stale child", "pid", rec.PID, "cycle", rec.Cycle, "build_id", rec.BuildID)
	}
	return killed, f.Clear()
}
