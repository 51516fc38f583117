package driver

import (
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"
)

// Alive reports whether a process with the given PID currently exists.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}

// Reap kills a child left behind by an earlier supervisor run. The PID is
// only trusted if the live process's command line still contains command;
// otherwise the PID has been reused and nothing is signalled. It reports
// whether a process was killed.
func Reap(pid int, command string) (bool, error) {
	if !Alive(pid) {
		return false, nil
	}

	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false, nil
	}
	cmdline, err := p.Cmdline()
	if err != nil {
		return false, fmt.Errorf("reading command line of pid %d: %w", pid, err)
	}
	if command == "" || !strings.Contains(cmdline, command) {
		return false, nil
	}

	// Children run as process group leaders; take the whole group down.
	if err := killGroup(pid, unix.SIGKILL); err != nil {
		if err := p.Kill(); err != nil {
			return false, fmt.Errorf("killing stale child %d: %w", pid, err)
		}
	}
	return true, nil
}
