//go:build !windows

package process

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/loykin/ocsup/internal/waitfor"
)

const (
	gracePeriod = 2 * time.Second
	killWait    = 3 * time.Second
)

type posixStrategy struct {
	log   *slog.Logger
	grace time.Duration
	kill  time.Duration
}

// NewStrategy returns the strategy for the running platform.
func NewStrategy(log *slog.Logger) Strategy {
	if log == nil {
		log = slog.Default()
	}
	return &posixStrategy{log: log, grace: gracePeriod, kill: killWait}
}

func (s *posixStrategy) Verify(path string) error {
	if !hasPathSeparator(path) {
		if _, err := exec.LookPath(path); err != nil {
			s.log.Debug("command not found on PATH, leaving lookup to spawn", "command", path, "error", err)
		}
		return nil
	}
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w at '%s'", ErrNotFound, path)
	}
	if fi.IsDir() {
		return fmt.Errorf("%w: '%s' is a directory", ErrNotExecutable, path)
	}
	if err := unix.Access(path, unix.X_OK); err != nil {
		return fmt.Errorf("%w: '%s'", ErrNotExecutable, path)
	}
	return nil
}

func (s *posixStrategy) Start(c Command) (*Handle, error) {
	var cmd *exec.Cmd
	if c.Shell != "" {
		cmd = shellCommand(c.Shell)
	} else {
		// #nosec G204
		cmd = exec.Command(c.Path, c.Args...)
	}
	return spawn(cmd, c)
}

// Stop sends SIGTERM to the process group, escalates to SIGKILL after the grace
// period and then waits a little longer for the reaper. Signal errors are ignored:
// the group may already be gone.
func (s *posixStrategy) Stop(h *Handle) {
	if h == nil {
		return
	}
	pid := h.PID()
	_ = signalGroup(pid, syscall.SIGTERM)
	if waitfor.Exit(h.Done(), s.grace) {
		return
	}
	s.log.Debug("process ignored SIGTERM, sending SIGKILL", "pid", pid, "grace", s.grace)
	_ = signalGroup(pid, syscall.SIGKILL)
	if !waitfor.Exit(h.Done(), s.kill) {
		s.log.Warn("process did not exit after SIGKILL", "pid", pid, "waited", s.grace+s.kill)
	}
}
