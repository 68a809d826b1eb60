//go:build windows

package process

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/loykin/ocsup/internal/waitfor"
)

const treeKillWait = 5 * time.Second

type windowsStrategy struct {
	log  *slog.Logger
	wait time.Duration
}

// NewStrategy returns the strategy for the running platform.
func NewStrategy(log *slog.Logger) Strategy {
	if log == nil {
		log = slog.Default()
	}
	return &windowsStrategy{log: log, wait: treeKillWait}
}

func (s *windowsStrategy) Verify(path string) error {
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
	// LookPath on Windows rejects files whose extension is not in PATHEXT.
	if _, err := exec.LookPath(path); err != nil {
		return fmt.Errorf("%w: '%s'", ErrNotExecutable, path)
	}
	return nil
}

func (s *windowsStrategy) Start(c Command) (*Handle, error) {
	var cmd *exec.Cmd
	if c.Shell != "" {
		cmd = shellCommand(c.Shell)
	} else {
		cmd = viaShell(c.Path, c.Args)
	}
	return spawn(cmd, c)
}

// Stop force-kills the whole tree rooted at the handle's PID and waits for the exit.
func (s *windowsStrategy) Stop(h *Handle) {
	if h == nil {
		return
	}
	pid := h.PID()
	if err := killTree(pid); err != nil {
		s.log.Debug("taskkill failed", "pid", pid, "error", err)
	}
	if !waitfor.Exit(h.Done(), s.wait) {
		s.log.Warn("process did not exit after taskkill", "pid", pid, "waited", s.wait)
	}
}
