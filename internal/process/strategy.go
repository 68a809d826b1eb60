// Package process launches and terminates the supervised server process.
//
// A Strategy hides the platform details: process-group creation and group
// signalling on POSIX systems, console-less launch through cmd and tree
// termination with taskkill on Windows. Exactly one implementation is compiled
// in per platform and returned by NewStrategy.
package process

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// waitDelay bounds how long Wait keeps draining output pipes after the process
// itself exited, e.g. when a grandchild still holds stdout open.
const waitDelay = 2 * time.Second

// Strategy is the platform-specific way of running the server.
type Strategy interface {
	// Verify checks that an explicit path exists and is executable.
	// Bare command names are left for the OS to find at spawn time.
	Verify(path string) error
	// Start launches the command in its own process group and returns immediately.
	Start(c Command) (*Handle, error)
	// Stop terminates the process and all of its descendants and returns once the
	// exit is confirmed or the strategy gives up waiting. It never fails.
	Stop(h *Handle)
}

func hasPathSeparator(p string) bool {
	return filepath.IsAbs(p) || strings.ContainsRune(p, '/') || strings.ContainsRune(p, filepath.Separator)
}

// spawn applies the shared Command settings to cmd, starts it and attaches a watcher
// that reaps the process and closes the handle's Done channel.
func spawn(cmd *exec.Cmd, c Command) (*Handle, error) {
	cmd.Dir = c.Dir
	if c.Env != nil {
		cmd.Env = c.Env
	}
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	cmd.WaitDelay = waitDelay
	configureSysProcAttr(cmd)

	if err := checkDir(c.Dir); err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, classifyStartError(c, err)
	}
	h := NewHandle(cmd.Process.Pid)
	go func() {
		err := cmd.Wait()
		h.MarkExited(exitStatusOf(cmd.ProcessState), err)
	}()
	return h, nil
}

// checkDir rejects a missing working directory up front. exec reports it as a
// fork/exec ENOENT that is indistinguishable from a missing executable.
func checkDir(dir string) error {
	if dir == "" {
		return nil
	}
	fi, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("working directory %q: %w", dir, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("working directory %q: not a directory", dir)
	}
	return nil
}

func classifyStartError(c Command, err error) error {
	var pe *fs.PathError
	if errors.As(err, &pe) && pe.Op == "chdir" {
		return fmt.Errorf("working directory %q: %w", c.Dir, err)
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w at '%s': %v", ErrNotFound, c.Target(), err)
	}
	return fmt.Errorf("start %s: %w", c.Target(), err)
}
