//go:build !windows

package process

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func waitDone(t *testing.T, h *Handle, d time.Duration) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(d):
		t.Fatalf("process %d did not exit within %s", h.PID(), d)
	}
}

func TestVerify(t *testing.T) {
	s := NewStrategy(nil)
	dir := t.TempDir()

	missing := filepath.Join(dir, "opencode")
	err := s.Verify(missing)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing file: got %v", err)
	}
	if !strings.Contains(err.Error(), missing) {
		t.Fatalf("error should name the path: %v", err)
	}

	plain := filepath.Join(dir, "plain")
	if err := os.WriteFile(plain, []byte("#!/bin/sh\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	err = s.Verify(plain)
	if !errors.Is(err, ErrNotExecutable) || errors.Is(err, ErrNotFound) {
		t.Fatalf("non-executable file: got %v", err)
	}

	exe := filepath.Join(dir, "exe")
	if err := os.WriteFile(exe, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := s.Verify(exe); err != nil {
		t.Fatalf("executable file: %v", err)
	}

	if err := s.Verify(dir); !errors.Is(err, ErrNotExecutable) {
		t.Fatalf("directory: got %v", err)
	}

	if err := s.Verify("surely-not-an-installed-command-1b7e"); err != nil {
		t.Fatalf("bare names are not verified: %v", err)
	}
}

func TestStartReportsExitCode(t *testing.T) {
	s := NewStrategy(nil)
	h, err := s.Start(Command{Shell: "exit 7"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if h.PID() <= 0 {
		t.Fatalf("pid not set")
	}
	waitDone(t, h, 5*time.Second)
	if st := h.ExitStatus(); st.Code != 7 || st.Signal != "" {
		t.Fatalf("unexpected exit status %+v", st)
	}
}

func TestStartShellCommandNotFound(t *testing.T) {
	s := NewStrategy(nil)
	h, err := s.Start(Command{Shell: "surely-not-an-installed-command-1b7e serve"})
	if err != nil {
		t.Fatalf("the shell itself starts: %v", err)
	}
	waitDone(t, h, 5*time.Second)
	if got := h.ExitStatus().Code; got != ShellNotFoundExitCode {
		t.Fatalf("exit code = %d, want %d", got, ShellNotFoundExitCode)
	}
}

func TestStartMissingExecutable(t *testing.T) {
	s := NewStrategy(nil)
	missing := filepath.Join(t.TempDir(), "nope", "opencode")
	_, err := s.Start(Command{Path: missing, Args: []string{"serve"}})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v", err)
	}
	if !strings.Contains(err.Error(), missing) {
		t.Fatalf("error should name the path: %v", err)
	}
}

func TestStartMissingWorkDirIsNotNotFound(t *testing.T) {
	s := NewStrategy(nil)
	_, err := s.Start(Command{Path: "/bin/sh", Args: []string{"-c", "true"}, Dir: filepath.Join(t.TempDir(), "gone")})
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected a workdir error, got %v", err)
	}
	if !strings.Contains(err.Error(), "working directory") {
		t.Fatalf("error should name the working directory: %v", err)
	}
}

func TestStartWorkDirIsFile(t *testing.T) {
	s := NewStrategy(nil)
	file := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(file, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := s.Start(Command{Path: "/bin/sh", Args: []string{"-c", "true"}, Dir: file})
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected a workdir error, got %v", err)
	}
}

func TestStartAppliesDirEnvAndOutput(t *testing.T) {
	s := NewStrategy(nil)
	dir := t.TempDir()
	var out, errOut syncBuffer
	h, err := s.Start(Command{
		Shell:  "pwd; echo \"$OCSUP_TEST_VAR\"; echo oops 1>&2",
		Dir:    dir,
		Env:    append(os.Environ(), "OCSUP_TEST_VAR=hello"),
		Stdout: &out,
		Stderr: &errOut,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, h, 5*time.Second)

	resolved, _ := filepath.EvalSymlinks(dir)
	got := out.String()
	if !strings.Contains(got, "hello") {
		t.Fatalf("env not applied, stdout=%q", got)
	}
	if !strings.Contains(got, dir) && !strings.Contains(got, resolved) {
		t.Fatalf("dir not applied, stdout=%q", got)
	}
	if !strings.Contains(errOut.String(), "oops") {
		t.Fatalf("stderr not captured: %q", errOut.String())
	}
}

func TestStopTerminatesGroup(t *testing.T) {
	s := NewStrategy(nil)
	h, err := s.Start(Command{Shell: "sleep 30 & sleep 30; wait"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	start := time.Now()
	s.Stop(h)
	if !h.Exited() {
		t.Fatalf("handle not exited after Stop")
	}
	if elapsed := time.Since(start); elapsed > gracePeriod {
		t.Fatalf("SIGTERM should have been enough, took %s", elapsed)
	}
	if h.ExitStatus().Signal == "" {
		t.Fatalf("expected a signal exit, got %+v", h.ExitStatus())
	}
}

func TestStopEscalatesToKill(t *testing.T) {
	ps := NewStrategy(nil).(*posixStrategy)
	ps.grace = 200 * time.Millisecond
	h, err := ps.Start(Command{Shell: "trap '' TERM; sleep 30"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	// Give the shell a moment to install the trap.
	time.Sleep(100 * time.Millisecond)
	ps.Stop(h)
	if !h.Exited() {
		t.Fatalf("handle not exited after Stop")
	}
	if sig := h.ExitStatus().Signal; sig != "killed" {
		t.Fatalf("expected SIGKILL, got %+v", h.ExitStatus())
	}
}

func TestStopAfterExitIsHarmless(t *testing.T) {
	s := NewStrategy(nil)
	h, err := s.Start(Command{Shell: "exit 0"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, h, 5*time.Second)
	s.Stop(h)
	s.Stop(nil)
}
