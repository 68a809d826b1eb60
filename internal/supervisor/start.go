package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/loykin/ocsup/internal/config"
	"github.com/loykin/ocsup/internal/detector"
	"github.com/loykin/ocsup/internal/history"
	"github.com/loykin/ocsup/internal/logger"
	"github.com/loykin/ocsup/internal/metrics"
	"github.com/loykin/ocsup/internal/process"
	"github.com/loykin/ocsup/internal/waitfor"
)

// run performs one start attempt with a private copy of the configuration.
func (s *Supervisor) run(ctx context.Context, a *attempt, cfg config.Server) error {
	if strings.TrimSpace(cfg.ProjectDirectory) == "" {
		return s.fail(a, nil, cfg, ErrProjectDirectory)
	}
	if err := checkProjectDirectory(cfg.ProjectDirectory); err != nil {
		return s.fail(a, nil, cfg, err)
	}

	cmd, err := s.buildCommand(cfg)
	if err != nil {
		return s.fail(a, nil, cfg, err)
	}

	// The startup timeout covers the pre-flight probe as well as the readiness wait.
	startBy := time.Now().Add(cfg.StartupTimeout)
	probe := s.probeFor(cfg.Hostname, cfg.Port)
	preCtx, cancel := context.WithDeadline(ctx, startBy)
	reuse := s.healthy(preCtx, probe)
	cancel()
	if reuse {
		s.log.Warn("a server is already answering on the configured address; reusing it",
			"url", BaseURL(cfg.Hostname, cfg.Port), "probe", probe.Describe())
		return s.succeed(a, nil, cfg, metrics.OutcomeReused)
	}
	if s.aborted(a) {
		return ErrStartAborted
	}

	stdout, stderr, closeOutput := s.outputWriters(cfg)
	cmd.Stdout, cmd.Stderr = stdout, stderr
	s.log.Info("starting server", "command", cmd.String(), "dir", cmd.Dir)
	h, err := s.strategy.Start(cmd)
	if err != nil {
		closeOutput()
		return s.fail(a, nil, cfg, err)
	}

	s.mu.Lock()
	if s.attempt != a {
		s.mu.Unlock()
		s.strategy.Stop(h)
		closeOutput()
		metrics.IncStart(metrics.OutcomeAborted)
		return ErrStartAborted
	}
	s.handle = h
	s.mu.Unlock()

	go s.observe(h, closeOutput)
	s.record(history.Event{Type: history.EventStart, Project: cfg.ProjectDirectory, Command: cmd.String(), PID: h.PID(), State: StateStarting.String()})

	spawned := time.Now()
	outcome := waitfor.Race(ctx, h.Done(), time.Until(startBy), s.poll, func(ctx context.Context) bool {
		return s.healthy(ctx, probe)
	})
	switch outcome {
	case waitfor.Ready:
		metrics.ObserveReadiness(time.Since(spawned).Seconds())
		return s.succeed(a, h, cfg, metrics.OutcomeSpawned)
	case waitfor.Exited:
		return s.fail(a, h, cfg, exitError(cfg, cmd, h.ExitStatus(), process.ManagedViaShell))
	case waitfor.TimedOut:
		return s.fail(a, h, cfg, fmt.Errorf("%w within %s", ErrStartTimeout, cfg.StartupTimeout))
	default:
		if s.aborted(a) {
			metrics.IncStart(metrics.OutcomeAborted)
			return ErrStartAborted
		}
		return s.fail(a, h, cfg, fmt.Errorf("start cancelled: %w", context.Cause(ctx)))
	}
}

func checkProjectDirectory(dir string) error {
	fi, err := os.Stat(dir)
	switch {
	case err != nil:
		return fmt.Errorf("%w: %q: %v", ErrProjectDirectoryInvalid, dir, err)
	case !fi.IsDir():
		return fmt.Errorf("%w: %q is not a directory", ErrProjectDirectoryInvalid, dir)
	}
	return nil
}

// exitError explains an exit during startup. A shell's not-found code means the
// command never ran; managedViaShell extends that to managed launches.
func exitError(cfg config.Server, cmd process.Command, st process.ExitStatus, managedViaShell bool) error {
	if st.Signal == "" && st.Code == process.ShellNotFoundExitCode {
		switch {
		case cfg.UseCustomCommand:
			return fmt.Errorf("%w at '%s'", ErrExecutableNotFound, strings.TrimSpace(cfg.CustomCommand))
		case managedViaShell:
			return fmt.Errorf("%w at '%s'", ErrExecutableNotFound, cmd.Path)
		}
	}
	return fmt.Errorf("%w (%s)", ErrPrematureExit, st)
}

// buildCommand prepares the launch description. In managed mode the executable is
// resolved and verified here so a bad path fails before anything is spawned.
func (s *Supervisor) buildCommand(cfg config.Server) (process.Command, error) {
	c := process.Command{
		Dir: cfg.ProjectDirectory,
		Env: s.env.Merge(append([]string{"NODE_USE_SYSTEM_CA=1"}, cfg.Env...)),
	}
	if cfg.UseCustomCommand {
		c.Shell = strings.TrimSpace(cfg.CustomCommand)
		if c.Shell == "" {
			return c, errors.New("custom command is empty")
		}
		return c, nil
	}
	path := s.resolve(cfg.Executable)
	if path != cfg.Executable {
		s.log.Debug("resolved executable", "configured", cfg.Executable, "path", path)
	}
	if err := s.strategy.Verify(path); err != nil {
		return c, err
	}
	c.Path = path
	c.Args = ManagedArgs(cfg)
	return c, nil
}

func (s *Supervisor) healthy(ctx context.Context, probe detector.Detector) bool {
	ok, err := probe.Alive(ctx)
	switch {
	case err != nil:
		metrics.IncHealthProbe("error")
		return false
	case !ok:
		metrics.IncHealthProbe("unhealthy")
		return false
	}
	metrics.IncHealthProbe("healthy")
	return true
}

func (s *Supervisor) aborted(a *attempt) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt != a
}

// succeed moves the attempt to running. h is nil when an existing server was reused.
func (s *Supervisor) succeed(a *attempt, h *process.Handle, cfg config.Server, outcome string) error {
	s.mu.Lock()
	if s.attempt != a {
		s.mu.Unlock()
		metrics.IncStart(metrics.OutcomeAborted)
		return ErrStartAborted
	}
	if h != nil && h.Exited() {
		s.mu.Unlock()
		return s.fail(a, h, cfg, fmt.Errorf("%w (%s)", ErrPrematureExit, h.ExitStatus()))
	}
	s.attempt = nil
	s.runningSince = time.Now()
	from := s.setStateLocked(StateRunning)
	s.mu.Unlock()
	s.afterTransition(from, StateRunning)

	metrics.IncStart(outcome)
	pid := 0
	if h != nil {
		pid = h.PID()
		if s.sampler != nil {
			s.sampler.Track(pid)
		}
	}
	s.log.Info("server ready", "url", BuildURL(cfg.Hostname, cfg.Port, cfg.ProjectDirectory), "pid", pid, "outcome", outcome)
	s.record(history.Event{Type: history.EventReady, Project: cfg.ProjectDirectory, PID: pid, State: StateRunning.String(), Message: outcome})
	return nil
}

// fail stops h (if any) and then moves the attempt to error with err's message.
// When Stop overtook the attempt the stopped state is left alone.
func (s *Supervisor) fail(a *attempt, h *process.Handle, cfg config.Server, err error) error {
	if h != nil {
		s.mu.Lock()
		if s.attempt != a {
			s.mu.Unlock()
			metrics.IncStart(metrics.OutcomeAborted)
			return ErrStartAborted
		}
		if s.handle == h {
			s.handle = nil
		}
		s.mu.Unlock()
		s.strategy.Stop(h)
	}

	s.mu.Lock()
	if s.attempt != a {
		s.mu.Unlock()
		metrics.IncStart(metrics.OutcomeAborted)
		return ErrStartAborted
	}
	s.attempt = nil
	s.lastErr = err.Error()
	from := s.setStateLocked(StateError)
	s.mu.Unlock()
	s.afterTransition(from, StateError)

	metrics.IncStart(metrics.OutcomeFailed)
	s.log.Error("server failed to start", "error", err)
	ev := history.Event{Type: history.EventFail, Project: cfg.ProjectDirectory, State: StateError.String(), Message: err.Error()}
	if h != nil {
		ev.PID = h.PID()
		if h.Exited() {
			code := h.ExitStatus().Code
			ev.ExitCode = &code
		}
	}
	s.record(ev)
	return err
}

// observe waits for h to exit. An exit while running is a crash: the supervisor
// goes back to stopped without restarting. An exit while starting is only
// remembered; the readiness wait reports it.
func (s *Supervisor) observe(h *process.Handle, closeOutput func()) {
	<-h.Done()
	closeOutput()
	st := h.ExitStatus()

	s.mu.Lock()
	if s.handle != h {
		s.mu.Unlock()
		return
	}
	switch s.state {
	case StateStarting:
		s.lastExit = &st
		s.mu.Unlock()
		s.log.Debug("server exited during startup", "pid", h.PID(), "status", st.String())
	case StateRunning:
		s.handle = nil
		s.lastExit = &st
		project := s.cfg.ProjectDirectory
		from := s.setStateLocked(StateStopped)
		s.mu.Unlock()

		if s.sampler != nil {
			s.sampler.Untrack()
		}
		s.afterTransition(from, StateStopped)
		metrics.IncCrash()
		s.log.Warn("server exited unexpectedly", "pid", h.PID(), "status", st.String())
		code := st.Code
		s.record(history.Event{Type: history.EventCrash, Project: project, PID: h.PID(), State: StateStopped.String(), ExitCode: &code, Message: st.String()})
	default:
		s.mu.Unlock()
	}
}

// outputWriters forwards the server's stdout/stderr into the log and, when
// configured, rotated files. The returned func flushes and closes both.
func (s *Supervisor) outputWriters(cfg config.Server) (io.Writer, io.Writer, func()) {
	var outFile, errFile io.Writer
	if cfg.Output.Enabled() {
		o, e, err := cfg.Output.ProcessWriters("server")
		if err != nil {
			s.log.Warn("server output files unavailable", "error", err)
		}
		if o != nil {
			outFile = o
		}
		if e != nil {
			errFile = e
		}
	}
	log := s.log.With("component", "server")
	stdout := logger.NewLineWriter(log, slog.LevelInfo, "stdout", outFile)
	stderr := logger.NewLineWriter(log, slog.LevelWarn, "stderr", errFile)
	return stdout, stderr, func() {
		_ = stdout.Close()
		_ = stderr.Close()
	}
}
