// Package supervisor runs exactly one local server process on behalf of a host
// application and tracks it through a small state machine:
//
//	stopped -> starting -> running -> stopped
//	              \-> error
//
// Start resolves and verifies the executable, spawns it through a platform
// Strategy and polls its health endpoint until it is ready, the process exits or
// the startup timeout elapses. Every failure ends in the error state with a
// human-readable LastError; Stop always succeeds.
package supervisor

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/loykin/ocsup/internal/config"
	"github.com/loykin/ocsup/internal/detector"
	"github.com/loykin/ocsup/internal/env"
	"github.com/loykin/ocsup/internal/history"
	"github.com/loykin/ocsup/internal/metrics"
	"github.com/loykin/ocsup/internal/process"
	"github.com/loykin/ocsup/internal/resolver"
)

// DefaultPollInterval is the delay between health probes while starting.
const DefaultPollInterval = 500 * time.Millisecond

// Supervisor owns the server process. All methods are safe for concurrent use.
type Supervisor struct {
	mu           sync.Mutex
	cfg          config.Server
	state        State
	lastErr      string
	handle       *process.Handle
	attempt      *attempt
	lastExit     *process.ExitStatus
	runningSince time.Time

	strategy process.Strategy
	resolve  func(string) string
	probeFor func(host string, port int) detector.Detector
	poll     time.Duration
	log      *slog.Logger
	sinks    []history.Sink
	pending  sync.WaitGroup
	env      *env.Env
	sampler  *metrics.Sampler

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// attempt is one in-flight Start. Concurrent callers wait on done and share err.
type attempt struct {
	done   chan struct{}
	err    error
	cancel context.CancelFunc
}

// Option customizes a Supervisor.
type Option func(*Supervisor)

// WithStrategy replaces the platform process strategy.
func WithStrategy(st process.Strategy) Option { return func(s *Supervisor) { s.strategy = st } }

// WithResolver replaces executable resolution.
func WithResolver(fn func(string) string) Option { return func(s *Supervisor) { s.resolve = fn } }

// WithProbe replaces the health detector factory.
func WithProbe(fn func(host string, port int) detector.Detector) Option {
	return func(s *Supervisor) { s.probeFor = fn }
}

// WithLogger sets the logger for lifecycle messages and server output.
func WithLogger(l *slog.Logger) Option { return func(s *Supervisor) { s.log = l } }

// WithHistory sends lifecycle events to the given sinks.
func WithHistory(sinks ...history.Sink) Option {
	return func(s *Supervisor) { s.sinks = append([]history.Sink(nil), sinks...) }
}

// WithPollInterval changes the delay between health probes.
func WithPollInterval(d time.Duration) Option { return func(s *Supervisor) { s.poll = d } }

// WithEnv sets the environment the server inherits before per-start overrides.
func WithEnv(e *env.Env) Option { return func(s *Supervisor) { s.env = e } }

// WithSampler publishes resource usage of the running server.
func WithSampler(sm *metrics.Sampler) Option { return func(s *Supervisor) { s.sampler = sm } }

// New creates a stopped supervisor for cfg.
func New(cfg config.Server, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:   cfg,
		state: StateStopped,
		poll:  DefaultPollInterval,
		subs:  make(map[int]func(Event)),
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.strategy == nil {
		s.strategy = process.NewStrategy(s.log)
	}
	if s.resolve == nil {
		s.resolve = resolver.Resolve
	}
	if s.probeFor == nil {
		s.probeFor = func(host string, port int) detector.Detector {
			return detector.NewHealthDetector(host, port)
		}
	}
	if s.env == nil {
		s.env = env.New().FromOS()
	}
	if s.poll <= 0 {
		s.poll = DefaultPollInterval
	}
	return s
}

// Start brings the server to running. It returns nil immediately when already
// running; a call made while another start is in flight waits for that attempt
// and returns its result. Failures leave the supervisor in StateError with
// LastError set; the returned error carries the same message.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateRunning:
		s.mu.Unlock()
		return nil
	case StateStarting:
		a := s.attempt
		s.mu.Unlock()
		if a == nil {
			return nil
		}
		select {
		case <-a.done:
			return a.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	actx, cancel := context.WithCancel(ctx)
	a := &attempt{done: make(chan struct{}), cancel: cancel}
	cfg := s.cfg
	s.attempt = a
	s.lastErr = ""
	s.lastExit = nil
	from := s.setStateLocked(StateStarting)
	s.mu.Unlock()
	s.afterTransition(from, StateStarting)

	err := s.run(actx, a, cfg)
	cancel()
	a.err = err
	close(a.done)
	return err
}

// Stop terminates the server and its descendants. It is idempotent and never
// reports termination problems. The state becomes stopped before the process is
// signalled; Stop returns once the exit is confirmed, the strategy gives up, or
// ctx is done (termination then continues in the background).
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	h := s.handle
	a := s.attempt
	s.handle = nil
	s.attempt = nil
	from := s.setStateLocked(StateStopped)
	project := s.cfg.ProjectDirectory
	s.mu.Unlock()

	if a != nil {
		a.cancel()
	}
	s.afterTransition(from, StateStopped)
	if h == nil {
		return nil
	}

	if s.sampler != nil {
		s.sampler.Untrack()
	}
	metrics.IncStop()
	s.log.Info("stopping server", "pid", h.PID())
	s.record(history.Event{Type: history.EventStop, Project: project, PID: h.PID(), State: StateStopped.String()})

	done := make(chan struct{})
	go func() {
		s.strategy.Stop(h)
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Restart stops the server, if any, and starts it again.
func (s *Supervisor) Restart(ctx context.Context) error {
	if err := s.Stop(ctx); err != nil {
		return err
	}
	return s.Start(ctx)
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError is the message of the most recent failed start, or "".
func (s *Supervisor) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// PID of the live server process, or 0 when there is none (including when an
// already running external server was reused).
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return 0
	}
	return s.handle.PID()
}

// URL is the address a host should open for the configured project.
func (s *Supervisor) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return BuildURL(s.cfg.Hostname, s.cfg.Port, s.cfg.ProjectDirectory)
}

// APIBaseURL is the server origin without the project segment.
func (s *Supervisor) APIBaseURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return BaseURL(s.cfg.Hostname, s.cfg.Port)
}

// Config returns a copy of the current server configuration.
func (s *Supervisor) Config() config.Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// UpdateConfig replaces the configuration used by the next start. A running server
// keeps its settings until restarted.
func (s *Supervisor) UpdateConfig(cfg config.Server) {
	s.mu.Lock()
	changed := s.cfg.ProjectDirectory != cfg.ProjectDirectory
	s.cfg = cfg
	s.mu.Unlock()
	if changed {
		s.notify(EventProjectDirectoryChanged)
	}
}

// UpdateProjectDirectory changes only the project directory.
func (s *Supervisor) UpdateProjectDirectory(dir string) {
	s.mu.Lock()
	changed := s.cfg.ProjectDirectory != dir
	s.cfg.ProjectDirectory = dir
	s.mu.Unlock()
	if changed {
		s.notify(EventProjectDirectoryChanged)
	}
}

// Status is a point-in-time view for diagnostics and the control API.
type Status struct {
	State            State               `json:"state"`
	LastError        string              `json:"last_error,omitempty"`
	PID              int                 `json:"pid,omitempty"`
	URL              string              `json:"url"`
	ProjectDirectory string              `json:"project_directory"`
	Mode             string              `json:"mode"`
	Command          string              `json:"command"`
	StartedAt        *time.Time          `json:"started_at,omitempty"`
	RunningSince     *time.Time          `json:"running_since,omitempty"`
	LastExit         *process.ExitStatus `json:"last_exit,omitempty"`
	Resources        *metrics.Sample     `json:"resources,omitempty"`
}

func (s *Supervisor) Snapshot() Status {
	s.mu.Lock()
	st := Status{
		State:            s.state,
		LastError:        s.lastErr,
		URL:              BuildURL(s.cfg.Hostname, s.cfg.Port, s.cfg.ProjectDirectory),
		ProjectDirectory: s.cfg.ProjectDirectory,
		Mode:             "managed",
		Command:          s.cfg.Executable,
	}
	if s.cfg.UseCustomCommand {
		st.Mode = "custom"
		st.Command = s.cfg.CustomCommand
	}
	if s.handle != nil {
		st.PID = s.handle.PID()
		t := s.handle.StartedAt()
		st.StartedAt = &t
	}
	if s.state == StateRunning && !s.runningSince.IsZero() {
		t := s.runningSince
		st.RunningSince = &t
	}
	if s.lastExit != nil {
		e := *s.lastExit
		st.LastExit = &e
	}
	s.mu.Unlock()

	if s.sampler != nil && st.PID != 0 {
		if r := s.sampler.Latest(); r.PID == int32(st.PID) {
			st.Resources = &r
		}
	}
	return st
}

// ManagedArgs is the argument list used when launching the configured executable.
func ManagedArgs(cfg config.Server) []string {
	args := []string{"serve", "--port", strconv.Itoa(cfg.Port), "--hostname", cfg.Hostname}
	if origin := strings.TrimSpace(cfg.CORSOrigin); origin != "" {
		args = append(args, "--cors", origin)
	}
	return args
}

// setStateLocked must be called with mu held. It returns the previous state.
func (s *Supervisor) setStateLocked(to State) State {
	from := s.state
	s.state = to
	if to != StateRunning {
		s.runningSince = time.Time{}
	}
	return from
}

// afterTransition records metrics, logs and notifies subscribers. It must be called
// without mu held.
func (s *Supervisor) afterTransition(from, to State) {
	if from == to {
		return
	}
	metrics.RecordStateTransition(from.String(), to.String())
	metrics.SetCurrentState(to.String(), stateNames)
	s.log.Debug("state changed", "from", from.String(), "to", to.String())
	s.notify(EventStateChanged)
}

// record sends e to every history sink in the background.
func (s *Supervisor) record(e history.Event) {
	if len(s.sinks) == 0 {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	sinks := s.sinks
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, sink := range sinks {
			if err := sink.Send(ctx, e); err != nil {
				s.log.Debug("history sink failed", "event", e.Type, "error", err)
			}
		}
	}()
}

// FlushHistory waits for history events already handed to the sinks.
func (s *Supervisor) FlushHistory() { s.pending.Wait() }
