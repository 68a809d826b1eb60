// Package ocsup supervises one local "serve" process for a host application.
//
// A host typically loads a Config, builds a Supervisor from it and calls Start
// when it needs the server:
//
//	cfg, err := ocsup.LoadConfig("ocsup.toml")
//	sup, err := ocsup.NewFromConfig(cfg)
//	defer sup.Close()
//	err = sup.Start(ctx)
//	open(sup.URL())
package ocsup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/ocsup/internal/config"
	"github.com/loykin/ocsup/internal/history"
	"github.com/loykin/ocsup/internal/history/factory"
	"github.com/loykin/ocsup/internal/logger"
	"github.com/loykin/ocsup/internal/metrics"
	"github.com/loykin/ocsup/internal/resolver"
	iapi "github.com/loykin/ocsup/internal/server"
	"github.com/loykin/ocsup/internal/supervisor"
)

// Re-export core types for external consumers.

type Config = config.Config

type ServerConfig = config.Server

type State = supervisor.State

type Status = supervisor.Status

type Event = supervisor.Event

type Option = supervisor.Option

type HistorySink = history.Sink

type HistoryEvent = history.Event

const (
	StateStopped  = supervisor.StateStopped
	StateStarting = supervisor.StateStarting
	StateRunning  = supervisor.StateRunning
	StateError    = supervisor.StateError

	EventStateChanged            = supervisor.EventStateChanged
	EventProjectDirectoryChanged = supervisor.EventProjectDirectoryChanged
)

var (
	ErrProjectDirectory        = supervisor.ErrProjectDirectory
	ErrProjectDirectoryInvalid = supervisor.ErrProjectDirectoryInvalid
	ErrPrematureExit           = supervisor.ErrPrematureExit
	ErrStartTimeout            = supervisor.ErrStartTimeout
	ErrExecutableNotFound      = supervisor.ErrExecutableNotFound
	ErrStartAborted            = supervisor.ErrStartAborted
)

// Options accepted by New.
var (
	WithLogger       = supervisor.WithLogger
	WithHistory      = supervisor.WithHistory
	WithPollInterval = supervisor.WithPollInterval
	WithResolver     = supervisor.WithResolver
)

// Supervisor is a thin facade over internal/supervisor.
type Supervisor struct {
	inner   *supervisor.Supervisor
	log     *slog.Logger
	closers []io.Closer
}

func New(cfg ServerConfig, opts ...Option) *Supervisor {
	return &Supervisor{inner: supervisor.New(cfg, opts...), log: slog.Default()}
}

// NewFromConfig wires logging, metrics, resource sampling and history sinks
// from cfg. Close releases what it opened.
func NewFromConfig(cfg *Config) (*Supervisor, error) {
	log, logCloser := logger.NewSlogger(cfg.Log, os.Stderr)
	s := &Supervisor{log: log, closers: []io.Closer{logCloser}}
	opts := []Option{supervisor.WithLogger(log)}

	if cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		sampler := metrics.NewSampler(cfg.Metrics.SampleInterval, log)
		opts = append(opts, supervisor.WithSampler(sampler))
		s.closers = append(s.closers, closerFunc(func() error { sampler.Untrack(); return nil }))
	}
	if cfg.History.Enabled {
		sink, err := factory.NewSinkFromDSN(cfg.History.DSN)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("history sink: %w", err)
		}
		opts = append(opts, supervisor.WithHistory(sink))
		if c, ok := sink.(io.Closer); ok {
			s.closers = append(s.closers, c)
		}
	}
	s.inner = supervisor.New(cfg.Server, opts...)
	return s, nil
}

func (s *Supervisor) Start(ctx context.Context) error   { return s.inner.Start(ctx) }
func (s *Supervisor) Stop(ctx context.Context) error    { return s.inner.Stop(ctx) }
func (s *Supervisor) Restart(ctx context.Context) error { return s.inner.Restart(ctx) }
func (s *Supervisor) State() State                      { return s.inner.State() }
func (s *Supervisor) LastError() string                 { return s.inner.LastError() }
func (s *Supervisor) PID() int                          { return s.inner.PID() }
func (s *Supervisor) URL() string                       { return s.inner.URL() }
func (s *Supervisor) APIBaseURL() string                { return s.inner.APIBaseURL() }
func (s *Supervisor) Snapshot() Status                  { return s.inner.Snapshot() }
func (s *Supervisor) Config() ServerConfig              { return s.inner.Config() }
func (s *Supervisor) UpdateConfig(c ServerConfig)       { s.inner.UpdateConfig(c) }
func (s *Supervisor) UpdateProjectDirectory(dir string) { s.inner.UpdateProjectDirectory(dir) }

// Logger is the logger built by NewFromConfig, or slog.Default for New.
func (s *Supervisor) Logger() *slog.Logger { return s.log }

// Subscribe registers fn for state and project directory changes.
func (s *Supervisor) Subscribe(fn func(Event)) (unsubscribe func()) { return s.inner.Subscribe(fn) }

// Close stops the server, waiting up to 10s, and releases resources opened by NewFromConfig.
func (s *Supervisor) Close() error {
	if s.inner != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = s.inner.Stop(ctx)
		cancel()
		s.inner.FlushHistory()
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// Resolve applies the executable search used by Start.
func Resolve(configured string) string { return resolver.Resolve(configured) }

func SearchDirectories() []string { return resolver.SearchDirectories() }

// BuildURL derives the project URL the way the supervisor does.
func BuildURL(host string, port int, projectDir string) string {
	return supervisor.BuildURL(host, port, projectDir)
}

// NewHTTPServer starts the control API for s on addr. /metrics is included once
// metrics are registered.
func NewHTTPServer(addr, basePath string, s *Supervisor) (*http.Server, error) {
	var opts []iapi.RouterOption
	if metrics.Registered() {
		opts = append(opts, iapi.WithMetrics(metrics.Handler()))
	}
	return iapi.NewServer(addr, basePath, s.inner, opts...)
}

// NewHistorySink opens a history sink from a DSN such as sqlite:///tmp/h.db.
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// NewLogger builds the slog logger described by c. The closer is never nil.
func NewLogger(c logger.SlogConfig) (*slog.Logger, io.Closer) { return logger.NewSlogger(c, os.Stderr) }
