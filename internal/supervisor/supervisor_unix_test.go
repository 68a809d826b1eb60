//go:build !windows

package supervisor

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/ocsup/internal/config"
	"github.com/loykin/ocsup/internal/process"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func realSupervisor(t *testing.T, cfg config.Server) *Supervisor {
	t.Helper()
	s := New(cfg, WithLogger(quietLogger()), WithPollInterval(50*time.Millisecond))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s
}

func realConfig(t *testing.T) config.Server {
	return config.Server{
		Hostname:         "127.0.0.1",
		Port:             freePort(t),
		ProjectDirectory: t.TempDir(),
		StartupTimeout:   10 * time.Second,
		CORSOrigin:       config.DefaultCORSOrigin,
	}
}

func TestIntegrationManagedServerLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns processes")
	}
	exe, err := os.Executable()
	require.NoError(t, err)
	cfg := realConfig(t)
	cfg.Executable = exe
	cfg.Env = []string{helperEnv + "=1"}
	s := realSupervisor(t, cfg)

	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, StateRunning, s.State())
	require.Greater(t, s.PID(), 0)

	resp, err := http.Get(s.APIBaseURL() + "/global/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, StateStopped, s.State())
	client := http.Client{Timeout: 500 * time.Millisecond}
	_, err = client.Get(s.APIBaseURL() + "/global/health")
	assert.Error(t, err)
}

func TestIntegrationCustomCommandExitCode(t *testing.T) {
	cfg := realConfig(t)
	cfg.UseCustomCommand = true
	cfg.CustomCommand = "exit 7"
	s := realSupervisor(t, cfg)

	require.ErrorIs(t, s.Start(context.Background()), ErrPrematureExit)
	assert.Equal(t, StateError, s.State())
	assert.Equal(t, "process exited before server became ready (exit code 7)", s.LastError())
}

func TestIntegrationCustomCommandNotFound(t *testing.T) {
	cfg := realConfig(t)
	cfg.UseCustomCommand = true
	cfg.CustomCommand = "ocsup-no-such-command-xyz serve"
	s := realSupervisor(t, cfg)

	require.ErrorIs(t, s.Start(context.Background()), ErrExecutableNotFound)
	assert.Equal(t, "executable not found at 'ocsup-no-such-command-xyz serve'", s.LastError())
}

func TestIntegrationMissingExecutable(t *testing.T) {
	cfg := realConfig(t)
	cfg.Executable = "/nonexistent/ocsup-missing-xyz"
	s := realSupervisor(t, cfg)

	err := s.Start(context.Background())
	require.ErrorIs(t, err, process.ErrNotFound)
	assert.Equal(t, StateError, s.State())
	assert.Zero(t, s.PID())
}

func TestIntegrationDeletedProjectDirectory(t *testing.T) {
	cfg := realConfig(t)
	cfg.Executable = "/bin/sh"
	cfg.ProjectDirectory = filepath.Join(cfg.ProjectDirectory, "vault-was-deleted")
	s := realSupervisor(t, cfg)

	err := s.Start(context.Background())
	require.ErrorIs(t, err, ErrProjectDirectoryInvalid)
	assert.NotErrorIs(t, err, process.ErrNotFound)
	assert.Equal(t, StateError, s.State())
	assert.NotContains(t, s.LastError(), "executable not found")
	assert.Zero(t, s.PID())
}
