package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/ocsup/internal/server"
	"github.com/loykin/ocsup/internal/supervisor"
)

type stubController struct {
	mu       sync.Mutex
	state    supervisor.State
	dir      string
	startErr error
}

func (s *stubController) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		s.state = supervisor.StateError
		return s.startErr
	}
	s.state = supervisor.StateRunning
	return nil
}

func (s *stubController) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = supervisor.StateStopped
	return nil
}

func (s *stubController) Restart(ctx context.Context) error { return s.Start(ctx) }

func (s *stubController) Snapshot() supervisor.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := supervisor.Status{State: s.state, ProjectDirectory: s.dir, Command: "opencode", Mode: "managed",
		URL: supervisor.BuildURL("127.0.0.1", 14096, s.dir)}
	if s.state == supervisor.StateError {
		st.LastError = s.startErr.Error()
	}
	return st
}

func (s *stubController) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return supervisor.BuildURL("127.0.0.1", 14096, s.dir)
}

func (s *stubController) APIBaseURL() string { return supervisor.BaseURL("127.0.0.1", 14096) }

func (s *stubController) UpdateProjectDirectory(dir string) {
	s.mu.Lock()
	s.dir = dir
	s.mu.Unlock()
}

func newTestClient(t *testing.T, ctl server.Controller) *Client {
	t.Helper()
	gin.SetMode(gin.TestMode)
	srv := httptest.NewServer(server.NewRouter(ctl, "/api").Handler())
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/api", Timeout: 5 * time.Second})
}

func TestClientLifecycle(t *testing.T) {
	ctl := &stubController{dir: "/work/p"}
	c := newTestClient(t, ctl)
	ctx := context.Background()

	require.True(t, c.IsReachable(ctx))

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "stopped", st.State)

	st, err = c.Start(ctx, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "running", st.State)
	assert.Equal(t, "/work/p", st.ProjectDirectory)

	st, err = c.Restart(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "running", st.State)

	require.NoError(t, c.Stop(ctx))
	st, err = c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "stopped", st.State)
}

func TestClientStartFailure(t *testing.T) {
	ctl := &stubController{startErr: supervisor.ErrPrematureExit}
	c := newTestClient(t, ctl)

	st, err := c.Start(context.Background(), 0)
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "API error: process exited before server became ready", err.Error())
	assert.Equal(t, "error", st.State)
	assert.Equal(t, "process exited before server became ready", st.LastError)
}

func TestClientURLAndProject(t *testing.T) {
	ctl := &stubController{}
	c := newTestClient(t, ctl)
	ctx := context.Background()

	u, err := c.URL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:14096", u.URL)

	u, err = c.SetProjectDirectory(ctx, "/work/new project")
	require.NoError(t, err)
	assert.Equal(t, supervisor.BuildURL("127.0.0.1", 14096, "/work/new project"), u.URL)
	assert.Equal(t, "http://127.0.0.1:14096", u.BaseURL)

	_, err = c.SetProjectDirectory(ctx, "relative")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestClientResolve(t *testing.T) {
	c := newTestClient(t, &stubController{})
	r, err := c.Resolve(context.Background(), "ocsup-definitely-missing")
	require.NoError(t, err)
	assert.Equal(t, "ocsup-definitely-missing", r.Configured)
	assert.Equal(t, "ocsup-definitely-missing", r.Resolved)
	assert.NotEmpty(t, r.SearchPaths)
}

func TestClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := New(Config{BaseURL: srv.URL, Timeout: time.Second})
	assert.False(t, c.IsReachable(context.Background()))
	_, err := c.Status(context.Background())
	assert.Error(t, err)
}
