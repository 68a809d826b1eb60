package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/ocsup/internal/resolver"
	"github.com/loykin/ocsup/internal/supervisor"
)

type fakeController struct {
	mu       sync.Mutex
	state    supervisor.State
	startErr error
	starts   int
	stops    int
	restarts int
	dir      string
	command  string
	lastCtx  context.Context
}

func (f *fakeController) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.lastCtx = ctx
	if f.startErr != nil {
		f.state = supervisor.StateError
		return f.startErr
	}
	f.state = supervisor.StateRunning
	return nil
}

func (f *fakeController) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.state = supervisor.StateStopped
	return nil
}

func (f *fakeController) Restart(ctx context.Context) error {
	f.mu.Lock()
	f.restarts++
	f.mu.Unlock()
	return f.Start(ctx)
}

func (f *fakeController) Snapshot() supervisor.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := supervisor.Status{State: f.state, ProjectDirectory: f.dir, URL: f.url(), Command: f.command}
	if f.startErr != nil && f.state == supervisor.StateError {
		st.LastError = f.startErr.Error()
	}
	return st
}

func (f *fakeController) url() string {
	return supervisor.BuildURL("127.0.0.1", 14096, f.dir)
}

func (f *fakeController) URL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url()
}

func (f *fakeController) APIBaseURL() string { return supervisor.BaseURL("127.0.0.1", 14096) }

func (f *fakeController) UpdateProjectDirectory(dir string) {
	f.mu.Lock()
	f.dir = dir
	f.mu.Unlock()
}

func setupRouter(t *testing.T, base string, ctl Controller, opts ...RouterOption) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewRouter(ctl, base, opts...).Handler()
}

func doReq(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestStatus(t *testing.T) {
	ctl := &fakeController{dir: "/work/p"}
	h := setupRouter(t, "/api", ctl)

	rec := doReq(t, h, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[map[string]any](t, rec)
	assert.Equal(t, "stopped", st["state"])
	assert.Equal(t, "/work/p", st["project_directory"])
}

func TestStartStop(t *testing.T) {
	ctl := &fakeController{dir: "/work/p"}
	h := setupRouter(t, "", ctl)

	rec := doReq(t, h, http.MethodPost, "/start")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "running", decode[map[string]any](t, rec)["state"])

	rec = doReq(t, h, http.MethodPost, "/stop")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[okResp](t, rec).OK)
	assert.Equal(t, 1, ctl.starts)
	assert.Equal(t, 1, ctl.stops)
}

func TestStartFailureReportsLastError(t *testing.T) {
	ctl := &fakeController{startErr: supervisor.ErrProjectDirectory}
	h := setupRouter(t, "", ctl)

	rec := doReq(t, h, http.MethodPost, "/start")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode[errorResp](t, rec)
	assert.Equal(t, "project directory not configured", resp.Error)
	require.NotNil(t, resp.Status)
	assert.Equal(t, supervisor.StateError, resp.Status.State)
	assert.Equal(t, "project directory not configured", resp.Status.LastError)
}

func TestStartAbortedIsConflict(t *testing.T) {
	ctl := &fakeController{startErr: supervisor.ErrStartAborted}
	h := setupRouter(t, "", ctl)
	rec := doReq(t, h, http.MethodPost, "/restart")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1, ctl.restarts)
}

func TestStartTimeoutParam(t *testing.T) {
	ctl := &fakeController{}
	h := setupRouter(t, "", ctl)

	rec := doReq(t, h, http.MethodPost, "/start?timeout=bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, ctl.starts)

	rec = doReq(t, h, http.MethodPost, "/start?timeout=5s")
	require.Equal(t, http.StatusOK, rec.Code)
	_, hasDeadline := ctl.lastCtx.Deadline()
	assert.True(t, hasDeadline)
}

func TestURLAndProject(t *testing.T) {
	ctl := &fakeController{}
	h := setupRouter(t, "/api", ctl)

	rec := doReq(t, h, http.MethodGet, "/api/url")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, URLResp{URL: "http://127.0.0.1:14096", BaseURL: "http://127.0.0.1:14096"}, decode[URLResp](t, rec))

	abs := platformAbsPath()
	rec = doReq(t, h, http.MethodPut, "/api/project?dir="+abs)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, supervisor.BuildURL("127.0.0.1", 14096, abs), decode[URLResp](t, rec).URL)

	rec = doReq(t, h, http.MethodPut, "/api/project?dir="+url.QueryEscape(abs+string(filepath.Separator)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, abs, ctl.dir)

	rec = doReq(t, h, http.MethodPut, "/api/project?dir=relative/dir")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doReq(t, h, http.MethodPut, "/api/project")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolve(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/home/u/.opencode/bin/opencode", []byte("#!/bin/sh"), 0o755))
	res := resolver.New(resolver.WithFs(fs), resolver.WithPlatform("linux"), resolver.WithHome("/home/u"))
	ctl := &fakeController{command: "opencode"}
	h := setupRouter(t, "", ctl, WithResolver(res))

	rec := doReq(t, h, http.MethodGet, "/resolve")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[ResolveResp](t, rec)
	assert.Equal(t, "opencode", got.Configured)
	assert.Equal(t, "/home/u/.opencode/bin/opencode", got.Resolved)
	assert.Contains(t, got.SearchPaths, "/home/u/.local/bin")

	rec = doReq(t, h, http.MethodGet, "/resolve?path=missing-tool")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "missing-tool", decode[ResolveResp](t, rec).Resolved)

	rec = doReq(t, h, http.MethodGet, "/resolve?path=../x")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	ctl := &fakeController{}
	h := setupRouter(t, "", ctl)
	assert.Equal(t, http.StatusNotFound, doReq(t, h, http.MethodGet, "/metrics").Code)

	m := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ocsup_server_stops_total 0\n"))
	})
	h = setupRouter(t, "", ctl, WithMetrics(m))
	rec := doReq(t, h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "ocsup_server_stops_total"))
}

func TestUnknownRoute(t *testing.T) {
	h := setupRouter(t, "/api", &fakeController{})
	assert.Equal(t, http.StatusNotFound, doReq(t, h, http.MethodGet, "/status").Code)
	assert.Equal(t, http.StatusNotFound, doReq(t, h, http.MethodGet, "/api/start").Code)
}

func TestNewServerReportsBindError(t *testing.T) {
	ctl := &fakeController{}
	srv, err := NewServer("127.0.0.1:0", "/api", ctl)
	require.NoError(t, err)
	defer func() { _ = srv.Close() }()

	resp, err := http.Get("http://" + srv.Addr + "/api/status")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, err = NewServer(srv.Addr, "/api", ctl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), srv.Addr)
}
