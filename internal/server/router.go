package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/ocsup/internal/resolver"
	"github.com/loykin/ocsup/internal/supervisor"
)

// Controller is the part of the supervisor the control API drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
	Snapshot() supervisor.Status
	URL() string
	APIBaseURL() string
	UpdateProjectDirectory(dir string)
}

// Router serves the local control API.
// Endpoints:
//
//	GET  {basePath}/status
//	POST {basePath}/start      query: timeout=30s (optional)
//	POST {basePath}/stop
//	POST {basePath}/restart    query: timeout=30s (optional)
//	GET  {basePath}/url
//	PUT  {basePath}/project    query: dir=/abs/path
//	GET  {basePath}/resolve    query: path=opencode (optional)
//	GET  {basePath}/metrics    when a metrics handler is set
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	ctl      Controller
	basePath string
	resolver *resolver.Resolver
	metrics  http.Handler
}

type RouterOption func(*Router)

// WithMetrics mounts h at {basePath}/metrics.
func WithMetrics(h http.Handler) RouterOption { return func(r *Router) { r.metrics = h } }

// WithResolver replaces the resolver used by /resolve.
func WithResolver(res *resolver.Resolver) RouterOption { return func(r *Router) { r.resolver = res } }

func NewRouter(ctl Controller, basePath string, opts ...RouterOption) *Router {
	r := &Router{ctl: ctl, basePath: mountPath(basePath), resolver: resolver.New()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.POST("/restart", r.handleRestart)
	group.GET("/url", r.handleURL)
	group.PUT("/project", r.handleProject)
	group.GET("/resolve", r.handleResolve)
	if r.metrics != nil {
		group.GET("/metrics", gin.WrapH(r.metrics))
	}
	return g
}

// NewServer binds addr and serves this router on it in the background. Bind
// errors are returned; Addr on the result is the bound address, so ":0" works.
// Shut it down with the returned server's Shutdown or Close.
func NewServer(addr, basePath string, ctl Controller, opts ...RouterOption) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	r := NewRouter(ctl, basePath, opts...)
	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// start and restart block until the server is ready
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	go func() { _ = server.Serve(ln) }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error  string             `json:"error"`
	Status *supervisor.Status `json:"status,omitempty"`
}

type okResp struct {
	OK bool `json:"ok"`
}

// URLResp is returned by /url.
type URLResp struct {
	URL     string `json:"url"`
	BaseURL string `json:"base_url"`
}

// ResolveResp is returned by /resolve.
type ResolveResp struct {
	Configured  string   `json:"configured"`
	Resolved    string   `json:"resolved"`
	SearchPaths []string `json:"search_paths"`
}

func (r *Router) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, r.ctl.Snapshot())
}

func (r *Router) handleStart(c *gin.Context) {
	r.runStart(c, r.ctl.Start)
}

func (r *Router) handleRestart(c *gin.Context) {
	r.runStart(c, r.ctl.Restart)
}

// runStart blocks until fn returns and reports the resulting status. A failed start
// is reported as 503 with the supervisor's last error.
func (r *Router) runStart(c *gin.Context, fn func(context.Context) error) {
	ctx := c.Request.Context()
	if t := c.Query("timeout"); t != "" {
		d, err := time.ParseDuration(t)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, errorResp{Error: "invalid timeout: " + t})
			return
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	err := fn(ctx)
	st := r.ctl.Snapshot()
	switch {
	case err == nil:
		c.JSON(http.StatusOK, st)
	case errors.Is(err, supervisor.ErrStartAborted):
		c.JSON(http.StatusConflict, errorResp{Error: err.Error(), Status: &st})
	default:
		c.JSON(http.StatusServiceUnavailable, errorResp{Error: err.Error(), Status: &st})
	}
}

func (r *Router) handleStop(c *gin.Context) {
	// Stop never fails; a cancelled request only stops waiting for the exit.
	_ = r.ctl.Stop(c.Request.Context())
	c.JSON(http.StatusOK, okResp{OK: true})
}

func (r *Router) handleURL(c *gin.Context) {
	c.JSON(http.StatusOK, URLResp{URL: r.ctl.URL(), BaseURL: r.ctl.APIBaseURL()})
}

func (r *Router) handleProject(c *gin.Context) {
	dir, err := projectDir(c.Query("dir"))
	if err != nil {
		badRequest(c, err)
		return
	}
	r.ctl.UpdateProjectDirectory(dir)
	c.JSON(http.StatusOK, URLResp{URL: r.ctl.URL(), BaseURL: r.ctl.APIBaseURL()})
}

func (r *Router) handleResolve(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		path = r.ctl.Snapshot().Command
	}
	path, err := executableArg(path)
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, ResolveResp{
		Configured:  path,
		Resolved:    r.resolver.Resolve(path),
		SearchPaths: r.resolver.SearchDirectories(),
	})
}
