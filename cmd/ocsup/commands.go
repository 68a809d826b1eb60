package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/loykin/ocsup"
	"github.com/loykin/ocsup/internal/config"
	"github.com/loykin/ocsup/internal/process"
	"github.com/loykin/ocsup/internal/resolver"
	"github.com/loykin/ocsup/pkg/client"
)

type command struct {
	global *GlobalFlags
	out    io.Writer
}

func (c command) stdout() io.Writer {
	if c.out != nil {
		return c.out
	}
	return os.Stdout
}

func (c command) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.global.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return cfg, nil
}

// Run supervises the server in the foreground until SIGINT/SIGTERM.
func (c command) Run(ctx context.Context, f RunFlags) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if f.Project != "" {
		cfg.Server.ProjectDirectory = config.ExpandHome(f.Project)
	}
	if f.Listen != "" {
		cfg.API.Enabled = true
		cfg.API.Listen = f.Listen
	}

	sup, err := ocsup.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = sup.Close() }()
	log := sup.Logger()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var srv *http.Server
	if cfg.API.Enabled {
		srv, err = ocsup.NewHTTPServer(cfg.API.Listen, cfg.API.BasePath, sup)
		if err != nil {
			return fmt.Errorf("control API: %w", err)
		}
		log.Info("control API listening", "addr", srv.Addr, "base_path", cfg.API.BasePath)
	}

	if f.Start || cfg.Server.AutoStart {
		go func() {
			if err := sup.Start(ctx); err != nil {
				log.Error("start failed", "error", err)
				return
			}
			_, _ = fmt.Fprintln(c.stdout(), sup.URL())
		}()
	}

	<-ctx.Done()
	log.Info("shutting down")
	if srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(sctx)
		cancel()
	}
	return nil
}

func (c command) apiClient(f APIFlags) (*client.Client, error) {
	u := f.APIUrl
	if u == "" {
		cfg, err := c.loadConfig()
		if err != nil {
			return nil, err
		}
		u = apiURL(cfg.API)
	}
	return client.New(client.Config{BaseURL: u, Timeout: f.APITimeout}), nil
}

// apiURL turns api.listen into a URL a client can dial.
func apiURL(a config.API) string {
	host, port, err := net.SplitHostPort(a.Listen)
	if err != nil {
		return "http://" + a.Listen + a.BasePath
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + strings.TrimRight(a.BasePath, "/")
}

func (c command) reachable(ctx context.Context, f APIFlags) (*client.Client, error) {
	cl, err := c.apiClient(f)
	if err != nil {
		return nil, err
	}
	if !cl.IsReachable(ctx) {
		return nil, errors.New("ocsup not reachable - start it first with 'ocsup run'")
	}
	return cl, nil
}

func (c command) Status(ctx context.Context, f APIFlags) error {
	cl, err := c.reachable(ctx, f)
	if err != nil {
		return err
	}
	st, err := cl.Status(ctx)
	if err != nil {
		return err
	}
	printJSON(c.stdout(), st)
	return nil
}

func (c command) Start(ctx context.Context, f StartFlags, restart bool) error {
	cl, err := c.reachable(ctx, f.APIFlags)
	if err != nil {
		return err
	}
	var st client.Status
	if restart {
		st, err = cl.Restart(ctx, f.Wait)
	} else {
		st, err = cl.Start(ctx, f.Wait)
	}
	if st.State != "" {
		printJSON(c.stdout(), st)
	}
	return err
}

func (c command) Stop(ctx context.Context, f APIFlags) error {
	cl, err := c.reachable(ctx, f)
	if err != nil {
		return err
	}
	if err := cl.Stop(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.stdout(), "stopped")
	return nil
}

func (c command) URL(ctx context.Context, f APIFlags) error {
	cl, err := c.reachable(ctx, f)
	if err != nil {
		return err
	}
	u, err := cl.URL(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.stdout(), u.URL)
	return nil
}

func (c command) Project(ctx context.Context, f ProjectFlags, dir string) error {
	abs, err := filepath.Abs(config.ExpandHome(dir))
	if err != nil {
		return err
	}
	cl, err := c.reachable(ctx, f.APIFlags)
	if err != nil {
		return err
	}
	u, err := cl.SetProjectDirectory(ctx, abs)
	if err != nil {
		return err
	}
	if f.Restart {
		if _, err := cl.Restart(ctx, 0); err != nil {
			return err
		}
	}
	_, _ = fmt.Fprintln(c.stdout(), u.URL)
	return nil
}

// executable returns name, or the configured executable when name is empty.
func (c command) executable(name string) (string, error) {
	if name != "" {
		return name, nil
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.Server.UseCustomCommand {
		return "", errors.New("a custom command is configured; pass an executable to resolve")
	}
	return cfg.Server.Executable, nil
}

func (c command) Resolve(f ResolveFlags, name string) error {
	name, err := c.executable(name)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.stdout(), resolver.Resolve(name))
	if f.Verbose {
		_, _ = fmt.Fprintln(c.stdout(), "searched:")
		for _, d := range resolver.SearchDirectories() {
			_, _ = fmt.Fprintf(c.stdout(), "  %s\n", d)
		}
	}
	return nil
}

func (c command) Verify(name string) error {
	name, err := c.executable(name)
	if err != nil {
		return err
	}
	path := resolver.Resolve(name)
	if err := process.NewStrategy(nil).Verify(path); err != nil {
		return err
	}
	// Verify leaves unresolved bare names to the spawn-time lookup; check PATH here.
	if !strings.ContainsAny(path, `/\`) {
		found, err := exec.LookPath(path)
		if err != nil {
			return fmt.Errorf("%w: '%s' is in no search directory and not found on PATH", process.ErrNotFound, path)
		}
		path = found
	}
	_, _ = fmt.Fprintf(c.stdout(), "ok: %s\n", path)
	return nil
}
