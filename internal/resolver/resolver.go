// Package resolver turns a configured executable setting into the path to launch.
// It searches the usual user-level install locations for the configured name and
// falls back to the input unchanged. It never modifies anything.
package resolver

import (
	"os"
	"path"
	"runtime"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// windowsExts are tried in order when a bare name has no extension on Windows.
var windowsExts = []string{".exe", ".cmd", ".bat"}

// Resolver searches well-known install directories. The zero value is not usable; call New.
type Resolver struct {
	fs     afero.Fs
	goos   string
	home   string
	getenv func(string) string
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithFs reads the filesystem through fs instead of the OS.
func WithFs(fs afero.Fs) Option { return func(r *Resolver) { r.fs = fs } }

// WithPlatform overrides the operating system used to pick search directories.
func WithPlatform(goos string) Option { return func(r *Resolver) { r.goos = goos } }

// WithHome overrides the user's home directory.
func WithHome(home string) Option { return func(r *Resolver) { r.home = home } }

// WithGetenv overrides environment lookups (LOCALAPPDATA, USERPROFILE).
func WithGetenv(fn func(string) string) Option { return func(r *Resolver) { r.getenv = fn } }

func New(opts ...Option) *Resolver {
	r := &Resolver{fs: afero.NewOsFs(), goos: runtime.GOOS, getenv: os.Getenv}
	for _, o := range opts {
		o(r)
	}
	if r.home == "" {
		r.home, _ = os.UserHomeDir()
	}
	return r
}

var std = New()

// Resolve uses the process-wide resolver backed by the real filesystem.
func Resolve(configured string) string { return std.Resolve(configured) }

// SearchDirectories uses the process-wide resolver backed by the real filesystem.
func SearchDirectories() []string { return std.SearchDirectories() }

// Resolve returns configured unchanged when it is an absolute path to an existing file.
// Otherwise the base name is looked up in SearchDirectories order and the first regular
// file found wins. When nothing matches the input is returned unchanged so the OS
// lookup at spawn time still gets its chance.
func (r *Resolver) Resolve(configured string) string {
	configured = strings.TrimSpace(configured)
	if configured == "" {
		return configured
	}
	if r.isAbs(configured) && r.isFile(configured) {
		return configured
	}
	name := r.base(configured)
	if name == "" {
		return configured
	}
	candidates := []string{name}
	if r.goos == "windows" && r.ext(name) == "" {
		candidates = candidates[:0]
		for _, ext := range windowsExts {
			candidates = append(candidates, name+ext)
		}
		candidates = append(candidates, name)
	}
	for _, dir := range r.SearchDirectories() {
		for _, c := range candidates {
			p := r.join(dir, c)
			if r.isFile(p) {
				return p
			}
		}
	}
	return configured
}

// SearchDirectories lists the directories Resolve consults, in priority order.
// Node versions installed by nvm are enumerated at call time in lexical order.
func (r *Resolver) SearchDirectories() []string {
	if r.goos == "windows" {
		var dirs []string
		profile := r.getenv("USERPROFILE")
		if profile == "" {
			profile = r.home
		}
		local := r.getenv("LOCALAPPDATA")
		if local == "" && profile != "" {
			local = r.join(profile, "AppData", "Local")
		}
		if local != "" {
			dirs = append(dirs, r.join(local, "opencode", "bin"))
		}
		if profile != "" {
			dirs = append(dirs, r.join(profile, ".bun", "bin"), r.join(profile, ".local", "bin"))
		}
		return dirs
	}

	var dirs []string
	if r.home != "" {
		dirs = append(dirs,
			r.join(r.home, ".local", "bin"),
			r.join(r.home, ".opencode", "bin"),
			r.join(r.home, ".bun", "bin"),
			r.join(r.home, ".npm-global", "bin"),
		)
		dirs = append(dirs, r.nvmBinDirs()...)
	}
	dirs = append(dirs, "/usr/local/bin", "/usr/bin")
	if r.goos == "darwin" {
		dirs = append(dirs, "/opt/homebrew/bin")
	}
	return dirs
}

func (r *Resolver) nvmBinDirs() []string {
	root := r.join(r.home, ".nvm", "versions", "node")
	entries, err := afero.ReadDir(r.fs, root)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, r.join(root, n, "bin"))
	}
	return out
}

func (r *Resolver) isFile(p string) bool {
	fi, err := r.fs.Stat(p)
	return err == nil && !fi.IsDir()
}

// Path helpers follow the target platform rather than the host so tests can model either.

func (r *Resolver) join(elem ...string) string {
	if r.goos == "windows" {
		return strings.Join(elem, `\`)
	}
	return path.Join(elem...)
}

func (r *Resolver) isAbs(p string) bool {
	if r.goos == "windows" {
		if len(p) >= 3 && p[1] == ':' && (p[2] == '\\' || p[2] == '/') {
			return true
		}
		return strings.HasPrefix(p, `\\`)
	}
	return strings.HasPrefix(p, "/")
}

func (r *Resolver) base(p string) string {
	if r.goos == "windows" {
		if i := strings.LastIndexAny(p, `\/`); i >= 0 {
			return p[i+1:]
		}
		return p
	}
	return path.Base(p)
}

func (r *Resolver) ext(name string) string {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return name[i:]
	}
	return ""
}
