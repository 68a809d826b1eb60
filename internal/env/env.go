// Package env composes the environment handed to the server process.
package env

import (
	"os"
	"sort"
	"strings"
)

type Var map[string]string

// Env layers overrides on top of a base environment. Layers are applied in order:
// base (the OS environment unless replaced), global Var, then per-start pairs.
type Env struct {
	Var  Var // global overrides (K->V)
	base Var // cached base, captured lazily from the OS
}

func New() *Env {
	return &Env{Var: make(Var)}
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() *Env {
	e.base = Parse(os.Environ())
	return e
}

// WithBase replaces the base environment, mostly for tests.
func (e *Env) WithBase(kv []string) *Env {
	e.base = Parse(kv)
	return e
}

// Set sets a global override K=V.
func (e *Env) Set(k, v string) {
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// WithSet is Set in builder form.
func (e *Env) WithSet(k, v string) *Env {
	e.Set(k, v)
	return e
}

// Unset removes a global override. The base value, if any, is kept.
func (e *Env) Unset(k string) {
	delete(e.Var, k)
}

// Merge composes the final KEY=VALUE list sorted by key. ${VAR} references in values
// are expanded once against the composed map; unknown references become empty.
func (e *Env) Merge(perStart []string) []string {
	if e.base == nil {
		e.FromOS()
	}
	m := make(Var, len(e.base)+len(e.Var)+len(perStart))
	for k, v := range e.base {
		m[k] = v
	}
	for k, v := range e.Var {
		if k != "" {
			m[k] = v
		}
	}
	for k, v := range Parse(perStart) {
		m[k] = v
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+expand(m[k], m))
	}
	return out
}

// Parse splits KEY=VALUE pairs, skipping malformed entries and empty keys.
func Parse(kv []string) Var {
	m := make(Var, len(kv))
	for _, pair := range kv {
		i := strings.IndexByte(pair, '=')
		if i <= 0 {
			continue
		}
		m[pair[:i]] = pair[i+1:]
	}
	return m
}

// expand replaces ${NAME}; a bare $ is left alone so shell-ish values pass through.
func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		j := strings.IndexByte(s[i+2:], '}')
		if j < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		b.WriteString(m[s[i+2:i+2+j]])
		s = s[i+2+j+1:]
	}
}
