package process

import (
	"io"
	"strings"
)

// Command describes what a Strategy should launch.
// When Shell is non-empty it is handed to the platform shell verbatim and Path/Args are ignored.
type Command struct {
	Path   string
	Args   []string
	Shell  string
	Dir    string
	Env    []string // full environment; nil inherits the parent's
	Stdout io.Writer
	Stderr io.Writer
}

// Target is the thing that was asked to run: the shell line in raw mode, the executable otherwise.
func (c Command) Target() string {
	if c.Shell != "" {
		return c.Shell
	}
	return c.Path
}

func (c Command) String() string {
	if c.Shell != "" {
		return c.Shell
	}
	if len(c.Args) == 0 {
		return c.Path
	}
	return c.Path + " " + strings.Join(c.Args, " ")
}
