package main

import "time"

const defaultAPITimeout = 2 * time.Minute

// GlobalFlags holds persistent flags shared by all commands
type GlobalFlags struct {
	ConfigPath string
}

// RunFlags holds flags for the run command
type RunFlags struct {
	Project string
	Start   bool
	Listen  string
}

// APIFlags select the control API a client command talks to
type APIFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

// StartFlags holds flags for start and restart
type StartFlags struct {
	APIFlags
	Wait time.Duration
}

// ProjectFlags holds flags for the project command
type ProjectFlags struct {
	APIFlags
	Restart bool
}

// ResolveFlags holds flags for the resolve command
type ResolveFlags struct {
	Verbose bool
}
