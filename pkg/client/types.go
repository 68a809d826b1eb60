package client

import "time"

// ExitStatus describes how the server process last ended.
type ExitStatus struct {
	Code   int    `json:"code"`
	Signal string `json:"signal,omitempty"`
}

// Resources is the latest resource sample of the server process.
type Resources struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryRSS  uint64    `json:"memory_rss"`
	MemoryVMS  uint64    `json:"memory_vms"`
	NumThreads int32     `json:"num_threads"`
	Timestamp  time.Time `json:"timestamp"`
}

// Status is the supervisor snapshot returned by /status, /start and /restart.
type Status struct {
	State            string      `json:"state"`
	LastError        string      `json:"last_error,omitempty"`
	PID              int         `json:"pid,omitempty"`
	URL              string      `json:"url"`
	ProjectDirectory string      `json:"project_directory"`
	Mode             string      `json:"mode"`
	Command          string      `json:"command"`
	StartedAt        *time.Time  `json:"started_at,omitempty"`
	RunningSince     *time.Time  `json:"running_since,omitempty"`
	LastExit         *ExitStatus `json:"last_exit,omitempty"`
	Resources        *Resources  `json:"resources,omitempty"`
}

// URLs is returned by /url and /project.
type URLs struct {
	URL     string `json:"url"`
	BaseURL string `json:"base_url"`
}

// Resolution is returned by /resolve.
type Resolution struct {
	Configured  string   `json:"configured"`
	Resolved    string   `json:"resolved"`
	SearchPaths []string `json:"search_paths"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error  string  `json:"error"`
	Status *Status `json:"status,omitempty"`
}
