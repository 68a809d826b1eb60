// Package history records server lifecycle events to external stores.
package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart EventType = "start" // a process was spawned
	EventReady EventType = "ready" // the server answered its health check
	EventFail  EventType = "fail"  // a start attempt failed
	EventStop  EventType = "stop"  // a stop was requested
	EventCrash EventType = "crash" // the running server exited on its own
)

// Event represents one lifecycle event of the supervised server.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Project    string    `json:"project"`
	Command    string    `json:"command,omitempty"`
	PID        int       `json:"pid"`
	State      string    `json:"state"`
	ExitCode   *int      `json:"exit_code,omitempty"`
	Message    string    `json:"message,omitempty"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Table is the relational table name used by the SQL sinks.
const Table = "server_history"
