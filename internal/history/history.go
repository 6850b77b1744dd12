package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart            EventType = "start"
	EventExit             EventType = "exit"
	EventRestartScheduled EventType = "restart_scheduled"
	EventGaveUp           EventType = "gave_up"
	EventStopRequested    EventType = "stop_requested"
)

// Event is one lifecycle transition of a unit, exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Unit       string    `json:"unit"`
	PID        int       `json:"pid"`
	// Attempt is the restart attempt number the event belongs to, 0 for an
	// initial run.
	Attempt  int    `json:"attempt"`
	ExitCode int    `json:"exit_code"`
	Signal   string `json:"signal,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
