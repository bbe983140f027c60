// Package logic contains the pure decision logic of the monitor: interlock
// debouncing, heartbeat timing and window statistics. It performs no I/O;
// time is always passed in as time.Time parameters.
package logic

import "time"

// State is the debounced level of the interlock line.
type State string

const (
	StateClosed State = "CLOSED" // safe, output may run
	StateOpen   State = "OPEN"
)

// EventType represents an interlock transition.
type EventType string

const (
	EventOpen   EventType = "INTERLOCK_OPEN"
	EventClosed EventType = "INTERLOCK_CLOSED"
)

// Event is a debounced interlock transition.
type Event struct {
	Timestamp time.Time
	Type      EventType
	State     State
}

// lineState tracks debounce state for the interlock line.
type lineState struct {
	// Current stable (debounced) state
	Stable State
	// Pending state during debounce
	Pending State
	// Time when pending state was first observed
	PendingSince time.Time
	Baselined    bool
}

// Input is a single raw reading of the interlock line.
type Input struct {
	Closed bool
	Time   time.Time
}

// EventCounts tracks the number of each event type since startup.
type EventCounts struct {
	Opened int
	Closed int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
