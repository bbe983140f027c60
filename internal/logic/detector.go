package logic

import "time"

// Detector debounces the interlock line and reports transitions.
type Detector struct {
	debounceDuration time.Duration
	line             lineState
	startTime        time.Time
	eventCounts      EventCounts
	lastHeartbeat    time.Time
}

// NewDetector creates a new transition detector with the given debounce duration.
// The startTime is used for calculating uptime in heartbeat events.
func NewDetector(debounceDuration time.Duration, startTime time.Time) *Detector {
	return &Detector{
		debounceDuration: debounceDuration,
		startTime:        startTime,
		lastHeartbeat:    startTime,
	}
}

// Process takes a new reading and returns the event it caused, if any.
// No event is returned until a baseline is established; the baseline itself
// is not an event.
func (d *Detector) Process(input Input) *Event {
	newState := boolToState(input.Closed)
	now := input.Time
	l := &d.line

	if !l.Baselined {
		if l.Pending != newState {
			// First reading, or the level changed during baseline: restart.
			l.Pending = newState
			l.PendingSince = now
			return nil
		}
		if now.Sub(l.PendingSince) >= d.debounceDuration {
			l.Stable = newState
			l.Baselined = true
			l.Pending = ""
		}
		return nil
	}

	if newState == l.Stable {
		l.Pending = ""
		return nil
	}

	if l.Pending != newState {
		l.Pending = newState
		l.PendingSince = now
		return nil
	}

	if now.Sub(l.PendingSince) < d.debounceDuration {
		return nil
	}

	l.Stable = newState
	l.Pending = ""
	event := &Event{
		Timestamp: now,
		Type:      eventTypeFor(newState),
		State:     newState,
	}
	switch event.Type {
	case EventOpen:
		d.eventCounts.Opened++
	case EventClosed:
		d.eventCounts.Closed++
	}
	return event
}

func boolToState(closed bool) State {
	if closed {
		return StateClosed
	}
	return StateOpen
}

func eventTypeFor(to State) EventType {
	if to == StateOpen {
		return EventOpen
	}
	return EventClosed
}

// IsBaselined returns whether the detector has established a baseline.
func (d *Detector) IsBaselined() bool {
	return d.line.Baselined
}

// CurrentState returns the stable state, or "" before the baseline.
func (d *Detector) CurrentState() State {
	return d.line.Stable
}

// EventCountsSnapshot returns the transition counts since startup.
func (d *Detector) EventCountsSnapshot() EventCounts {
	return d.eventCounts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed
// or if interval is <= 0 (disabled).
//
// Unlike transitions, heartbeats do not wait for a baseline: a monitor
// without an interlock line still reports.
func (d *Detector) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}
	if now.Sub(d.lastHeartbeat) < interval {
		return nil
	}

	d.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(d.startTime),
		Counts:    d.eventCounts,
	}
}
