// Package status provides a thread-safe status tracker for the tec-monitor
// daemon. It is read by HTTP handlers and used to build MQTT lifecycle
// payloads.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/tec-monitor/internal/logic"
	"github.com/sweeney/tec-monitor/internal/session"
)

// Config contains daemon configuration for display.
type Config struct {
	Device      string // serial port path, or "simulation"
	PollMs      int64
	DispatchMs  int64
	HistorySize int
	DebounceMs  int64
	HeartbeatMs int64
	Broker      string
	HTTPPort    string
	LogDir      string
}

// LoggingState describes the data log.
type LoggingState struct {
	Enabled bool
	Prefix  string
	Path    string
	Lines   int
}

// InterlockState describes the interlock input.
type InterlockState struct {
	Enabled   bool
	State     logic.State
	Baselined bool
	Counts    logic.EventCounts
}

// MQTTStats counts messages on their way to the broker.
type MQTTStats struct {
	Sent         uint64 // samples handed to the publisher
	QueueDropped uint64 // samples dropped before the publisher saw them
	Buffered     int    // messages waiting for a connection
	Dropped      uint64 // messages discarded while disconnected
}

// StreamState describes the websocket sample stream.
type StreamState struct {
	Clients int
	Dropped uint64
}

// SettleTolerance is how far, in °C, every Temperature1 in the window may
// stray from the set-point for the plate to count as settled.
const SettleTolerance = 0.5

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Latest    session.Sample
	HasSample bool
	Health    session.Health
	// Window summarises Temperature1 over the history window; nil until
	// the first refresh with samples.
	Window        *logic.Summary
	Logging       LoggingState
	Interlock     InterlockState
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	MQTT          MQTTStats
	Stream        StreamState
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Ready reports whether the monitor is polling and has a reading.
func (s Snapshot) Ready() bool {
	return s.HasSample && s.Health.PollRunning
}

// Settled reports whether the history window sits within SettleTolerance
// of the latest set-point.
func (s Snapshot) Settled() bool {
	return s.HasSample && s.Window != nil && s.Window.Settled(s.Latest.SetPoint, SettleTolerance)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// OnSample records the latest reading. It implements session.Subscriber.
func (t *Tracker) OnSample(s session.Sample) {
	t.mu.Lock()
	t.snap.Latest = s
	t.snap.HasSample = true
	t.mu.Unlock()
}

// SetHealth records session loop state and counters.
func (t *Tracker) SetHealth(h session.Health) {
	t.mu.Lock()
	t.snap.Health = h
	t.mu.Unlock()
}

// SetWindow records the history window summary. A nil summary clears it.
func (t *Tracker) SetWindow(s *logic.Summary) {
	t.mu.Lock()
	t.snap.Window = s
	t.mu.Unlock()
}

// SetLogging records the data log state.
func (t *Tracker) SetLogging(l LoggingState) {
	t.mu.Lock()
	t.snap.Logging = l
	t.mu.Unlock()
}

// SetInterlock records the interlock state.
func (t *Tracker) SetInterlock(i InterlockState) {
	t.mu.Lock()
	t.snap.Interlock = i
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetMQTTStats records publisher and forwarder counters.
func (t *Tracker) SetMQTTStats(m MQTTStats) {
	t.mu.Lock()
	t.snap.MQTT = m
	t.mu.Unlock()
}

// SetStream records the websocket stream state.
func (t *Tracker) SetStream(st StreamState) {
	t.mu.Lock()
	t.snap.Stream = st
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.Window != nil {
		w := *s.Window
		s.Window = &w
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
