// Package mqtt publishes controller readings and lifecycle events and
// accepts commands over MQTT, with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/tec-monitor/internal/session"
)

// TopicReadings is the MQTT topic for controller samples.
const TopicReadings = "tec/controller/readings"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "tec/controller/system"

// TopicCommand is the MQTT topic the monitor takes commands from.
const TopicCommand = "tec/controller/command"

// Lifecycle event names.
const (
	EventStartup     = "STARTUP"
	EventShutdown    = "SHUTDOWN"
	EventHeartbeat   = "HEARTBEAT"
	EventOffline     = "OFFLINE"
	EventReconnected = "RECONNECTED"
)

// sampleTimeLayout keeps millisecond resolution; readings arrive every
// 100 ms by default.
const sampleTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Publisher publishes samples and events to MQTT.
type Publisher interface {
	// Publish sends a controller sample to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(sample session.Sample) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "INTERLOCK_OPEN"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload for a sample.
type Payload struct {
	TEC ReadingPayload `json:"tec"`
}

// ReadingPayload contains one controller sample.
type ReadingPayload struct {
	Timestamp    string  `json:"timestamp"`
	SetPoint     float64 `json:"set_point"`
	Temperature1 float64 `json:"temperature1"`
	Temperature2 float64 `json:"temperature2"`
	Output       float64 `json:"output"`
}

// FormatPayload creates the JSON payload for a sample.
func FormatPayload(s session.Sample) ([]byte, error) {
	payload := Payload{
		TEC: ReadingPayload{
			Timestamp:    s.Timestamp.UTC().Format(sampleTimeLayout),
			SetPoint:     s.SetPoint,
			Temperature1: s.Temperature1,
			Temperature2: s.Temperature2,
			Output:       s.Output,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
