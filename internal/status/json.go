package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/tec-monitor/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string         `json:"event,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Ready         bool           `json:"ready"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     string         `json:"start_time"`
	Timestamp     string         `json:"timestamp"`
	Reading       *ReadingJSON   `json:"reading,omitempty"`
	Window        *WindowJSON    `json:"window,omitempty"`
	Session       SessionJSON    `json:"session"`
	Logging       LoggingJSON    `json:"logging"`
	Interlock     InterlockJSON  `json:"interlock"`
	MQTT          MQTTStatus     `json:"mqtt"`
	Stream        StreamJSON     `json:"stream"`
	Config        ConfigJSON     `json:"config"`
}

// WindowJSON summarises Temperature1 over the history window.
type WindowJSON struct {
	logic.Summary
	Settled bool `json:"settled"`
}

// ReadingJSON is the latest sample.
type ReadingJSON struct {
	Timestamp    string  `json:"timestamp"`
	SetPoint     float64 `json:"set_point"`
	Temperature1 float64 `json:"temperature1"`
	Temperature2 float64 `json:"temperature2"`
	Output       float64 `json:"output"`
}

// SessionJSON reports the poll and dispatch loops.
type SessionJSON struct {
	PollRunning     bool   `json:"poll_running"`
	DispatchRunning bool   `json:"dispatch_running"`
	Samples         uint64 `json:"samples"`
	PollErrors      uint64 `json:"poll_errors"`
	CommandsApplied uint64 `json:"commands_applied"`
	CommandErrors   uint64 `json:"command_errors"`
	QueueDepth      int    `json:"queue_depth"`
	LastError       string `json:"last_error,omitempty"`
	LastErrorAt     string `json:"last_error_at,omitempty"`
}

// LoggingJSON reports the data log.
type LoggingJSON struct {
	Enabled bool   `json:"enabled"`
	Prefix  string `json:"prefix,omitempty"`
	Path    string `json:"path,omitempty"`
	Lines   int    `json:"lines"`
}

// InterlockJSON reports the interlock input.
type InterlockJSON struct {
	Enabled bool   `json:"enabled"`
	State   string `json:"state"`
	Ready   bool   `json:"ready"`
	Opened  int    `json:"opened"`
	Closed  int    `json:"closed"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected    bool   `json:"connected"`
	Broker       string `json:"broker"`
	Sent         uint64 `json:"sent"`
	QueueDropped uint64 `json:"queue_dropped"`
	Buffered     int    `json:"buffered"`
	Dropped      uint64 `json:"dropped"`
}

// StreamJSON reports the websocket sample stream.
type StreamJSON struct {
	Clients int    `json:"clients"`
	Dropped uint64 `json:"dropped"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Device      string `json:"device"`
	PollMs      int64  `json:"poll_ms"`
	DispatchMs  int64  `json:"dispatch_ms"`
	HistorySize int    `json:"history_size"`
	DebounceMs  int64  `json:"debounce_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPPort    string `json:"http_port"`
	LogDir      string `json:"log_dir"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Ready:         snap.Ready(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Session: SessionJSON{
			PollRunning:     snap.Health.PollRunning,
			DispatchRunning: snap.Health.DispatchRunning,
			Samples:         snap.Health.Samples,
			PollErrors:      snap.Health.PollErrors,
			CommandsApplied: snap.Health.CommandsApplied,
			CommandErrors:   snap.Health.CommandErrors,
			QueueDepth:      snap.Health.QueueDepth,
			LastError:       snap.Health.LastError,
		},
		Logging: LoggingJSON{
			Enabled: snap.Logging.Enabled,
			Prefix:  snap.Logging.Prefix,
			Path:    snap.Logging.Path,
			Lines:   snap.Logging.Lines,
		},
		Interlock: InterlockJSON{
			Enabled: snap.Interlock.Enabled,
			State:   interlockState(snap.Interlock),
			Ready:   snap.Interlock.Baselined,
			Opened:  snap.Interlock.Counts.Opened,
			Closed:  snap.Interlock.Counts.Closed,
		},
		MQTT: MQTTStatus{
			Connected:    snap.MQTTConnected,
			Broker:       snap.Config.Broker,
			Sent:         snap.MQTT.Sent,
			QueueDropped: snap.MQTT.QueueDropped,
			Buffered:     snap.MQTT.Buffered,
			Dropped:      snap.MQTT.Dropped,
		},
		Stream: StreamJSON{Clients: snap.Stream.Clients, Dropped: snap.Stream.Dropped},
		Config: ConfigJSON{
			Device:      snap.Config.Device,
			PollMs:      snap.Config.PollMs,
			DispatchMs:  snap.Config.DispatchMs,
			HistorySize: snap.Config.HistorySize,
			DebounceMs:  snap.Config.DebounceMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPPort:    snap.Config.HTTPPort,
			LogDir:      snap.Config.LogDir,
		},
	}
	if !snap.Health.LastErrorAt.IsZero() {
		inner.Session.LastErrorAt = snap.Health.LastErrorAt.UTC().Format(time.RFC3339)
	}
	if snap.Window != nil {
		inner.Window = &WindowJSON{Summary: *snap.Window, Settled: snap.Settled()}
	}
	if snap.HasSample {
		inner.Reading = &ReadingJSON{
			Timestamp:    snap.Latest.Timestamp.UTC().Format(time.RFC3339Nano),
			SetPoint:     snap.Latest.SetPoint,
			Temperature1: snap.Latest.Temperature1,
			Temperature2: snap.Latest.Temperature2,
			Output:       snap.Latest.Output,
		}
	}
	return inner
}

func interlockState(i InterlockState) string {
	switch {
	case !i.Enabled:
		return "DISABLED"
	case i.State == "":
		return "UNKNOWN"
	}
	return string(i.State)
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
