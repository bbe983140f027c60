package web

import "github.com/sweeney/tec-monitor/internal/session"

// HistoryJSON is the plot snapshot served at /history.json. Data holds the
// set-point, temperature 1, temperature 2 and output columns, in that
// order, each aligned with Times (unix seconds).
type HistoryJSON struct {
	Times []float64   `json:"times"`
	Data  [][]float64 `json:"data"`
}

// SetPointRequest is the body of POST /api/setpoint.
type SetPointRequest struct {
	Value *float64 `json:"value"`
}

// OutputRequest is the body of POST /api/output.
type OutputRequest struct {
	Enabled *bool `json:"enabled"`
}

// CommandRequest is the body of POST /api/command; the same shape as an
// MQTT command message.
type CommandRequest struct {
	Command string    `json:"command"`
	Args    []float64 `json:"args"`
}

// LoggingRequest is the body of POST /api/logging.
type LoggingRequest struct {
	Enabled *bool  `json:"enabled"`
	Prefix  string `json:"prefix"`
}

// QueuedResponse lists the commands accepted for dispatch.
type QueuedResponse struct {
	Queued []string `json:"queued"`
}

// LoggingResponse reports the data log after a toggle.
type LoggingResponse struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// ErrorResponse carries a request error.
type ErrorResponse struct {
	Error string `json:"error"`
}

func historyJSON(s session.Series) HistoryJSON {
	times := make([]float64, s.Len())
	for i, t := range s.Times {
		times[i] = float64(t.UnixMicro()) / 1e6
	}
	return HistoryJSON{
		Times: times,
		Data: [][]float64{
			nonNil(s.SetPoints),
			nonNil(s.Temperature1),
			nonNil(s.Temperature2),
			nonNil(s.Output),
		},
	}
}

func nonNil(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}
