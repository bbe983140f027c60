package web

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"github.com/sweeney/tec-monitor/internal/command"
	"github.com/sweeney/tec-monitor/internal/datalog"
	"github.com/sweeney/tec-monitor/internal/logic"
	"github.com/sweeney/tec-monitor/internal/session"
	"github.com/sweeney/tec-monitor/internal/status"
	"github.com/sweeney/tec-monitor/internal/tec"
)

// fakeController records submitted commands and serves a fixed history.
type fakeController struct {
	mu        sync.Mutex
	submitted []command.Command
	series    session.Series
}

func (f *fakeController) Submit(cmds ...command.Command) {
	f.mu.Lock()
	f.submitted = append(f.submitted, cmds...)
	f.mu.Unlock()
}

func (f *fakeController) History() session.Series {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.series
}

func (f *fakeController) Submitted() []command.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]command.Command(nil), f.submitted...)
}

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func testSeries(n int) session.Series {
	var s session.Series
	for i := 0; i < n; i++ {
		s.Times = append(s.Times, start.Add(time.Duration(i)*100*time.Millisecond))
		s.SetPoints = append(s.SetPoints, 25)
		s.Temperature1 = append(s.Temperature1, 22+float64(i)*0.1)
		s.Temperature2 = append(s.Temperature2, 30)
		s.Output = append(s.Output, 50-float64(i))
	}
	return s
}

type testEnv struct {
	ts      *httptest.Server
	tracker *status.Tracker
	ctrl    *fakeController
	dlog    *datalog.Logger
	hub     *Hub
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()
	cfg := status.Config{
		Device:      "simulation",
		PollMs:      100,
		DispatchMs:  100,
		HistorySize: 1000,
		HeartbeatMs: 900000,
		Broker:      "tcp://192.168.1.200:1883",
		HTTPPort:    ":8080",
	}
	env := &testEnv{
		tracker: status.NewTracker(start, cfg),
		ctrl:    &fakeController{},
		dlog:    datalog.New(t.TempDir(), datalog.WithLogger(log)),
		hub:     NewHub(log),
	}
	srv := New(":0", env.tracker, env.ctrl, env.dlog, env.hub, log)
	env.ts = httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		env.hub.Close()
		env.ts.Close()
		env.dlog.Close()
	})
	return env
}

func post(t *testing.T, url, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func TestJSONEndpoint(t *testing.T) {
	env := newTestServer(t)
	env.tracker.OnSample(session.Sample{Timestamp: start, SetPoint: 25, Temperature1: 24.5, Temperature2: 30, Output: 12})
	env.tracker.SetHealth(session.Health{PollRunning: true, DispatchRunning: true, Samples: 42})
	env.tracker.SetMQTTConnected(true)

	resp, err := http.Get(env.ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if !sj.Status.Ready {
		t.Error("expected Ready=true")
	}
	if sj.Status.Reading == nil || sj.Status.Reading.Temperature1 != 24.5 {
		t.Errorf("Reading: got %+v", sj.Status.Reading)
	}
	if sj.Status.Session.Samples != 42 {
		t.Errorf("Session.Samples: got %d, want 42", sj.Status.Session.Samples)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.Config.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("Config.Broker: got %q", sj.Status.Config.Broker)
	}
}

func TestHTMLEndpoint(t *testing.T) {
	env := newTestServer(t)
	env.tracker.OnSample(session.Sample{Timestamp: start, SetPoint: 25, Temperature1: 24.5, Temperature2: 30, Output: 12})
	env.tracker.SetWindow(&logic.Summary{Count: 10, Mean: 24.5, StdDev: 0.1, Min: 24.3, Max: 24.7})

	for _, path := range []string{"/", "/index.html"} {
		resp, err := http.Get(env.ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != 200 {
			t.Errorf("%s status: got %d, want 200", path, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "text/html; charset=utf-8" {
			t.Errorf("%s Content-Type: got %q", path, ct)
		}
		html := string(body)
		for _, want := range []string{"TEC Monitor", "24.50 °C", "12.0 %", "mean 24.50", "simulation", "/plot.png", "tcp://192.168.1.200:1883"} {
			if !strings.Contains(html, want) {
				t.Errorf("%s: missing %q", path, want)
			}
		}
	}
}

func TestHTMLShowsSettledAndCounters(t *testing.T) {
	env := newTestServer(t)
	env.tracker.OnSample(session.Sample{Timestamp: start, SetPoint: 24.5, Temperature1: 24.5})
	env.tracker.SetWindow(&logic.Summary{Count: 10, Mean: 24.5, Min: 24.3, Max: 24.7})
	env.tracker.SetMQTTStats(status.MQTTStats{Sent: 321, QueueDropped: 4, Buffered: 17, Dropped: 9})
	env.tracker.SetStream(status.StreamState{Clients: 2, Dropped: 5})

	resp, err := http.Get(env.ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	html := string(body)
	for _, want := range []string{
		`<tr><th>Settled</th><td class="ok">yes</td></tr>`,
		`<tr><th>Samples sent</th><td>321</td></tr>`,
		`<tr><th>Samples skipped</th><td>4</td></tr>`,
		`<tr><th>Awaiting broker</th><td>17</td></tr>`,
		`<td class="bad">9</td>`,
		`<tr><th>Live viewers</th><td>2</td></tr>`,
		`<tr><th>Live frames dropped</th><td>5</td></tr>`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("missing %q", want)
		}
	}

	resp, err = http.Get(env.ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()
	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if sj.Status.MQTT.Dropped != 9 || sj.Status.MQTT.Buffered != 17 || sj.Status.Stream.Clients != 2 {
		t.Errorf("counters: mqtt %+v stream %+v", sj.Status.MQTT, sj.Status.Stream)
	}
	if sj.Status.Window == nil || !sj.Status.Window.Settled {
		t.Errorf("Window: got %+v", sj.Status.Window)
	}
}

func TestHTMLBeforeFirstSample(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Get(env.ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if !strings.Contains(string(body), "no samples yet") {
		t.Error("expected placeholder before first sample")
	}
}

func TestUnknownPath404(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Get(env.ts.URL + "/nope")
	if err != nil {
		t.Fatalf("GET /nope: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestHistoryJSON(t *testing.T) {
	env := newTestServer(t)
	env.ctrl.series = testSeries(3)

	resp, err := http.Get(env.ts.URL + "/history.json")
	if err != nil {
		t.Fatalf("GET /history.json: %v", err)
	}
	defer resp.Body.Close()

	var h HistoryJSON
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(h.Times) != 3 {
		t.Fatalf("times: got %d, want 3", len(h.Times))
	}
	if h.Times[1]-h.Times[0] < 0.099 || h.Times[1]-h.Times[0] > 0.101 {
		t.Errorf("times not 100ms apart: %v", h.Times)
	}
	if h.Times[0] != float64(start.Unix()) {
		t.Errorf("times[0]: got %v, want %v", h.Times[0], start.Unix())
	}
	if len(h.Data) != 4 {
		t.Fatalf("data: got %d columns, want 4", len(h.Data))
	}
	for i, col := range h.Data {
		if len(col) != 3 {
			t.Errorf("column %d: got %d values, want 3", i, len(col))
		}
	}
	if h.Data[0][0] != 25 || h.Data[3][2] != 48 {
		t.Errorf("unexpected column order: %v", h.Data)
	}
}

func TestHistoryJSONEmpty(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Get(env.ts.URL + "/history.json")
	if err != nil {
		t.Fatalf("GET /history.json: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	want := `{"times":[],"data":[[],[],[],[]]}`
	if strings.TrimSpace(string(body)) != want {
		t.Errorf("got %s, want %s", body, want)
	}
}

func TestPlotPNG(t *testing.T) {
	env := newTestServer(t)
	env.ctrl.series = testSeries(50)

	resp, err := http.Get(env.ts.URL + "/plot.png")
	if err != nil {
		t.Fatalf("GET /plot.png: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d, want 200: %s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type: got %q", ct)
	}
	if !bytes.HasPrefix(body, []byte("\x89PNG\r\n\x1a\n")) {
		t.Error("body is not a PNG")
	}
}

func TestPlotWithoutSamples(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Get(env.ts.URL + "/plot.png")
	if err != nil {
		t.Fatalf("GET /plot.png: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", resp.StatusCode)
	}
}

func TestSetPointSubmitsBundle(t *testing.T) {
	env := newTestServer(t)

	resp, body := post(t, env.ts.URL+"/api/setpoint", `{"value": 25}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202: %s", resp.StatusCode, body)
	}

	got := env.ctrl.Submitted()
	want := []command.Command{
		command.SetMode{Mode: tec.ModeNormal},
		command.SetControlMode{Mode: tec.ControlPID},
		command.SetTemperature{Value: 25},
	}
	if len(got) != len(want) {
		t.Fatalf("submitted %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d: got %v, want %v", i, got[i], want[i])
		}
	}

	var q QueuedResponse
	if err := json.Unmarshal(body, &q); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(q.Queued) != 3 || q.Queued[2] != "set_temperature(25)" {
		t.Errorf("queued: got %v", q.Queued)
	}
}

func TestSetPointRejected(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"out of range high", `{"value": 60.5}`, http.StatusUnprocessableEntity},
		{"out of range low", `{"value": -21}`, http.StatusUnprocessableEntity},
		{"missing value", `{}`, http.StatusBadRequest},
		{"not json", `25`, http.StatusBadRequest},
		{"unknown field", `{"value": 25, "ramp": true}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestServer(t)
			resp, body := post(t, env.ts.URL+"/api/setpoint", tt.body)
			if resp.StatusCode != tt.code {
				t.Errorf("status: got %d, want %d: %s", resp.StatusCode, tt.code, body)
			}
			if n := len(env.ctrl.Submitted()); n != 0 {
				t.Errorf("rejected request submitted %d commands", n)
			}
			var e ErrorResponse
			if err := json.Unmarshal(body, &e); err != nil || e.Error == "" {
				t.Errorf("expected an error body, got %s", body)
			}
		})
	}
}

func TestSetPointBoundsInclusive(t *testing.T) {
	env := newTestServer(t)
	for _, v := range []string{"-20", "60"} {
		resp, body := post(t, env.ts.URL+"/api/setpoint", `{"value": `+v+`}`)
		if resp.StatusCode != http.StatusAccepted {
			t.Errorf("value %s: got %d: %s", v, resp.StatusCode, body)
		}
	}
}

func TestSetPointRequiresPost(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Get(env.ts.URL + "/api/setpoint")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusAccepted {
		t.Error("GET must not submit commands")
	}
	if n := len(env.ctrl.Submitted()); n != 0 {
		t.Errorf("GET submitted %d commands", n)
	}
}

func TestOutputEndpoint(t *testing.T) {
	env := newTestServer(t)

	resp, body := post(t, env.ts.URL+"/api/output", `{"enabled": false}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status: got %d: %s", resp.StatusCode, body)
	}
	got := env.ctrl.Submitted()
	if len(got) != 1 || got[0] != (command.SetOutputEnable{Enabled: false}) {
		t.Errorf("submitted %v", got)
	}

	resp, _ = post(t, env.ts.URL+"/api/output", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing enabled: got %d, want 400", resp.StatusCode)
	}
}

func TestCommandEndpoint(t *testing.T) {
	env := newTestServer(t)

	resp, body := post(t, env.ts.URL+"/api/command", `{"command":"set_mode","args":[1]}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status: got %d: %s", resp.StatusCode, body)
	}
	got := env.ctrl.Submitted()
	if len(got) != 1 || got[0] != (command.SetMode{Mode: tec.ModeRamp}) {
		t.Errorf("submitted %v", got)
	}

	resp, _ = post(t, env.ts.URL+"/api/command", `{"command":"self_destruct","args":[]}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown command: got %d, want 404", resp.StatusCode)
	}
	resp, _ = post(t, env.ts.URL+"/api/command", `{"command":"set_mode","args":[7]}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("bad args: got %d, want 422", resp.StatusCode)
	}
}

func TestLoggingEndpoint(t *testing.T) {
	env := newTestServer(t)

	resp, body := post(t, env.ts.URL+"/api/logging", `{"enabled": true, "prefix": "run1"}`)
	if resp.StatusCode != 200 {
		t.Fatalf("enable: got %d: %s", resp.StatusCode, body)
	}
	var lr LoggingResponse
	json.Unmarshal(body, &lr)
	if !lr.Enabled || !strings.Contains(lr.Path, "run1_") {
		t.Errorf("enable response: %+v", lr)
	}
	if !env.dlog.Enabled() {
		t.Error("data log not enabled")
	}

	resp, body = post(t, env.ts.URL+"/api/logging", `{"enabled": false}`)
	if resp.StatusCode != 200 {
		t.Fatalf("disable: got %d: %s", resp.StatusCode, body)
	}
	if env.dlog.Enabled() {
		t.Error("data log still enabled")
	}

	resp, _ = post(t, env.ts.URL+"/api/logging", `{"enabled": true, "prefix": "../escape"}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("bad prefix: got %d, want 422", resp.StatusCode)
	}
}

func TestLoggingEndpointWithoutDataLog(t *testing.T) {
	srv := New(":0", status.NewTracker(start, status.Config{}), &fakeController{}, nil, nil, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, _ := post(t, ts.URL+"/api/logging", `{"enabled": true}`)
	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("status: got %d, want 501", resp.StatusCode)
	}
}

func TestWebsocketStream(t *testing.T) {
	env := newTestServer(t)

	url := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.hub.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	env.hub.OnSample(session.Sample{Timestamp: start, SetPoint: 25, Temperature1: 24.25, Temperature2: 30, Output: -5})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var s SampleJSON
	if err := json.Unmarshal(msg, &s); err != nil {
		t.Fatalf("decode %s: %v", msg, err)
	}
	if s.Temperature1 != 24.25 || s.Output != -5 || s.Time != float64(start.Unix()) {
		t.Errorf("unexpected message %+v", s)
	}

	env.hub.Close()
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the connection to close with the hub")
	}
}
