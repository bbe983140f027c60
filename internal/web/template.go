package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/tec-monitor/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"celsius": func(v float64) string { return fmt.Sprintf("%.2f °C", v) },
	"percent": func(v float64) string { return fmt.Sprintf("%.1f %%", v) },
	"interlock": func(i status.InterlockState) string {
		switch {
		case !i.Enabled:
			return "disabled"
		case i.State == "":
			return "UNKNOWN"
		}
		return string(i.State)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>TEC Monitor</title>
<style>
body { font-family: monospace; max-width: 820px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
img { width: 100%; }
.ok { color: green; font-weight: bold; }
.bad { color: red; font-weight: bold; }
.unknown { color: orange; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>TEC Monitor<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>Reading</h2>
<table>
{{if .HasSample}}
<tr><th>Set-point</th><td id="sp">{{celsius .Latest.SetPoint}}</td></tr>
<tr><th>Sensor 1</th><td id="t1">{{celsius .Latest.Temperature1}}</td></tr>
<tr><th>Sensor 2</th><td id="t2">{{celsius .Latest.Temperature2}}</td></tr>
<tr><th>Output</th><td id="out">{{percent .Latest.Output}}</td></tr>
<tr><th>At</th><td id="at">{{.Latest.Timestamp.UTC.Format "2006-01-02T15:04:05.000Z"}}</td></tr>
{{else}}
<tr><th>Reading</th><td class="unknown">no samples yet</td></tr>
{{end}}
{{with .Window}}<tr><th>Sensor 1 window</th><td>mean {{printf "%.2f" .Mean}} ± {{printf "%.2f" .StdDev}}, range {{printf "%.2f" .Min}}..{{printf "%.2f" .Max}} ({{.Count}} samples)</td></tr>
<tr><th>Settled</th><td class="{{if $.Settled}}ok{{else}}unknown{{end}}">{{if $.Settled}}yes{{else}}no{{end}}</td></tr>{{end}}
</table>

<p><img src="/plot.png" alt="history plot" id="plot"></p>

<h2>Control</h2>
<form id="setpoint-form">
<label>Set-point <input name="value" type="number" step="0.1" min="-20" max="60" required></label>
<button type="submit">Set</button>
</form>
<p>
<button data-output="true">Output on</button>
<button data-output="false">Output off</button>
</p>
<form id="logging-form">
<label>Log prefix <input name="prefix" type="text" value="{{.Logging.Prefix}}"></label>
<button type="submit" name="enabled" value="true">Start new log</button>
<button type="submit" name="enabled" value="false">Stop logging</button>
</form>
<p id="result"></p>

<h2>Device</h2>
<table>
<tr><th>Ready</th><td class="{{if .Ready}}ok{{else}}bad{{end}}">{{if .Ready}}yes{{else}}no{{end}}</td></tr>
<tr><th>Poll loop</th><td class="{{if .Health.PollRunning}}ok{{else}}bad{{end}}">{{if .Health.PollRunning}}running{{else}}stopped{{end}}</td></tr>
<tr><th>Dispatch loop</th><td class="{{if .Health.DispatchRunning}}ok{{else}}bad{{end}}">{{if .Health.DispatchRunning}}running{{else}}stopped{{end}}</td></tr>
<tr><th>Samples</th><td>{{.Health.Samples}}</td></tr>
<tr><th>Poll errors</th><td>{{.Health.PollErrors}}</td></tr>
<tr><th>Commands applied</th><td>{{.Health.CommandsApplied}}</td></tr>
<tr><th>Command errors</th><td>{{.Health.CommandErrors}}</td></tr>
<tr><th>Queued</th><td>{{.Health.QueueDepth}}</td></tr>
{{if .Health.LastError}}<tr><th>Last error</th><td class="bad">{{.Health.LastError}}</td></tr>{{end}}
</table>

<h2>Logging</h2>
<table>
<tr><th>Data log</th><td class="{{if .Logging.Enabled}}ok{{else}}unknown{{end}}">{{if .Logging.Enabled}}on{{else}}off{{end}}</td></tr>
{{if .Logging.Path}}<tr><th>File</th><td>{{.Logging.Path}}</td></tr>
<tr><th>Lines</th><td>{{.Logging.Lines}}</td></tr>{{end}}
</table>

<h2>Interlock</h2>
<table>
<tr><th>State</th><td>{{interlock .Interlock}}</td></tr>
{{if .Interlock.Enabled}}<tr><th>Opened</th><td>{{.Interlock.Counts.Opened}}</td></tr>
<tr><th>Closed</th><td>{{.Interlock.Counts.Closed}}</td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}ok{{else}}bad{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
{{if .Config.Broker}}<tr><th>Samples sent</th><td>{{.MQTT.Sent}}</td></tr>
<tr><th>Samples skipped</th><td>{{.MQTT.QueueDropped}}</td></tr>
<tr><th>Awaiting broker</th><td>{{.MQTT.Buffered}}</td></tr>
<tr><th>Dropped offline</th><td class="{{if .MQTT.Dropped}}bad{{end}}">{{.MQTT.Dropped}}</td></tr>{{end}}
<tr><th>Live viewers</th><td>{{.Stream.Clients}}</td></tr>
<tr><th>Live frames dropped</th><td>{{.Stream.Dropped}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Device</th><td>{{.Config.Device}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Dispatch</th><td>{{.Config.DispatchMs}}ms</td></tr>
<tr><th>History</th><td>{{.Config.HistorySize}} samples</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/history.json">history</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var result = document.getElementById("result");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }
  function set(id, text) {
    var el = document.getElementById(id);
    if (el) { el.textContent = text; }
  }
  function post(path, body) {
    fetch(path, { method: "POST", headers: { "Content-Type": "application/json" }, body: JSON.stringify(body) })
      .then(function(r) { return r.json(); })
      .then(function(j) { result.textContent = j.error ? "error: " + j.error : JSON.stringify(j); })
      .catch(function(e) { result.textContent = "error: " + e; });
  }

  document.getElementById("setpoint-form").addEventListener("submit", function(e) {
    e.preventDefault();
    post("/api/setpoint", { value: parseFloat(e.target.value.value) });
  });
  document.querySelectorAll("button[data-output]").forEach(function(b) {
    b.addEventListener("click", function() { post("/api/output", { enabled: b.dataset.output === "true" }); });
  });
  document.getElementById("logging-form").addEventListener("submit", function(e) {
    e.preventDefault();
    post("/api/logging", { enabled: e.submitter.value === "true", prefix: e.target.prefix.value });
  });

  var scheme = location.protocol === "https:" ? "wss://" : "ws://";
  var ws = new WebSocket(scheme + location.host + "/ws");
  ws.onopen = function() { setDot("ok", "live"); };
  ws.onclose = function() { setDot("err", "offline"); };
  ws.onerror = function() { setDot("err", "error"); };
  ws.onmessage = function(m) {
    try {
      var s = JSON.parse(m.data);
      set("sp", s.sp.toFixed(2) + " °C");
      set("t1", s.t1.toFixed(2) + " °C");
      set("t2", s.t2.toFixed(2) + " °C");
      set("out", s.out.toFixed(1) + " %");
      set("at", new Date(s.t * 1000).toISOString());
    } catch (e) {}
  };

  setInterval(function() {
    document.getElementById("plot").src = "/plot.png?t=" + Date.now();
  }, 5000);
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime(), Ready() and Settled() methods but the template
	// reads fields.
	data := struct {
		status.Snapshot
		Uptime  time.Duration
		Ready   bool
		Settled bool
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Ready:    snap.Ready(),
		Settled:  snap.Settled(),
	}
	return indexTmpl.Execute(w, data)
}
