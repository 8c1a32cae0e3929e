package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/parking-barrier/internal/status"
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
	"orUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"positionClass": func(s string) string {
		switch s {
		case "OPEN":
			return "open"
		case "CLOSED":
			return "closed"
		}
		return "unknown"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Parking Barrier</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.open { color: green; font-weight: bold; }
.closed { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.message { padding: 6px 8px; background: #eef; }
.controls button { font-family: monospace; font-size: 1.1em; padding: 6px 18px; margin-right: 8px; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Parking Barrier<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>
{{if .Message}}<p class="message" id="message">{{.Message}}</p>{{end}}

<h2>Barrier</h2>
<table>
<tr><th>Position</th><td id="barrier" class="{{positionClass (printf "%s" .Barrier.Position)}}">{{orUnknown (printf "%s" .Barrier.Position)}}</td></tr>
<tr><th>Pending</th><td id="pending">{{orUnknown (printf "%s" .Barrier.Pending)}}</td></tr>
<tr><th>Vehicles</th><td id="vehicle-count">{{.Barrier.Count}}</td></tr>
{{if .Barrier.SequenceID}}<tr><th>Sequence</th><td>{{.Barrier.SequenceID}}</td></tr>{{end}}
{{if .Barrier.LastFault}}<tr><th>Last fault</th><td class="disconnected">{{.Barrier.LastFault.Command}}: {{.Barrier.LastFault.Message}} ({{.Barrier.LastFault.Time.UTC.Format "2006-01-02T15:04:05Z"}})</td></tr>{{end}}
</table>

<form class="controls" method="post" action="/control">
<button type="submit" name="open" value="1">Open</button>
<button type="submit" name="close" value="1">Close</button>
</form>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Entries</th><td>{{.Barrier.Counts.Entries}}</td></tr>
<tr><th>Exits</th><td>{{.Barrier.Counts.Exits}}</td></tr>
<tr><th>Entry timeouts</th><td>{{.Barrier.Counts.EntryTimeouts}}</td></tr>
<tr><th>Exit timeouts</th><td>{{.Barrier.Counts.ExitTimeouts}}</td></tr>
<tr><th>Manual opens</th><td>{{.Barrier.Counts.ManualOpens}}</td></tr>
<tr><th>Manual closes</th><td>{{.Barrier.Counts.ManualCloses}}</td></tr>
<tr><th>Auto closes</th><td>{{.Barrier.Counts.AutoCloses}}</td></tr>
<tr><th>Faults</th><td>{{.Barrier.Counts.Faults}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Threshold</th><td>{{.Config.ThresholdCm}}cm</td></tr>
<tr><th>Debounce</th><td>{{.Config.Quorum}} of {{.Config.Samples}}, {{.Config.SampleDelayMs}}ms apart</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Pending timeout</th><td>{{.Config.PendingTimeoutMs}}ms</td></tr>
<tr><th>Manual auto-close</th><td>{{.Config.ManualCloseMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var barrierEl = document.getElementById("barrier");
  var pendingEl = document.getElementById("pending");
  var countEl = document.getElementById("vehicle-count");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");
    ws.onopen = function() { setDot("ok", "live"); };
    ws.onclose = function() {
      setDot("err", "offline");
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(ev) {
      try {
        var msg = JSON.parse(ev.data);
        if (msg.status) {
          barrierEl.textContent = msg.status.barrier;
          barrierEl.className = msg.status.barrier === "OPEN" ? "open" : msg.status.barrier === "CLOSED" ? "closed" : "unknown";
          pendingEl.textContent = msg.status.pending;
          countEl.textContent = msg.status.vehicle_count;
        }
      } catch (e) {}
    };
  }
  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, message string) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime  time.Duration
		Message string
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Message:  message,
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("web: render: %v", err)
	}
}
