package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/am2120-sensor/internal/status"
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
	"fixed1": func(v float64) string {
		return fmt.Sprintf("%.1f", v)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>AM2120 Sensor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ok { color: green; font-weight: bold; }
.bad { color: red; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>AM2120 Sensor</h1>

<h2>Reading</h2>
<table>
{{with .LastReading}}<tr><th>Humidity</th><td id="humidity">{{fixed1 .Reading.HumidityPercent}} %RH</td></tr>
<tr><th>Temperature</th><td id="temperature">{{fixed1 .Reading.TemperatureCelsius}} &deg;C</td></tr>
<tr><th>Checksum</th><td class="{{if .Reading.ChecksumValid}}ok{{else}}bad{{end}}">{{if .Reading.ChecksumValid}}valid{{else}}mismatch{{end}}</td></tr>
<tr><th>Taken</th><td>{{.Timestamp.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
{{else}}<tr><th>Humidity</th><td class="unknown">no reading yet</td></tr>
{{end}}<tr><th>Last attempt</th><td id="last-outcome" class="{{if eq .LastOutcome "OK"}}ok{{else if eq .LastOutcome "NONE"}}unknown{{else}}bad{{end}}">{{.LastOutcome}}</td></tr>
<tr><th>Consecutive failures</th><td>{{.ConsecutiveFailures}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Read Counts</h2>
<table>
<tr><th>OK</th><td>{{.Counts.OK}}</td></tr>
<tr><th>Checksum mismatch</th><td>{{.Counts.ChecksumMismatch}}</td></tr>
<tr><th>Ack timeout</th><td>{{.Counts.AckTimeout}}</td></tr>
<tr><th>Bit timeout</th><td>{{.Counts.BitTimeout}}</td></tr>
<tr><th>Line fault</th><td>{{.Counts.LineFault}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Line</th><td>{{.Config.Backend}} {{.Config.Chip}} {{.Config.Pin}}</td></tr>
<tr><th>Units</th><td>{{.Config.Units}}</td></tr>
<tr><th>Interval</th><td>{{.Config.IntervalMs}}ms</td></tr>
<tr><th>Max polls</th><td>{{.Config.MaxPolls}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Template needs plain fields for values that are methods on Snapshot.
	lastOutcome := "NONE"
	if snap.Last != nil {
		lastOutcome = string(snap.Last.Outcome)
	}
	data := struct {
		status.Snapshot
		Uptime      time.Duration
		LastOutcome string
	}{
		Snapshot:    snap,
		Uptime:      snap.Uptime(),
		LastOutcome: lastOutcome,
	}
	indexTmpl.Execute(w, data)
}
