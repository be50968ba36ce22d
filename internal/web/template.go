package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/intercom-listener/internal/status"
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
	"stamp": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Intercom Listener</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.pending { color: orange; font-weight: bold; }
.idle { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Intercom Listener</h1>

<h2>Channels</h2>
<table>
<tr><th>Channel</th><th>State</th><th>Last accepted</th></tr>
{{range .Channels}}<tr><td>{{.Channel}}</td><td class="{{if .Pending}}pending{{else}}idle{{end}}">{{if .Pending}}pending{{else}}idle{{end}}</td><td>{{stamp .LastAccepted}}</td></tr>
{{end}}</table>

<h2>Device</h2>
<table>
<tr><th>Power</th><td>{{orUnknown (printf "%s" .Power)}}</td></tr>
<tr><th>Wake cause</th><td>{{orUnknown (printf "%s" .Wake.Cause)}}{{if .Wake.Channel}} ({{.Wake.Channel}}){{end}}</td></tr>
<tr><th>Inactivity timer</th><td>{{orUnknown .Timer}}</td></tr>
<tr><th>Indicator</th><td>{{.Code}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>{{.Config.Transport}}</th><td class="{{if eq (printf "%s" .Connectivity) "CONNECTED"}}connected{{else}}disconnected{{end}}">{{orUnknown (printf "%s" .Connectivity)}}</td></tr>
<tr><th>Endpoint</th><td>{{.Config.Endpoint}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
{{range $ch, $n := .Counts.Accepted}}<tr><th>Accepted {{$ch}}</th><td>{{$n}}</td></tr>
{{end}}<tr><th>Sent</th><td>{{.Counts.Sent}}</td></tr>
<tr><th>Failed</th><td>{{.Counts.Failed}}</td></tr>
<tr><th>Skipped</th><td>{{.Counts.Skipped}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Detection cooldown</th><td>{{.Config.CooldownDetectionMs}}ms</td></tr>
<tr><th>Notification cooldown</th><td>{{.Config.CooldownNotificationMs}}ms</td></tr>
<tr><th>Inactivity</th><td>{{.Config.FullIntervalS}}s (short {{.Config.ShortIntervalS}}s)</td></tr>
<tr><th>Heartbeat</th><td>{{.Config.HeartbeatS}}s</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
