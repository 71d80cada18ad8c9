package web

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sweeney/tempo-deck/internal/render"
	"github.com/sweeney/tempo-deck/internal/status"
	"github.com/sweeney/tempo-deck/internal/tempo"
)

type pageData struct {
	status.Snapshot
	Uptime time.Duration
	Stats  []statRow
}

type statRow struct {
	Key  string
	Used string
	Left string
}

func newTemplate() *template.Template {
	return template.Must(template.New("index").Funcs(template.FuncMap{
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
		"ago": func(then, now time.Time) string {
			if then.IsZero() {
				return "never"
			}
			return humanize.RelTime(then, now, "ago", "from now")
		},
		"swatch": func(c tempo.Color) template.CSS {
			return template.CSS(render.Background(c).Hex())
		},
		"lower": strings.ToLower,
	}).Parse(indexHTML))
}

var indexTmpl = newTemplate()

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Tempo Deck</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.swatch { display: inline-block; width: 10px; height: 10px; margin-right: 6px; vertical-align: middle; }
.connected, .ok { color: green; }
.disconnected, .failed { color: red; }
</style>
</head>
<body>
<h1>Tempo Deck</h1>

<h2>Days</h2>
<table>
<tr><th>Yesterday</th><td id="yesterday" class="{{lower (printf "%s" .Tempo.Yesterday)}}"><span class="swatch" style="background: {{swatch .Tempo.Yesterday}}"></span>{{.Tempo.Yesterday}}</td></tr>
<tr><th>Today</th><td id="today" class="{{lower (printf "%s" .Tempo.Today)}}"><span class="swatch" style="background: {{swatch .Tempo.Today}}"></span>{{.Tempo.Today}}</td></tr>
<tr><th>Tomorrow</th><td id="tomorrow" class="{{lower (printf "%s" .Tempo.Tomorrow)}}"><span class="swatch" style="background: {{swatch .Tempo.Tomorrow}}"></span>{{.Tempo.Tomorrow}}</td></tr>
<tr><th>Fetched</th><td>{{ago .Tempo.FetchedAt .Now}}</td></tr>
{{if .Tempo.LastError}}<tr><th>Upstream error</th><td class="failed">{{.Tempo.LastError}}</td></tr>{{end}}
</table>

<h2>Season</h2>
<table>
<tr><th>Colour</th><td>Used / Left</td></tr>
{{range .Stats}}<tr><th>{{.Key}}</th><td>{{.Used}} / {{.Left}}</td></tr>
{{end}}</table>

<h2>Refresh</h2>
<table>
<tr><th>Last</th><td>{{ago .LastRefresh.At .Now}}{{if .LastRefresh.Trigger}} ({{.LastRefresh.Trigger}}){{end}}</td></tr>
{{if not .LastRefresh.At.IsZero}}<tr><th>Outcome</th><td class="{{if .LastRefresh.OK}}ok{{else}}failed{{end}}">{{if .LastRefresh.OK}}ok{{else}}{{.LastRefresh.Error}}{{end}}</td></tr>{{end}}
<tr><th>Count</th><td>{{.Refreshes}}</td></tr>
</table>

<h2>Surfaces</h2>
<table>
{{range .Surfaces}}<tr><th>{{.ID}}</th><td>{{.Kind}} ({{.Lang}})</td></tr>
{{else}}<tr><td>none registered</td></tr>
{{end}}</table>

<h2>System</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Helper</th><td>{{.Config.HelperURL}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Render</th><td>{{.Config.RenderMs}}ms</td></tr>
<tr><th>Min refresh</th><td>{{.Config.MinRefreshMs}}ms</td></tr>
<tr><th>Button</th><td>{{if eq .Config.ButtonPin 0}}disabled{{else}}GPIO{{.Config.ButtonPin}}{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/metrics">metrics</a></p>
</body>
</html>
`

func statRows(stats tempo.Stats) []statRow {
	count := func(n *int) string {
		if n == nil {
			return "?"
		}
		return humanize.Comma(int64(*n))
	}
	rows := make([]statRow, 0, len(tempo.StatKeys))
	for _, k := range tempo.StatKeys {
		dc := stats[k]
		rows = append(rows, statRow{Key: string(k), Used: count(dc.Used), Left: count(dc.Left)})
	}
	return rows
}

func renderHTML(w io.Writer, snap status.Snapshot) {
	indexTmpl.Execute(w, pageData{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Stats:    statRows(snap.Tempo.Stats),
	})
}
