package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/meter-sensor/internal/logic"
	"github.com/sweeney/meter-sensor/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		switch {
		case days > 0:
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		case h > 0:
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		case m > 0:
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"kwh": func(v float64) string {
		return fmt.Sprintf("%.3f", v)
	},
	"since": func(t, now time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return now.Sub(t).Truncate(time.Second).String() + " ago"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Meter Sensor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ok { color: green; font-weight: bold; }
.warn { color: orange; }
.bad { color: red; }
</style>
</head>
<body>
<h1>Meter Sensor</h1>

<h2>Meter</h2>
<table>
<tr><th>State</th><td class="{{if .Watching}}ok{{else}}warn{{end}}">{{.Sensor.State}}</td></tr>
<tr><th>Flashes</th><td id="count">{{.Sensor.Counter.Count}}</td></tr>
<tr><th>Rate</th><td id="rate">{{if .Sensor.Counter.RateValid}}{{.Sensor.Counter.Rate}}/h{{else}}pending{{end}}</td></tr>
<tr><th>Energy</th><td id="kwh">{{kwh .TotalKWh}} kWh</td></tr>
<tr><th>Power</th><td id="kw">{{kwh .KW}} kW</td></tr>
<tr><th>Last flash</th><td id="last">{{since .Sensor.Counter.LastEdge .Now}}</td></tr>
<tr><th>Rejected edges</th><td>{{.Sensor.Counter.Rejected}}</td></tr>
</table>

<h2>Advertising</h2>
<table>
<tr><th>On air</th><td class="{{if .Sensor.Advertised}}ok{{else}}warn{{end}}">{{if .Sensor.Advertised}}yes{{else}}no{{end}}</td></tr>
<tr><th>Payload</th><td id="payload">{{.Sensor.Payload}}</td></tr>
<tr><th>Battery</th><td>{{.Sensor.Battery}}%{{if .Sensor.BatteryErrors}} <span class="warn">({{.Sensor.BatteryErrors}} read errors)</span>{{end}}</td></tr>
<tr><th>Manufacturer</th><td>{{printf "0x%04X" .Config.ManufacturerID}}</td></tr>
<tr><th>Interval</th><td>{{.Config.AdvertIntervalMs}}ms</td></tr>
{{if .Sensor.AdvertErrors}}<tr><th>Errors</th><td class="bad">{{.Sensor.AdvertErrors}}</td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}ok{{else}}bad{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}{{if .MQTTBuffered}} ({{.MQTTBuffered}} buffered){{end}}{{if .MQTTDropped}} ({{.MQTTDropped}} dropped){{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}} {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Boot ID</th><td>{{.BootID}}</td></tr>
<tr><th>Pins</th><td>sense {{.Config.PinSense}}, ground {{.Config.PinGround}}, led {{.Config.PinIndicator}} on {{.Config.Chip}}</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>Impulses/kWh</th><td>{{.Config.ImpPerKWh}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/payload">payload</a></p>
<script>
(function() {
  function refresh() {
    fetch("/index.json").then(function(r) { return r.json(); }).then(function(j) {
      var m = j.status.meter;
      document.getElementById("count").textContent = m.count;
      document.getElementById("rate").textContent = m.rate_valid ? m.rate + "/h" : "pending";
      document.getElementById("kwh").textContent = m.total_kwh.toFixed(3) + " kWh";
      document.getElementById("kw").textContent = m.kw.toFixed(3) + " kW";
      document.getElementById("payload").textContent = j.status.advert.payload;
    }).catch(function() {});
  }
  setInterval(refresh, 5000);
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// The template needs plain fields for derived values.
	total, kw := logic.Energy(snap.Sensor.Counter.Count, snap.Sensor.Counter.Rate, snap.Config.ImpPerKWh)
	data := struct {
		status.Snapshot
		Uptime   time.Duration
		Watching bool
		TotalKWh float64
		KW       float64
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Watching: snap.Watching(),
		TotalKWh: total,
		KW:       kw,
	}
	indexTmpl.Execute(w, data)
}
