package server

import (
	"html/template"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	"github.com/theirongolddev/redline/internal/gauge"
	"github.com/theirongolddev/redline/internal/output"
)

var pageFuncs = template.FuncMap{
	"count": func(n *int) string {
		if n == nil {
			return gauge.Placeholder
		}
		return humanize.Comma(int64(*n))
	},
	"fill": func(g output.GaugeStatus) int {
		if g.Count == nil || g.Max <= 0 {
			return 0
		}
		return int(gauge.Thresholds{Max: g.Max, Redline: g.Redline}.FillFraction(*g.Count) * 100)
	},
	"ago": func(t *time.Time) string {
		if t == nil {
			return gauge.Placeholder
		}
		return humanize.Time(*t)
	},
}

// Index renders the status page. The page script re-renders on each
// websocket message.
func (s *Server) Index(c *gin.Context) {
	c.HTML(http.StatusOK, "index", s.status())
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>redline</title>
<style>
  :root { --bg:#1e1e2e; --surface:#313244; --text:#cdd6f4; --dim:#6c7086;
          --ok:#a6e3a1; --warn:#f9e2af; --crit:#f38ba8; --accent:#89b4fa; }
  body { font-family: ui-monospace, monospace; background: var(--bg); color: var(--text); margin: 24px; }
  header { display: flex; gap: 16px; align-items: baseline; }
  header .driver { margin-left: auto; color: var(--dim); }
  .gauges { display: grid; grid-template-columns: repeat(auto-fill, minmax(220px, 1fr)); gap: 12px; margin: 16px 0; }
  .gauge { background: var(--surface); padding: 12px; border-radius: 6px; }
  .gauge.total { grid-column: 1 / -1; }
  .bar { background: var(--bg); height: 10px; border-radius: 3px; overflow: hidden; }
  .bar span { display: block; height: 100%; background: var(--ok); }
  .normal .bar span { background: var(--ok); }
  .warning .bar span { background: var(--warn); }
  .critical .bar span { background: var(--crit); }
  .value { float: right; font-weight: bold; }
  .caption, footer { color: var(--dim); }
  .check { color: var(--crit); }
  a { color: var(--accent); }
  button { background: var(--surface); color: var(--text); border: 1px solid var(--dim); padding: 4px 10px; cursor: pointer; }
</style>
</head>
<body>
<header>
  <strong>REDLINE</strong>
  <span id="mode">{{.Mode}}</span>
  <span class="driver">driver: <span id="driver">{{.Driver}}</span></span>
</header>
<div class="gauges" id="gauges">
{{range .Channels}}
  <div class="gauge {{.Zone}}" data-key="{{.Key}}">
    <span class="label">{{if .Link}}<a href="{{.Link}}" target="_blank" rel="noopener">{{.Label}}</a>{{else}}{{.Label}}{{end}}</span>
    <span class="value">{{count .Count}}/{{.Max}}</span>
    <div class="bar"><span style="width: {{fill .}}%"></span></div>
    <div class="caption">{{.Caption}}</div>
  </div>
{{end}}
  <div class="gauge total {{.Total.Zone}}" data-key="total">
    <span class="label">{{.Total.Label}}</span>
    <span class="value">{{count .Total.Count}}/{{.Total.Max}}</span>
    <div class="bar"><span style="width: {{fill .Total}}%"></span></div>
    <div class="caption">{{.Total.Caption}}</div>
  </div>
</div>
<p id="check" class="check">{{if .Check}}CHECK {{.Error}}{{end}}</p>
<footer>
  Updated <span id="updated">{{ago .UpdatedAt}}</span> ·
  Baseline <span id="baseline">{{ago .BaselineAt}}</span> ·
  <span id="auto">{{.AutoLabel}}</span>
</footer>
<p>
  <button onclick="post('/api/refresh')">Refresh</button>
  <button onclick="post('/api/baseline')">Set baseline</button>
  <button onclick="toggleAuto()">Toggle auto</button>
</p>
<script>
let state = null;
function post(path, body) {
  return fetch(path, {method: 'POST', headers: {'Content-Type': 'application/json'}, body: JSON.stringify(body || {})})
    .then(r => r.json()).then(s => { if (s.state) render(s); else alert(s.error + (s.hint ? '\n' + s.hint : '')); });
}
function toggleAuto() { post('/api/auto', {enabled: !(state && state.auto)}); }
function render(s) {
  state = s;
  document.getElementById('mode').textContent = s.mode;
  document.getElementById('driver').textContent = s.driver;
  document.getElementById('auto').textContent = s.auto_label;
  document.getElementById('check').textContent = s.check ? 'CHECK ' + (s.error || '') : '';
  document.getElementById('updated').textContent = s.updated_at ? new Date(s.updated_at).toLocaleTimeString() : '—';
  document.getElementById('baseline').textContent = s.baseline_at ? new Date(s.baseline_at).toLocaleString() : '—';
  for (const g of s.channels.concat([s.total])) {
    const el = document.querySelector('[data-key="' + g.key + '"]');
    if (!el) continue;
    el.className = 'gauge' + (g.key === 'total' ? ' total ' : ' ') + (g.zone || '');
    el.querySelector('.value').textContent = (g.count === null ? '—' : g.count) + '/' + g.max;
    el.querySelector('.bar span').style.width = (g.count === null ? 0 : Math.min(100, 100 * g.count / g.max)) + '%';
    el.querySelector('.caption').textContent = g.caption;
  }
}
(function connect() {
  const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
  ws.onmessage = e => render(JSON.parse(e.data));
  ws.onclose = () => setTimeout(connect, 3000);
})();
</script>
</body>
</html>
`
