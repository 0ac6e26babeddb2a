package httpapi

import (
	"bytes"
	"html/template"
	"net/http"
	"time"

	"github.com/yuin/goldmark"
)

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Webstash Outbox</title>
  <style>
    :root {
      --ink: #102223;
      --paper: #f8f4ea;
      --card: #fffdf9;
      --line: #d7cbb3;
      --accent: #1f9d88;
      --muted: #6f7d7d;
    }
    * { box-sizing: border-box; }
    body {
      margin: 0;
      font-family: "Space Grotesk", "Avenir Next", "Segoe UI", sans-serif;
      color: var(--ink);
      background: linear-gradient(140deg, #fff9ef 0%, #f1f8f7 45%, #fffdf9 100%);
      min-height: 100vh;
      padding: 20px;
    }
    .shell { max-width: 960px; margin: 0 auto; display: grid; gap: 14px; }
    .bar {
      background: var(--card);
      border: 1px solid var(--line);
      border-radius: 18px;
      padding: 16px;
    }
    h1 { margin: 0; font-size: 1.5rem; }
    .sub { margin-top: 6px; color: var(--muted); font-size: 0.9rem; }
    table { width: 100%; border-collapse: collapse; }
    th, td { text-align: left; padding: 8px 10px; border-bottom: 1px solid var(--line); vertical-align: top; }
    th { color: var(--muted); font-size: 0.8rem; text-transform: uppercase; letter-spacing: 0.05em; }
    a { color: var(--accent); word-break: break-all; }
    .summary { font-size: 0.9rem; color: var(--ink); }
    .empty { color: var(--muted); padding: 18px; text-align: center; }
  </style>
  <script>
    const proto = location.protocol === "https:" ? "wss" : "ws";
    const sock = new WebSocket(proto + "://" + location.host + "/v1/refresh/ws");
    sock.onmessage = () => location.reload();
  </script>
</head>
<body>
  <div class="shell">
    <div class="bar">
      <h1>Webstash Outbox</h1>
      <div class="sub">{{len .Intents}} pending · gateway {{if .GatewayConfigured}}configured{{else}}not configured{{end}} · {{if .Draining}}draining{{else}}idle{{end}}</div>
    </div>
    <div class="bar">
      {{if .Intents}}
      <table>
        <tr><th>#</th><th>Title</th><th>URL</th><th>Summary</th><th>Queued</th></tr>
        {{range $i, $it := .Intents}}
        <tr>
          <td>{{$i}}</td>
          <td>{{$it.Title}}</td>
          <td><a href="{{$it.URL}}">{{$it.URL}}</a></td>
          <td class="summary">{{$it.SummaryHTML}}</td>
          <td>{{$it.QueuedAt}}</td>
        </tr>
        {{end}}
      </table>
      {{else}}
      <div class="empty">Nothing pending. Saved pages land here until they drain to the remote store.</div>
      {{end}}
    </div>
  </div>
</body>
</html>
`))

type dashboardRow struct {
	Title       string
	URL         string
	SummaryHTML template.HTML
	QueuedAt    string
}

type dashboardData struct {
	Intents           []dashboardRow
	GatewayConfigured bool
	Draining          bool
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, correlationID string) {
	intents, err := s.svc.Pending()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "failed to read outbox", correlationID)
		return
	}
	st := s.status.Status()

	data := dashboardData{
		GatewayConfigured: st.GatewayConfigured,
		Draining:          st.Draining,
	}
	for _, intent := range intents {
		data.Intents = append(data.Intents, dashboardRow{
			Title:       intent.Title,
			URL:         intent.URL,
			SummaryHTML: renderSummary(intent.Summary),
			QueuedAt:    time.UnixMilli(intent.EnqueuedAt).UTC().Format(time.RFC3339),
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := dashboardTmpl.Execute(w, data); err != nil {
		// Too late for an error envelope; the template already wrote.
		return
	}
}

// renderSummary converts the extractor's markdown summary to HTML.
// goldmark escapes raw HTML by default, so extractor output cannot
// inject markup into the page.
func renderSummary(summary string) template.HTML {
	if summary == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(summary), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(summary))
	}
	return template.HTML(buf.String())
}
