package api

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/Roelanb/churnboard/internal/actions"
	"github.com/Roelanb/churnboard/internal/render"
)

// Version is shown in the page footer; set at build time.
var Version = "dev"

const datastarSrc = "https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0/bundles/datastar.js"

var buttonLabels = map[string]string{
	"explore":   "Explore",
	"export":    "Export CSV",
	"search":    "Search",
	"sentiment": "Analyze Sentiment",
	"predict":   "Predict Churn",
	"nlq":       "Run Query",
	"retention": "Generate Strategy",
	"insights":  "Get Insights",
	"topic":     "Analyze Topics",
	"ranking":   "Show Rankings",
	"metrics":   "Load Metrics",
	"alerts":    "Check Alerts",
	"health":    "Check",
	"stats":     "Refresh",
}

// buttonHTML renders the trigger for a, either ready or disabled while loading.
func buttonHTML(a *actions.Action, loading bool) template.HTML {
	if loading {
		return template.HTML(fmt.Sprintf(`<button id="%s" class="loading" disabled>Loading...</button>`, a.Button()))
	}
	label, ok := buttonLabels[a.Name]
	if !ok {
		label = a.Title
	}
	return template.HTML(fmt.Sprintf(`<button id="%s" data-on:click="@post('/actions/%s')">%s</button>`,
		a.Button(), a.Name, template.HTMLEscapeString(label)))
}

var pageTpl = template.Must(template.New("page").Funcs(template.FuncMap{
	"button": func(name string) template.HTML {
		a, ok := actions.Lookup(name)
		if !ok {
			return ""
		}
		return buttonHTML(a, false)
	},
	"badge": func(id string, b render.Badge) template.HTML { return render.BadgeHTML(id, b) },
}).Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Churnboard</title>
<script type="module" src="{{.DatastarSrc}}"></script>
<style>
body { font-family: system-ui, -apple-system, Segoe UI, Roboto, Ubuntu, Cantarell, Noto Sans, Arial, sans-serif; margin: 0; background: #0b0f14; color: #e6edf3; }
header, footer { padding: 12px 16px; background: #111827; border-bottom: 1px solid #1f2937; }
footer { border-top: 1px solid #1f2937; border-bottom: none; color: #9ca3af; }
.container { padding: 16px; max-width: 1200px; margin: 0 auto; }
h1, h2, h3 { margin: 0 0 12px 0; }
.card { background: #111827; border: 1px solid #1f2937; border-radius: 8px; padding: 12px; margin-bottom: 16px; }
table { width: 100%; border-collapse: collapse; font-size: 14px; }
th, td { border-bottom: 1px solid #1f2937; padding: 8px; text-align: left; vertical-align: top; }
th { color: #9ca3af; font-weight: 600; }
pre { background: #0b1220; border: 1px solid #1f2937; border-radius: 6px; padding: 8px; overflow-x: auto; white-space: pre-wrap; }
input[type="text"], input[type="number"], textarea, select { width: 100%; background: #0b1220; border: 1px solid #1f2937; color: #e6edf3; border-radius: 6px; padding: 8px; box-sizing: border-box; margin-bottom: 8px; }
button { background: #2563eb; color: white; border: 0; padding: 8px 12px; border-radius: 6px; cursor: pointer; }
button:disabled, button.loading { background: #374151; cursor: progress; }
.grid { display: grid; grid-template-columns: 1fr; gap: 16px; }
@media (min-width: 900px) { .grid.two { grid-template-columns: 1fr 1fr; } .grid.three { grid-template-columns: 1fr 1fr 1fr; } }
.badge { display: inline-block; padding: 2px 8px; border-radius: 999px; font-size: 12px; }
.badge.success { background: #065f46; color: #d1fae5; }
.badge.danger { background: #7f1d1d; color: #fee2e2; }
.stat-value { font-size: 28px; font-weight: 700; }
.stat-label { color: #9ca3af; }
.message { padding: 8px 12px; border-radius: 6px; margin: 8px 0; }
.success-message { background: #065f46; }
.error-message { background: #7f1d1d; }
.info-message { background: #1e3a8a; }
.no-data, .table-info { color: #9ca3af; }
</style>
</head>
<body>
<header>
  <div class="container">
    <h1 style="display:inline-block;margin-right:16px;">Churnboard</h1>
    {{badge "health" .Health}} {{button "health"}}
    <div id="health-messages"></div>
  </div>
</header>
<main class="container">
  <div class="grid three">
    <div class="card"><div class="stat-label">Customers</div><span id="customer-count" class="stat-value">{{.Customers}}</span></div>
    <div class="card"><div class="stat-label">Interactions</div><span id="interaction-count" class="stat-value">{{.Interactions}}</span></div>
    <div class="card"><div class="stat-label">Churn rate</div><span id="churn-rate" class="stat-value">{{.ChurnRate}}</span></div>
  </div>
  <div id="stats-messages"></div>
  <p>{{button "stats"}}</p>

  <div class="card">
    <h2>Customer explorer</h2>
    <div class="grid three">
      <select data-bind:filter-gender><option value="">Any gender</option><option>Male</option><option>Female</option></select>
      <select data-bind:filter-contract><option value="">Any contract</option><option>Month-to-month</option><option>One year</option><option>Two year</option></select>
      <select data-bind:filter-churn><option value="">Any churn</option><option>Yes</option><option>No</option></select>
    </div>
    <input type="number" placeholder="Limit" data-bind:explore-limit>
    {{button "explore"}} {{button "export"}}
    <div id="explore-result-messages"></div>
    <div id="explore-result" class="result"></div>
  </div>

  <div class="grid two">
    <div class="card">
      <h2>Similar interactions</h2>
      <input type="text" placeholder="Describe the issue" data-bind:search-query>
      <input type="number" value="5" data-bind:search-limit>
      {{button "search"}}
      <div id="vector-results-messages"></div>
      <div id="vector-results" class="result"></div>
    </div>
    <div class="card">
      <h2>Sentiment</h2>
      <textarea rows="4" placeholder="Text to analyze" data-bind:sentiment-text></textarea>
      {{button "sentiment"}}
      <div id="sentiment-result-messages"></div>
      <div id="sentiment-result" class="result"></div>
    </div>
  </div>

  <div class="card">
    <h2>Churn prediction</h2>
    <div class="grid three">
      <input type="number" placeholder="Tenure (months)" data-bind:f-tenure>
      <input type="number" step="0.01" placeholder="Monthly charges" data-bind:f-monthly>
      <select data-bind:f-contract><option>Month-to-month</option><option>One year</option><option>Two year</option></select>
      <select data-bind:f-internet><option>DSL</option><option>Fiber optic</option><option>No</option></select>
      <select data-bind:f-payment><option>Electronic check</option><option>Mailed check</option><option>Bank transfer (automatic)</option><option>Credit card (automatic)</option></select>
      <select data-bind:f-paperless><option value="true">Paperless billing</option><option value="false">Paper billing</option></select>
    </div>
    {{button "predict"}}
    <div id="churn-result-messages"></div>
    <div id="churn-result" class="result"></div>
  </div>

  <div class="card">
    <h2>Natural language query</h2>
    <input type="text" placeholder="e.g. customers with fiber optic who churned" data-bind:nlq>
    {{button "nlq"}}
    <div id="sql-result-messages"></div>
    <div id="sql-result" class="result"></div>
    <div id="table-result-messages"></div>
    <div id="table-result" class="result"></div>
  </div>

  <div class="grid two">
    <div class="card">
      <h2>Retention strategy</h2>
      <input type="text" placeholder="Customer ID" data-bind:retention-customer-id>
      <input type="number" step="0.01" placeholder="Churn risk" data-bind:retention-churn-risk>
      {{button "retention"}}
      <div id="retention-result-messages"></div>
      <div id="retention-result" class="result"></div>
    </div>
    <div class="card">
      <h2>Customer insights</h2>
      <input type="text" placeholder="Customer ID" data-bind:insights-customer-id>
      {{button "insights"}}
      <div id="insights-result-messages"></div>
      <div id="insights-result" class="result"></div>
    </div>
  </div>

  <div class="grid two">
    <div class="card">
      <h2>Topic analysis</h2>
      <textarea rows="6" placeholder="One text per line" data-bind:topic-texts></textarea>
      {{button "topic"}}
      <div id="topic-result-messages"></div>
      <div id="topic-result" class="result"></div>
    </div>
    <div class="card">
      <h2>High-risk customers</h2>
      <input type="number" value="50" data-bind:risk-limit>
      {{button "ranking"}}
      <div id="risk-ranking-result-messages"></div>
      <div id="risk-ranking-result" class="result"></div>
    </div>
  </div>

  <div class="card">
    <h2>Dashboard metrics</h2>
    {{button "metrics"}}
    <div id="metrics-result-messages"></div>
    <div class="grid three">
      <div><h3>Daily churn trend</h3><div id="metrics-trend" class="result"></div></div>
      <div><h3>Top reasons</h3><div id="metrics-reasons" class="result"></div></div>
      <div><h3>By region</h3><div id="metrics-regions" class="result"></div></div>
    </div>
  </div>

  <div class="card">
    <h2>Risk alerts</h2>
    <div class="grid two">
      <input type="number" value="80" placeholder="Risk threshold" data-bind:alert-threshold>
      <input type="number" value="1000" placeholder="Minimum bill" data-bind:alert-min-value>
    </div>
    {{button "alerts"}}
    <div id="alerts-result-messages"></div>
    <div id="alerts-result" class="result"></div>
  </div>
</main>
<footer>
  <div class="container">Churnboard v{{.Version}} &middot; backend {{.BackendURL}}</div>
</footer>
</body>
</html>
`))

type pageData struct {
	DatastarSrc  string
	Version      string
	BackendURL   string
	Health       render.Badge
	Customers    string
	Interactions string
	ChurnRate    string
}

// backendURLer is implemented by controls that know the backend address.
type backendURLer interface {
	BackendURL() string
}

// handleDashboard renders the page with health and stats already loaded.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data := pageData{
		DatastarSrc:  datastarSrc,
		Version:      Version,
		Health:       render.Badge{Text: "Backend: Checking..."},
		Customers:    "-",
		Interactions: "-",
		ChurnRate:    "-",
	}
	if b, ok := s.ctrl.(backendURLer); ok {
		data.BackendURL = b.BackendURL()
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	for _, name := range []string{"health", "stats"} {
		res, err := s.runner.Peek(ctx, name, nil)
		if err != nil {
			s.log.Warnw("initial load failed", "action", name, "error", err)
			continue
		}
		for _, u := range res.Outcome.Updates {
			switch {
			case u.Kind == actions.KindBadge && u.Badge != nil:
				data.Health = *u.Badge
			case u.Region == actions.RegionCustomers:
				data.Customers = u.Text
			case u.Region == actions.RegionInteractions:
				data.Interactions = u.Text
			case u.Region == actions.RegionChurnRate:
				data.ChurnRate = u.Text
			}
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTpl.Execute(w, data); err != nil {
		s.log.Errorw("render dashboard failed", "error", err)
	}
}
