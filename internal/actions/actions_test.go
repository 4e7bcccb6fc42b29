package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Roelanb/churnboard/internal/backend"
)

type call struct {
	Method string
	Path   string
	Query  string
	Body   string
}

// fakeBackend answers by path and records every request in order.
type fakeBackend struct {
	mu     sync.Mutex
	calls  []call
	routes map[string]func(w http.ResponseWriter)
}

func newFake(t *testing.T, routes map[string]func(w http.ResponseWriter)) (*fakeBackend, Env) {
	t.Helper()
	fb := &fakeBackend{routes: routes}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		fb.mu.Lock()
		fb.calls = append(fb.calls, call{Method: r.Method, Path: r.URL.EscapedPath(), Query: r.URL.RawQuery, Body: string(b)})
		fb.mu.Unlock()
		h, ok := fb.routes[r.URL.EscapedPath()]
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		h(w)
	}))
	t.Cleanup(srv.Close)
	client := backend.NewClient(zap.NewNop().Sugar(), srv.URL, 2*time.Second)
	return fb, Env{Backend: client, Fallback: Stats{Customers: 7086, Interactions: 45, ChurnRate: 0.265}}
}

func jsonReply(body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}
}

func statusReply(code int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.WriteHeader(code)
		_, _ = io.WriteString(w, body)
	}
}

// exec mirrors the validate/run/fail flow the view controller drives.
func exec(t *testing.T, a *Action, env Env, p Params) (*Outcome, error) {
	t.Helper()
	if ve := a.Check(p); ve != nil {
		return a.Rejected(ve), ve
	}
	out, err := a.Run(context.Background(), env, p)
	if err != nil {
		return a.Failure(out, err), err
	}
	return out, nil
}

func findUpdate(o *Outcome, region string) *Update {
	for i := range o.Updates {
		if o.Updates[i].Region == region {
			return &o.Updates[i]
		}
	}
	return nil
}

func TestRegistry(t *testing.T) {
	want := []string{"alerts", "explore", "export", "health", "insights", "metrics", "nlq", "predict", "ranking", "retention", "search", "sentiment", "stats", "topic"}
	all := All()
	if len(all) != len(want) {
		t.Fatalf("expected %d actions, got %d", len(want), len(all))
	}
	for i, a := range all {
		if a.Name != want[i] {
			t.Fatalf("action %d = %s, want %s", i, a.Name, want[i])
		}
	}
	if _, ok := Lookup("nope"); ok {
		t.Fatalf("unknown action resolved")
	}
	if Search.Button() != "btn-search" {
		t.Fatalf("button id = %s", Search.Button())
	}
}

func TestSearch_EmptyQueryMakesNoCall(t *testing.T) {
	fb, env := newFake(t, nil)
	out, err := exec(t, Search, env, Params{"searchQuery": "   "})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if len(fb.calls) != 0 {
		t.Fatalf("expected no backend calls, got %d", len(fb.calls))
	}
	if len(out.Notices) != 1 || out.Notices[0].Message.Text != "Please enter a search query" || out.Notices[0].Region != RegionVector {
		t.Fatalf("unexpected notices: %+v", out.Notices)
	}
}

func TestSearch_FormatsResults(t *testing.T) {
	fb, env := newFake(t, map[string]func(http.ResponseWriter){
		"/query/vector-search": jsonReply(`{"results":[{"customer_id":"C1","text":"slow internet","source":"call"},{"text":"billing"}]}`),
	})
	out, err := exec(t, Search, env, Params{"searchQuery": " slow ", "searchLimit": "abc"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if fb.calls[0].Query != "k=5&q=slow" {
		t.Fatalf("query = %q", fb.calls[0].Query)
	}
	u := findUpdate(out, RegionVector)
	if u == nil || u.Table == nil {
		t.Fatalf("missing table update")
	}
	if got := strings.Join(u.Table.Columns, ","); got != "Customer ID,Interaction,Source,Title" {
		t.Fatalf("columns = %s", got)
	}
	if got := strings.Join(u.Table.Rows[1], "|"); got != "N/A|billing|N/A|N/A" {
		t.Fatalf("row 1 = %s", got)
	}
	if out.Notices[0].Message.Text != "Found 2 similar interactions" {
		t.Fatalf("notice = %q", out.Notices[0].Message.Text)
	}
}

func TestSearch_NoResults(t *testing.T) {
	_, env := newFake(t, map[string]func(http.ResponseWriter){
		"/query/vector-search": jsonReply(`{"results":[]}`),
	})
	out, err := exec(t, Search, env, Params{"searchQuery": "x"})
	if err != nil {
		t.Fatal(err)
	}
	u := findUpdate(out, RegionVector)
	if !u.Table.Empty() || u.Table.PlaceholderText() != "No similar interactions found" {
		t.Fatalf("expected placeholder, got %+v", u.Table)
	}
	if len(out.Notices) != 0 {
		t.Fatalf("no message expected on empty result")
	}
}

func TestSearch_FailureClearsAndPrefixes(t *testing.T) {
	_, env := newFake(t, map[string]func(http.ResponseWriter){
		"/query/vector-search": statusReply(500, "boom"),
	})
	out, err := exec(t, Search, env, Params{"searchQuery": "x"})
	if backend.StatusOf(err) != 500 {
		t.Fatalf("expected HTTP 500 error, got %v", err)
	}
	if u := findUpdate(out, RegionVector); u == nil || u.Kind != KindClear {
		t.Fatalf("expected region clear, got %+v", out.Updates)
	}
	if got := out.Notices[0].Message.Text; got != "Search failed: HTTP 500: boom" {
		t.Fatalf("message = %q", got)
	}
}

func TestPredict_BodyShape(t *testing.T) {
	fb, env := newFake(t, map[string]func(http.ResponseWriter){
		"/churn/predict": jsonReply(`{"churn_probability":0.7}`),
	})
	p := Params{
		"fTenure":    "12",
		"fMonthly":   "70.5",
		"fContract":  "Month-to-month",
		"fInternet":  "Fiber optic",
		"fPayment":   "Electronic check",
		"fPaperless": "true",
	}
	out, err := exec(t, Predict, env, p)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(fb.calls[0].Body), &got); err != nil {
		t.Fatalf("body: %v", err)
	}
	want := map[string]any{
		"tenure":            float64(12),
		"monthly_charges":   70.5,
		"contract":          "Month-to-month",
		"internet_service":  "Fiber optic",
		"payment_method":    "Electronic check",
		"paperless_billing": true,
	}
	if len(got) != len(want) {
		t.Fatalf("body keys = %v", got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s = %#v, want %#v", k, got[k], v)
		}
	}
	if u := findUpdate(out, RegionPredict); u == nil || !strings.Contains(u.Text, `"churn_probability": 0.7`) {
		t.Fatalf("unexpected text: %+v", out.Updates)
	}
}

func TestPredict_CoercesBlankNumbers(t *testing.T) {
	f := FeaturesFrom(Params{"fTenure": "", "fMonthly": "x", "fPaperless": "yes"})
	if f.Tenure != 0 || f.MonthlyCharges != 0 || f.PaperlessBilling {
		t.Fatalf("unexpected coercion: %+v", f)
	}
}

func TestNLQuery_SequentialCalls(t *testing.T) {
	fb, env := newFake(t, map[string]func(http.ResponseWriter){
		"/query/sql":     jsonReply(`{"sql":"SELECT * FROM customers"}`),
		"/query/execute": jsonReply(`{"rows":[{"customer_id":"C1"}]}`),
	})
	out, err := exec(t, NLQuery, env, Params{"nlq": "all customers"})
	if err != nil {
		t.Fatal(err)
	}
	if len(fb.calls) != 2 || fb.calls[0].Path != "/query/sql" || fb.calls[1].Path != "/query/execute" {
		t.Fatalf("calls = %+v", fb.calls)
	}
	for _, c := range fb.calls {
		if c.Body != `{"nl_query":"all customers"}` {
			t.Fatalf("body = %s", c.Body)
		}
	}
	if u := findUpdate(out, RegionSQL); u == nil || !strings.Contains(u.Text, "SELECT * FROM customers") {
		t.Fatalf("sql region = %+v", u)
	}
	if u := findUpdate(out, RegionRows); u == nil || len(u.Table.Rows) != 1 {
		t.Fatalf("rows region = %+v", u)
	}
}

func TestNLQuery_ExecuteFailureKeepsSQL(t *testing.T) {
	_, env := newFake(t, map[string]func(http.ResponseWriter){
		"/query/sql":     jsonReply(`{"sql":"SELECT 1"}`),
		"/query/execute": statusReply(400, "bad sql"),
	})
	out, err := exec(t, NLQuery, env, Params{"nlq": "q"})
	if err == nil {
		t.Fatalf("expected failure")
	}
	if u := findUpdate(out, RegionSQL); u == nil || u.Kind != KindText {
		t.Fatalf("generated SQL should remain shown: %+v", out.Updates)
	}
	if u := findUpdate(out, RegionRows); u == nil || u.Kind != KindClear {
		t.Fatalf("rows table should be cleared: %+v", out.Updates)
	}
	if n := out.Notices[0]; n.Region != RegionSQL || n.Message.Text != "Query failed: HTTP 400: bad sql" {
		t.Fatalf("notice = %+v", n)
	}
}

type memStats struct {
	last    *Stats
	saved   int
	saveErr error
}

func (m *memStats) LastStats() (*Stats, bool, error) { return m.last, m.last != nil, nil }
func (m *memStats) SaveStats(s Stats) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.last = &s
	m.saved++
	return nil
}

type warnLog struct {
	msgs []string
}

func (l *warnLog) Warnw(msg string, keysAndValues ...any) {
	l.msgs = append(l.msgs, fmt.Sprint(append([]any{msg}, keysAndValues...)...))
}

func statValues(o *Outcome) []string {
	var out []string
	for _, u := range o.Updates {
		out = append(out, u.Text)
	}
	return out
}

func TestStats_SuccessPersists(t *testing.T) {
	fb, env := newFake(t, map[string]func(http.ResponseWriter){
		"/ingestion/customers/count":    jsonReply(`{"count":12345}`),
		"/ingestion/interactions/count": jsonReply(`{"count":0}`),
		"/churn/analytics":              jsonReply(`{"churn_rate":0.1234}`),
	})
	store := &memStats{}
	env.Stats = store
	out, err := exec(t, StatsAction, env, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(fb.calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(fb.calls))
	}
	if got := strings.Join(statValues(out), " "); got != "12,345 0 12.3%" {
		t.Fatalf("stats = %s", got)
	}
	if store.saved != 1 || store.last.Customers != 12345 {
		t.Fatalf("snapshot not saved: %+v", store.last)
	}
}

func TestStats_SaveFailureIsLogged(t *testing.T) {
	_, env := newFake(t, map[string]func(http.ResponseWriter){
		"/ingestion/customers/count":    jsonReply(`{"count":1}`),
		"/ingestion/interactions/count": jsonReply(`{"count":2}`),
		"/churn/analytics":              jsonReply(`{"churn_rate":0.5}`),
	})
	log := &warnLog{}
	env.Log = log
	env.Stats = &memStats{saveErr: errors.New("disk full")}
	out, err := exec(t, StatsAction, env, nil)
	if err != nil {
		t.Fatalf("stats must not fail: %v", err)
	}
	if got := strings.Join(statValues(out), " "); got != "1 2 50.0%" {
		t.Fatalf("stats = %s", got)
	}
	if len(log.msgs) != 1 || !strings.Contains(log.msgs[0], "disk full") {
		t.Fatalf("save failure not logged: %v", log.msgs)
	}
}

func TestStats_Fallbacks(t *testing.T) {
	fb, env := newFake(t, map[string]func(http.ResponseWriter){
		"/ingestion/customers/count": statusReply(503, "down"),
	})
	out, err := exec(t, StatsAction, env, nil)
	if err != nil {
		t.Fatalf("stats must not fail: %v", err)
	}
	if len(fb.calls) != 1 {
		t.Fatalf("later calls should be skipped after a failure, got %d", len(fb.calls))
	}
	if got := strings.Join(statValues(out), " "); got != "7,086 45 26.5%" {
		t.Fatalf("fallback stats = %s", got)
	}

	env.Stats = &memStats{last: &Stats{Customers: 100, Interactions: 2000, ChurnRate: 0.5}}
	out, _ = exec(t, StatsAction, env, nil)
	if got := strings.Join(statValues(out), " "); got != "100 2,000 50.0%" {
		t.Fatalf("snapshot stats = %s", got)
	}
}

func TestHealth(t *testing.T) {
	_, env := newFake(t, map[string]func(http.ResponseWriter){
		"/health": jsonReply(`{"status":"degraded"}`),
	})
	out, err := exec(t, Health, env, nil)
	if err != nil {
		t.Fatal(err)
	}
	b := out.Updates[0].Badge
	if b.Text != "Backend: degraded" || b.OK {
		t.Fatalf("badge = %+v", b)
	}

	down := Health.Failure(nil, &backend.NetworkError{Method: "GET", URL: "x", Err: io.EOF})
	if b := down.Updates[0].Badge; b.Text != "Backend: Down" || b.OK || len(down.Notices) != 0 {
		t.Fatalf("down outcome = %+v", down)
	}
}

func TestExplore_FiltersAndCount(t *testing.T) {
	fb, env := newFake(t, map[string]func(http.ResponseWriter){
		"/ingestion/customers/explore": jsonReply(`[{"customer_id":"C1"},{"customer_id":"C2"}]`),
	})
	out, err := exec(t, Explore, env, Params{"filterGender": "Female", "filterContract": "", "filterChurn": "Yes"})
	if err != nil {
		t.Fatal(err)
	}
	if fb.calls[0].Query != "churn=Yes&gender=Female" {
		t.Fatalf("query = %q", fb.calls[0].Query)
	}
	if out.Notices[0].Message.Text != "Found 2 customers" {
		t.Fatalf("notice = %+v", out.Notices)
	}
}

func TestExport_Download(t *testing.T) {
	_, env := newFake(t, map[string]func(http.ResponseWriter){
		"/ingestion/customers/export": func(w http.ResponseWriter) {
			w.Header().Set("Content-Type", "text/csv")
			_, _ = io.WriteString(w, "customer_id\nC1\n")
		},
	})
	out, err := exec(t, Export, env, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Download == nil || out.Download.Filename != ExportFilename || string(out.Download.Data) != "customer_id\nC1\n" {
		t.Fatalf("download = %+v", out.Download)
	}

	_, env = newFake(t, nil)
	out, _ = exec(t, Export, env, nil)
	if out.Download != nil || !strings.HasPrefix(out.Notices[0].Message.Text, "Export failed: HTTP 404") {
		t.Fatalf("failure outcome = %+v", out)
	}
}

func TestTopic_SendsNonBlankLines(t *testing.T) {
	fb, env := newFake(t, map[string]func(http.ResponseWriter){
		"/analysis/topic": jsonReply(`{"topics":[]}`),
	})
	if _, err := exec(t, Topic, env, Params{"topicTexts": "first\r\n\n  \nsecond line\n"}); err != nil {
		t.Fatal(err)
	}
	if fb.calls[0].Body != `{"texts":["first","second line"]}` {
		t.Fatalf("body = %s", fb.calls[0].Body)
	}
}

func TestInsights_EscapesID(t *testing.T) {
	fb, env := newFake(t, map[string]func(http.ResponseWriter){
		"/insights/customer/C%2F1": jsonReply(`{"summary":"ok"}`),
	})
	if _, err := exec(t, Insights, env, Params{"insightsCustomerId": " C/1 "}); err != nil {
		t.Fatal(err)
	}
	if fb.calls[0].Path != "/insights/customer/C%2F1" {
		t.Fatalf("path = %s", fb.calls[0].Path)
	}
}

func TestRetention_Body(t *testing.T) {
	fb, env := newFake(t, map[string]func(http.ResponseWriter){
		"/retention/recommend": jsonReply(`{"strategy":"discount"}`),
	})
	if _, err := exec(t, Retention, env, Params{"retentionCustomerId": "C9", "retentionChurnRisk": "0.8x"}); err != nil {
		t.Fatal(err)
	}
	if fb.calls[0].Body != `{"customer_id":"C9","churn_risk":0.8}` {
		t.Fatalf("body = %s", fb.calls[0].Body)
	}
}

func TestRanking(t *testing.T) {
	fb, env := newFake(t, map[string]func(http.ResponseWriter){
		"/churn/ranked": jsonReply(`{"items":[{"customer_id":"C1","risk":0.9},{"customer_id":"C2","risk":0.8},{"customer_id":"C3","risk":0.7}]}`),
	})
	out, err := exec(t, Ranking, env, Params{"riskLimit": "2"})
	if err != nil {
		t.Fatal(err)
	}
	if fb.calls[0].Query != "limit=2" {
		t.Fatalf("query = %s", fb.calls[0].Query)
	}
	u := findUpdate(out, RegionRanking)
	if len(u.Table.Rows) != 2 || u.Table.Notice() != "Showing 2 of 3 rows" {
		t.Fatalf("table = %+v", u.Table)
	}
	if out.Notices[0].Message.Text != "Showing 3 high-risk customers" {
		t.Fatalf("notice = %+v", out.Notices)
	}
}

func TestMetricsAndAlerts(t *testing.T) {
	fb, env := newFake(t, map[string]func(http.ResponseWriter){
		"/dashboard/metrics": jsonReply(`{"daily_churn_trend":[{"date":"2025-01-01","avg_risk":42}],"top_reasons":[],"distribution_by_region":[{"region":"Delhi","avg_risk":48}]}`),
		"/dashboard/alerts":  jsonReply(`{"threshold":80,"alerts":[{"customer_id":"CUST0001","risk":92,"bill":2200}]}`),
	})
	out, err := exec(t, Metrics, env, nil)
	if err != nil {
		t.Fatal(err)
	}
	if u := findUpdate(out, RegionReasons); !u.Table.Empty() {
		t.Fatalf("empty reasons should render a placeholder")
	}
	if u := findUpdate(out, RegionTrend); strings.Join(u.Table.Columns, ",") != "date,avg_risk" {
		t.Fatalf("trend columns = %v", u.Table.Columns)
	}

	out, err = exec(t, Alerts, env, Params{})
	if err != nil {
		t.Fatal(err)
	}
	if fb.calls[1].Query != "min_value=1000&threshold=80" {
		t.Fatalf("alerts query = %s", fb.calls[1].Query)
	}
	if out.Notices[0].Message.Text != "1 customers above risk threshold 80" {
		t.Fatalf("notice = %+v", out.Notices)
	}
}

func TestParams(t *testing.T) {
	p := ParamsFrom(map[string]any{"a": "12abc", "b": 3.5, "c": true, "d": nil, "e": json.Number("7")})
	if p.Int("a", 9) != 12 || p.Float("b", 0) != 3.5 || !p.Bool("c") || p.Raw("d") != "" || p.Int("e", 0) != 7 {
		t.Fatalf("unexpected params: %v", p)
	}
	if p.Int("missing", 5) != 5 || p.Float("missing", 80) != 80 {
		t.Fatalf("defaults not applied")
	}
	if got := Lines(" a \n\n b"); len(got) != 2 || got[0] != " a " {
		t.Fatalf("lines = %q", got)
	}
}
