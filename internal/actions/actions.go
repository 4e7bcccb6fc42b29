package actions

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"

	"github.com/Roelanb/churnboard/internal/backend"
	"github.com/Roelanb/churnboard/internal/render"
)

// Backend is the part of backend.Client actions call.
type Backend interface {
	GetJSON(ctx context.Context, path string, query url.Values) (any, error)
	PostJSON(ctx context.Context, path string, body any) (any, error)
	Download(ctx context.Context, path string, query url.Values) (*backend.Blob, error)
}

// Logger receives problems an action handles without failing.
type Logger interface {
	Warnw(msg string, keysAndValues ...any)
}

// Env carries what an action needs besides its params.
type Env struct {
	Backend Backend
	// Log may be nil.
	Log Logger
	// Stats persists the last good headline stats; nil disables it.
	Stats StatsStore
	// Fallback is shown when stats cannot be loaded and nothing was persisted.
	Fallback Stats
}

// UpdateKind says how an Update changes its region.
type UpdateKind string

const (
	KindTable UpdateKind = "table"
	KindText  UpdateKind = "text"
	KindBadge UpdateKind = "badge"
	KindStat  UpdateKind = "stat"
	KindClear UpdateKind = "clear"
)

// Update replaces the content of one output region.
type Update struct {
	Region string        `json:"region"`
	Kind   UpdateKind    `json:"kind"`
	Table  *render.Table `json:"table,omitempty"`
	Text   string        `json:"text,omitempty"`
	Badge  *render.Badge `json:"badge,omitempty"`
}

// Notice is a transient message attached to a region.
type Notice struct {
	Region  string         `json:"region"`
	Message render.Message `json:"message"`
}

// Download is a file handed to the user, e.g. the CSV export.
type Download struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Outcome is everything an action run changes on the dashboard.
type Outcome struct {
	Updates  []Update  `json:"updates"`
	Notices  []Notice  `json:"notices"`
	Download *Download `json:"-"`
}

func (o *Outcome) table(region string, t *render.Table) {
	o.Updates = append(o.Updates, Update{Region: region, Kind: KindTable, Table: t})
}

func (o *Outcome) text(region string, v any) {
	o.Updates = append(o.Updates, Update{Region: region, Kind: KindText, Text: render.Text(v)})
}

func (o *Outcome) stat(region, value string) {
	o.Updates = append(o.Updates, Update{Region: region, Kind: KindStat, Text: value})
}

func (o *Outcome) clear(region string) {
	o.Updates = append(o.Updates, Update{Region: region, Kind: KindClear})
}

func (o *Outcome) notify(region string, m render.Message) {
	o.Notices = append(o.Notices, Notice{Region: region, Message: m})
}

// ValidationError is returned by Validate when a required field is missing.
type ValidationError struct {
	Region  string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Action is one user-triggered dashboard operation.
type Action struct {
	Name  string
	Title string
	// Region receives the action's messages.
	Region string
	// FailPrefix starts the error message shown when Run fails.
	FailPrefix string
	// ClearOnFail lists regions emptied when Run fails.
	ClearOnFail []string

	Validate func(p Params) error
	// Run may return a partial outcome together with an error.
	Run func(ctx context.Context, env Env, p Params) (*Outcome, error)
	// Fail replaces the default failure outcome.
	Fail func(err error) *Outcome
}

// Button is the DOM id of the control that triggers the action.
func (a *Action) Button() string {
	return "btn-" + a.Name
}

// Check runs Validate, if any.
func (a *Action) Check(p Params) *ValidationError {
	if a.Validate == nil {
		return nil
	}
	err := a.Validate(p)
	if err == nil {
		return nil
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve
	}
	return &ValidationError{Region: a.Region, Message: err.Error()}
}

// Rejected is the outcome of a failed validation.
func (a *Action) Rejected(ve *ValidationError) *Outcome {
	region := ve.Region
	if region == "" {
		region = a.Region
	}
	out := &Outcome{}
	out.notify(region, render.Error("%s", ve.Message))
	return out
}

// Failure merges a partial outcome with the failure presentation for err.
func (a *Action) Failure(partial *Outcome, err error) *Outcome {
	out := &Outcome{}
	if partial != nil {
		out.Updates = append(out.Updates, partial.Updates...)
		out.Notices = append(out.Notices, partial.Notices...)
	}
	if a.Fail != nil {
		f := a.Fail(err)
		out.Updates = append(out.Updates, f.Updates...)
		out.Notices = append(out.Notices, f.Notices...)
		return out
	}
	for _, r := range a.ClearOnFail {
		out.clear(r)
	}
	prefix := a.FailPrefix
	if prefix == "" {
		prefix = "Error"
	}
	out.notify(a.Region, render.Error("%s: %s", prefix, err.Error()))
	return out
}

var registry = map[string]*Action{}

func register(a *Action) *Action {
	if _, dup := registry[a.Name]; dup {
		panic(fmt.Sprintf("actions: duplicate action %q", a.Name))
	}
	registry[a.Name] = a
	return a
}

// Lookup returns the action registered under name.
func Lookup(name string) (*Action, bool) {
	a, ok := registry[name]
	return a, ok
}

// All returns every action sorted by name.
func All() []*Action {
	out := make([]*Action, 0, len(registry))
	for _, a := range registry {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (e Env) warn(msg string, keysAndValues ...any) {
	if e.Log != nil {
		e.Log.Warnw(msg, keysAndValues...)
	}
}

func required(p Params, key, region, msg string) error {
	if p.Text(key) == "" {
		return &ValidationError{Region: region, Message: msg}
	}
	return nil
}
