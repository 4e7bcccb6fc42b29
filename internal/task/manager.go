package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Roelanb/churnboard/internal/actions"
	"github.com/Roelanb/churnboard/internal/config"
)

var (
	ErrUnknownAction = errors.New("unknown action")
	ErrInFlight      = errors.New("action already running")
)

// Manager drives actions through their view states and guards against
// overlapping runs of the same action.
type Manager struct {
	log   observabilityLogger
	state StateStore
	mu    sync.Mutex
	env   actions.Env
	views map[string]*View
}

// observabilityLogger is minimal interface from zap.SugaredLogger we use.
type observabilityLogger interface {
	Infow(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)
	Debugw(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
}

// View is the externally visible state of one action.
type View struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Status Status `json:"status"`
	// Last is the terminal state of the most recent completed run.
	Last        Status    `json:"last,omitempty"`
	LastMessage string    `json:"lastMessage,omitempty"`
	Runs        int       `json:"runs"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}

// Result is what one Run produced.
type Result struct {
	Action        string
	Status        Status
	Outcome       *actions.Outcome
	Err           error
	CorrelationID string
}

// NewManager creates a manager with provided logger, state store and backend.
// Previously persisted outcomes seed the views.
func NewManager(logger observabilityLogger, state StateStore, be actions.Backend) *Manager {
	m := &Manager{
		log:   logger,
		state: state,
		env:   actions.Env{Backend: be, Log: logger, Stats: state},
		views: map[string]*View{},
	}
	for _, a := range actions.All() {
		m.views[a.Name] = &View{Action: a.Name, Title: a.Title, Status: StatusIdle}
	}
	recs, err := state.List()
	if err != nil {
		logger.Warnw("loading action history failed", "error", err)
	}
	for _, r := range recs {
		if v, ok := m.views[r.Action]; ok {
			v.Last = r.Status
			v.LastMessage = r.LastMessage
			v.Runs = r.Runs
			v.UpdatedAt = r.UpdatedAt
		}
	}
	return m
}

// ApplyConfig takes the stats fallback from cfg.
func (m *Manager) ApplyConfig(_ context.Context, cfg *config.Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.env.Fallback = actions.Stats{
		Customers:    cfg.Fallback.Customers,
		Interactions: cfg.Fallback.Interactions,
		ChurnRate:    cfg.Fallback.ChurnRate,
	}
	return nil
}

// Run executes the named action. onState, when set, is called on every
// transition so callers can reflect it (e.g. disable the trigger button).
// The returned error is only ErrUnknownAction or ErrInFlight; action
// failures are reported through Result.
func (m *Manager) Run(ctx context.Context, name string, p actions.Params, onState func(Status)) (*Result, error) {
	a, ok := actions.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
	env, err := m.begin(name)
	if err != nil {
		return nil, err
	}
	corrID := uuid.NewString()
	notify := func(s Status) {
		if onState != nil {
			onState(s)
		}
	}

	// a run that panics is released as failed
	last, msg := StatusFailed, "action aborted"
	defer func() {
		m.finish(name, last, msg)
		notify(StatusIdle)
	}()
	notify(StatusValidating)

	if ve := a.Check(p); ve != nil {
		m.log.Debugw("action rejected", "action", name, "reason", ve.Message, "correlation", corrID)
		last, msg = StatusIdle, ""
		return &Result{Action: name, Status: StatusIdle, Outcome: a.Rejected(ve), Err: ve, CorrelationID: corrID}, nil
	}

	m.setStatus(name, StatusLoading)
	notify(StatusLoading)

	res := execute(ctx, m.log, a, env, p)
	res.CorrelationID = corrID
	m.log.Infow("action finished", "action", name, "status", res.Status, "correlation", corrID)

	last, msg = res.Status, summary(res)
	lastErr := ""
	if res.Err != nil {
		lastErr = res.Err.Error()
	}
	if err := m.state.Mark(name, res.Status, msg, lastErr, corrID); err != nil {
		m.log.Warnw("persist action outcome failed", "action", name, "error", err)
	}
	notify(res.Status)
	return res, nil
}

// Peek runs an action for display only. It skips the in-flight guard and
// leaves view state and history untouched.
func (m *Manager) Peek(ctx context.Context, name string, p actions.Params) (*Result, error) {
	a, ok := actions.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
	m.mu.Lock()
	env := m.env
	m.mu.Unlock()

	if ve := a.Check(p); ve != nil {
		return &Result{Action: name, Status: StatusIdle, Outcome: a.Rejected(ve), Err: ve}, nil
	}
	return execute(ctx, m.log, a, env, p), nil
}

func execute(ctx context.Context, log observabilityLogger, a *actions.Action, env actions.Env, p actions.Params) *Result {
	start := time.Now()
	out, err := a.Run(ctx, env, p)
	res := &Result{Action: a.Name}
	if err != nil {
		res.Status, res.Outcome, res.Err = StatusFailed, a.Failure(out, err), err
		log.Errorw("action failed", "action", a.Name, "error", err, "duration", time.Since(start))
		return res
	}
	if out == nil {
		out = &actions.Outcome{}
	}
	res.Status, res.Outcome = StatusSuccess, out
	log.Debugw("action done", "action", a.Name, "duration", time.Since(start))
	return res
}

func (m *Manager) begin(name string) (actions.Env, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.views[name]
	if v.Status.Busy() {
		return actions.Env{}, fmt.Errorf("%w: %s", ErrInFlight, name)
	}
	v.Status = StatusValidating
	return m.env, nil
}

func (m *Manager) setStatus(name string, s Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.views[name].Status = s
}

func (m *Manager) finish(name string, last Status, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.views[name]
	v.Status = StatusIdle
	if last != StatusIdle {
		v.Last = last
		v.LastMessage = msg
		v.Runs++
		v.UpdatedAt = time.Now()
	}
}

func summary(res *Result) string {
	if res.Outcome == nil || len(res.Outcome.Notices) == 0 {
		return ""
	}
	return res.Outcome.Notices[len(res.Outcome.Notices)-1].Message.Text
}

// Snapshot returns the view of every action, sorted by name.
func (m *Manager) Snapshot() []View {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]View, 0, len(m.views))
	for _, a := range actions.All() {
		if v, ok := m.views[a.Name]; ok {
			out = append(out, *v)
		}
	}
	return out
}

// ActionsSnapshot is Snapshot for callers that only need JSON.
func (m *Manager) ActionsSnapshot() any {
	return m.Snapshot()
}
