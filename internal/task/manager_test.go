package task

import (
	"context"
	"errors"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Roelanb/churnboard/internal/actions"
	"github.com/Roelanb/churnboard/internal/backend"
	"github.com/Roelanb/churnboard/internal/config"
	"github.com/Roelanb/churnboard/internal/payload"
)

// stubBackend answers every GET with reply (or err) and can hold calls until released.
type stubBackend struct {
	mu      sync.Mutex
	calls   int
	reply   string
	err     error
	entered chan struct{}
	release chan struct{}
	panics  bool
}

func (s *stubBackend) GetJSON(ctx context.Context, path string, _ url.Values) (any, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.panics {
		panic("backend stub panic")
	}
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return payload.DecodeBytes([]byte(s.reply))
}

func (s *stubBackend) PostJSON(ctx context.Context, path string, _ any) (any, error) {
	return s.GetJSON(ctx, path, nil)
}

func (s *stubBackend) Download(context.Context, string, url.Values) (*backend.Blob, error) {
	return &backend.Blob{Data: []byte("a,b\n")}, s.err
}

func newManager(be actions.Backend, store StateStore) *Manager {
	return NewManager(zap.NewNop().Sugar(), store, be)
}

func TestRun_UnknownAction(t *testing.T) {
	m := newManager(&stubBackend{}, NewMemoryStore())
	if _, err := m.Run(context.Background(), "nope", nil, nil); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestRun_ValidationReturnsToIdle(t *testing.T) {
	be := &stubBackend{}
	store := NewMemoryStore()
	m := newManager(be, store)

	var seen []Status
	res, err := m.Run(context.Background(), "sentiment", actions.Params{"sentimentText": ""}, func(s Status) { seen = append(seen, s) })
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusIdle || be.calls != 0 {
		t.Fatalf("status=%s calls=%d", res.Status, be.calls)
	}
	if len(seen) != 2 || seen[0] != StatusValidating || seen[1] != StatusIdle {
		t.Fatalf("transitions = %v", seen)
	}
	if rec, _ := store.Get("sentiment"); rec != nil {
		t.Fatalf("rejected runs are not recorded: %+v", rec)
	}
}

func TestRun_SuccessAndFailureTransitions(t *testing.T) {
	be := &stubBackend{reply: `{"label":"positive"}`}
	store := NewMemoryStore()
	m := newManager(be, store)

	var seen []Status
	res, err := m.Run(context.Background(), "sentiment", actions.Params{"sentimentText": "great"}, func(s Status) { seen = append(seen, s) })
	if err != nil || res.Status != StatusSuccess {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	want := []Status{StatusValidating, StatusLoading, StatusSuccess, StatusIdle}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v", seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", seen, want)
		}
	}

	be.err = &backend.HTTPError{Status: 502, Body: "bad gateway"}
	res, _ = m.Run(context.Background(), "sentiment", actions.Params{"sentimentText": "great"}, nil)
	if res.Status != StatusFailed || backend.StatusOf(res.Err) != 502 {
		t.Fatalf("expected failure, got %+v", res)
	}
	if got := res.Outcome.Notices[0].Message.Text; got != "Analysis failed: HTTP 502: bad gateway" {
		t.Fatalf("message = %q", got)
	}

	rec, _ := store.Get("sentiment")
	if rec == nil || rec.Runs != 2 || rec.Failures != 1 || rec.Status != StatusFailed {
		t.Fatalf("record = %+v", rec)
	}
	v := m.Snapshot()
	for _, x := range v {
		if x.Action == "sentiment" && (x.Status != StatusIdle || x.Last != StatusFailed || x.Runs != 2) {
			t.Fatalf("view = %+v", x)
		}
	}
}

func TestRun_RejectsOverlap(t *testing.T) {
	be := &stubBackend{reply: `{"status":"ok"}`, entered: make(chan struct{}, 1), release: make(chan struct{})}
	m := newManager(be, NewMemoryStore())

	done := make(chan *Result, 1)
	go func() {
		res, _ := m.Run(context.Background(), "health", nil, nil)
		done <- res
	}()
	<-be.entered

	if _, err := m.Run(context.Background(), "health", nil, nil); !errors.Is(err, ErrInFlight) {
		t.Fatalf("expected ErrInFlight, got %v", err)
	}
	close(be.release)

	select {
	case res := <-done:
		if res.Status != StatusSuccess {
			t.Fatalf("first run = %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first run did not finish")
	}

	be.entered = nil
	if _, err := m.Run(context.Background(), "health", nil, nil); err != nil {
		t.Fatalf("run after completion should be accepted: %v", err)
	}
}

func TestRun_PanicReleasesAction(t *testing.T) {
	be := &stubBackend{panics: true}
	m := newManager(be, NewMemoryStore())

	var seen []Status
	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected the panic to propagate")
			}
		}()
		_, _ = m.Run(context.Background(), "health", nil, func(s Status) { seen = append(seen, s) })
	}()
	if seen[len(seen)-1] != StatusIdle {
		t.Fatalf("transitions = %v", seen)
	}
	for _, v := range m.Snapshot() {
		if v.Action == "health" && (v.Status != StatusIdle || v.Last != StatusFailed) {
			t.Fatalf("view = %+v", v)
		}
	}

	be.panics = false
	be.reply = `{"status":"ok"}`
	res, err := m.Run(context.Background(), "health", nil, nil)
	if err != nil || res.Status != StatusSuccess {
		t.Fatalf("run after panic: res=%+v err=%v", res, err)
	}
}

func TestPeek_IgnoresInFlightGuard(t *testing.T) {
	be := &stubBackend{reply: `{"status":"ok"}`, entered: make(chan struct{}, 2), release: make(chan struct{})}
	m := newManager(be, NewMemoryStore())

	ran := make(chan *Result, 1)
	go func() {
		res, _ := m.Run(context.Background(), "health", nil, nil)
		ran <- res
	}()
	<-be.entered

	peeked := make(chan *Result, 1)
	errs := make(chan error, 1)
	go func() {
		res, err := m.Peek(context.Background(), "health", nil)
		errs <- err
		peeked <- res
	}()
	<-be.entered
	close(be.release)

	if err := <-errs; err != nil {
		t.Fatalf("peek rejected: %v", err)
	}
	if res := <-peeked; res.Status != StatusSuccess || res.Outcome.Updates[0].Badge.Text != "Backend: ok" {
		t.Fatalf("peek = %+v", res)
	}
	<-ran
	for _, v := range m.Snapshot() {
		if v.Action == "health" && v.Runs != 1 {
			t.Fatalf("peek must not count as a run: %+v", v)
		}
	}
}

func TestApplyConfig_Fallback(t *testing.T) {
	be := &stubBackend{err: &backend.NetworkError{Method: "GET", URL: "x", Err: context.DeadlineExceeded}}
	m := newManager(be, NewMemoryStore())
	cfg := &config.Config{}
	cfg.Fallback.Customers = 10
	cfg.Fallback.Interactions = 20
	cfg.Fallback.ChurnRate = 0.5
	if err := m.ApplyConfig(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}
	res, _ := m.Run(context.Background(), "stats", nil, nil)
	if res.Status != StatusSuccess || res.Outcome.Updates[0].Text != "10" || res.Outcome.Updates[2].Text != "50.0%" {
		t.Fatalf("fallback outcome = %+v", res.Outcome)
	}
}

func TestBBoltStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "churnboard.db")
	s, err := OpenBBolt(path)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok, err := s.LastStats(); ok || err != nil {
		t.Fatalf("expected no snapshot, ok=%v err=%v", ok, err)
	}
	if err := s.SaveStats(actions.Stats{Customers: 7086, Interactions: 45, ChurnRate: 0.265}); err != nil {
		t.Fatal(err)
	}
	if err := s.Mark("ranking", StatusSuccess, "Showing 3 high-risk customers", "", "c1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Mark("ranking", StatusFailed, "Failed to get rankings: HTTP 500", "HTTP 500", "c2"); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = OpenBBolt(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	st, ok, err := s.LastStats()
	if err != nil || !ok || st.Customers != 7086 {
		t.Fatalf("stats = %+v ok=%v err=%v", st, ok, err)
	}
	rec, err := s.Get("ranking")
	if err != nil || rec == nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Runs != 2 || rec.Failures != 1 || rec.CorrelationID != "c2" || rec.CreatedAt.After(rec.UpdatedAt) {
		t.Fatalf("record = %+v", rec)
	}

	// views are seeded from persisted history
	m := newManager(&stubBackend{}, s)
	for _, v := range m.Snapshot() {
		if v.Action == "ranking" && (v.Last != StatusFailed || v.Runs != 2) {
			t.Fatalf("seeded view = %+v", v)
		}
	}
	list, err := s.List()
	if err != nil || len(list) != 1 {
		t.Fatalf("list = %+v err=%v", list, err)
	}
}
