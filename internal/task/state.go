package task

import (
	"sort"
	"sync"
	"time"

	"github.com/Roelanb/churnboard/internal/actions"
)

// Status is the view state of one action.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusValidating Status = "validating"
	StatusLoading    Status = "loading"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)

// Busy reports whether a run is between trigger and completion.
func (s Status) Busy() bool {
	return s == StatusValidating || s == StatusLoading
}

// ActionRecord is the persisted outcome of the last run of an action.
type ActionRecord struct {
	Action        string    `json:"action"`
	Status        Status    `json:"status"`
	Runs          int       `json:"runs"`
	Failures      int       `json:"failures"`
	LastMessage   string    `json:"last_message,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
	CreatedAt     time.Time `json:"created_at"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

func touch(rec *ActionRecord) {
	rec.UpdatedAt = time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.UpdatedAt
	}
}

func (rec *ActionRecord) apply(status Status, message, lastErr, correlation string) {
	rec.Status = status
	rec.Runs++
	if status == StatusFailed {
		rec.Failures++
	}
	rec.LastMessage = message
	rec.LastError = lastErr
	rec.CorrelationID = correlation
	touch(rec)
}

// StateStore persists action outcomes and the last good stats snapshot.
type StateStore interface {
	actions.StatsStore
	Close() error
	Put(rec *ActionRecord) error
	Get(action string) (*ActionRecord, error)
	Mark(action string, status Status, message, lastErr, correlation string) error
	List() ([]ActionRecord, error)
}

// MemoryStore is a StateStore that forgets everything on exit.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]ActionRecord
	stats   *actions.Stats
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]ActionRecord{}}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Put(rec *ActionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	touch(rec)
	s.records[rec.Action] = *rec
	return nil
}

func (s *MemoryStore) Get(action string) (*ActionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[action]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryStore) Mark(action string, status Status, message, lastErr, correlation string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[action]
	if !ok {
		rec = ActionRecord{Action: action}
	}
	rec.apply(status, message, lastErr, correlation)
	s.records[action] = rec
	return nil
}

func (s *MemoryStore) List() ([]ActionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ActionRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Action < out[j].Action })
	return out, nil
}

func (s *MemoryStore) LastStats() (*actions.Stats, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stats == nil {
		return nil, false, nil
	}
	st := *s.stats
	return &st, true, nil
}

func (s *MemoryStore) SaveStats(st actions.Stats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = &st
	return nil
}
