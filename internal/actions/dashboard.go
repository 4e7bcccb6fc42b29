package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Roelanb/churnboard/internal/payload"
	"github.com/Roelanb/churnboard/internal/render"
)

// Region ids of the headline area.
const (
	RegionHealth       = "health"
	RegionCustomers    = "customer-count"
	RegionInteractions = "interaction-count"
	RegionChurnRate    = "churn-rate"
	RegionStats        = "stats"
)

// Stats are the three headline numbers.
type Stats struct {
	Customers    int64     `json:"customers"`
	Interactions int64     `json:"interactions"`
	ChurnRate    float64   `json:"churnRate"`
	CapturedAt   time.Time `json:"capturedAt"`
}

// StatsStore keeps the last stats that loaded successfully.
type StatsStore interface {
	LastStats() (*Stats, bool, error)
	SaveStats(s Stats) error
}

// FormatCount renders a count with thousands separators.
func FormatCount(n int64) string {
	return humanize.Comma(n)
}

// FormatRate renders a 0..1 ratio as a percentage with one decimal.
func FormatRate(r float64) string {
	return fmt.Sprintf("%.1f%%", r*100)
}

func (s Stats) outcome() *Outcome {
	out := &Outcome{}
	out.stat(RegionCustomers, FormatCount(s.Customers))
	out.stat(RegionInteractions, FormatCount(s.Interactions))
	out.stat(RegionChurnRate, FormatRate(s.ChurnRate))
	return out
}

var Health = register(&Action{
	Name:   "health",
	Title:  "Backend health",
	Region: RegionHealth,
	Run: func(ctx context.Context, env Env, _ Params) (*Outcome, error) {
		data, err := env.Backend.GetJSON(ctx, "/health", nil)
		if err != nil {
			return nil, err
		}
		status := payload.String(payload.Field(data, "status"))
		out := &Outcome{}
		out.Updates = append(out.Updates, Update{
			Region: RegionHealth,
			Kind:   KindBadge,
			Badge:  &render.Badge{Text: "Backend: " + status, OK: status == "ok"},
		})
		return out, nil
	},
	Fail: func(error) *Outcome {
		return &Outcome{Updates: []Update{{
			Region: RegionHealth,
			Kind:   KindBadge,
			Badge:  &render.Badge{Text: "Backend: Down"},
		}}}
	},
})

// Stats never fails: when any call errors it shows the last persisted
// snapshot, then the configured fallback numbers.
var StatsAction = register(&Action{
	Name:   "stats",
	Title:  "Headline stats",
	Region: RegionStats,
	Run: func(ctx context.Context, env Env, _ Params) (*Outcome, error) {
		s, err := loadStats(ctx, env)
		if err == nil {
			if env.Stats != nil {
				if err := env.Stats.SaveStats(*s); err != nil {
					env.warn("saving stats snapshot failed", "error", err)
				}
			}
			return s.outcome(), nil
		}
		if env.Stats != nil {
			if last, ok, lerr := env.Stats.LastStats(); lerr == nil && ok {
				return last.outcome(), nil
			}
		}
		return env.Fallback.outcome(), nil
	},
})

func loadStats(ctx context.Context, env Env) (*Stats, error) {
	customers, err := env.Backend.GetJSON(ctx, "/ingestion/customers/count", nil)
	if err != nil {
		return nil, fmt.Errorf("customer count: %w", err)
	}
	interactions, err := env.Backend.GetJSON(ctx, "/ingestion/interactions/count", nil)
	if err != nil {
		return nil, fmt.Errorf("interaction count: %w", err)
	}
	churn, err := env.Backend.GetJSON(ctx, "/churn/analytics", nil)
	if err != nil {
		return nil, fmt.Errorf("churn analytics: %w", err)
	}
	return &Stats{
		Customers:    int64(payload.Float(payload.Field(customers, "count"))),
		Interactions: int64(payload.Float(payload.Field(interactions, "count"))),
		ChurnRate:    payload.Float(payload.Field(churn, "churn_rate")),
		CapturedAt:   time.Now().UTC(),
	}, nil
}
