package actions

import (
	"context"
	"net/url"
	"strconv"

	"github.com/Roelanb/churnboard/internal/payload"
	"github.com/Roelanb/churnboard/internal/render"
)

const (
	RegionPredict = "churn-result"
	RegionRanking = "risk-ranking-result"
	RegionTrend   = "metrics-trend"
	RegionReasons = "metrics-reasons"
	RegionRegions = "metrics-regions"
	RegionMetrics = "metrics-result"
	RegionAlerts  = "alerts-result"
)

// ChurnFeatures is the prediction request body.
type ChurnFeatures struct {
	Tenure           int     `json:"tenure"`
	MonthlyCharges   float64 `json:"monthly_charges"`
	Contract         string  `json:"contract"`
	InternetService  string  `json:"internet_service"`
	PaymentMethod    string  `json:"payment_method"`
	PaperlessBilling bool    `json:"paperless_billing"`
}

// FeaturesFrom reads the prediction form.
func FeaturesFrom(p Params) ChurnFeatures {
	return ChurnFeatures{
		Tenure:           p.Int("fTenure", 0),
		MonthlyCharges:   p.Float("fMonthly", 0),
		Contract:         p.Raw("fContract"),
		InternetService:  p.Raw("fInternet"),
		PaymentMethod:    p.Raw("fPayment"),
		PaperlessBilling: p.Bool("fPaperless"),
	}
}

var Predict = register(&Action{
	Name:       "predict",
	Title:      "Churn prediction",
	Region:     RegionPredict,
	FailPrefix: "Prediction failed",
	Run: func(ctx context.Context, env Env, p Params) (*Outcome, error) {
		data, err := env.Backend.PostJSON(ctx, "/churn/predict", FeaturesFrom(p))
		if err != nil {
			return nil, err
		}
		out := &Outcome{}
		out.text(RegionPredict, data)
		return out, nil
	},
})

var Ranking = register(&Action{
	Name:        "ranking",
	Title:       "High-risk customers",
	Region:      RegionRanking,
	FailPrefix:  "Failed to get rankings",
	ClearOnFail: []string{RegionRanking},
	Run: func(ctx context.Context, env Env, p Params) (*Outcome, error) {
		limit := p.Int("riskLimit", 50)
		q := url.Values{}
		q.Set("limit", strconv.Itoa(limit))
		data, err := env.Backend.GetJSON(ctx, "/churn/ranked", q)
		if err != nil {
			return nil, err
		}
		items := payload.List(payload.Field(data, "items"))
		out := &Outcome{}
		if len(items) == 0 {
			out.table(RegionRanking, render.Placeholder("No high-risk customers found"))
			return out, nil
		}
		out.table(RegionRanking, render.BuildTable(items, limit))
		out.notify(RegionRanking, render.Success("Showing %d high-risk customers", len(items)))
		return out, nil
	},
})

var Metrics = register(&Action{
	Name:        "metrics",
	Title:       "Dashboard metrics",
	Region:      RegionMetrics,
	FailPrefix:  "Failed to load metrics",
	ClearOnFail: []string{RegionTrend, RegionReasons, RegionRegions},
	Run: func(ctx context.Context, env Env, _ Params) (*Outcome, error) {
		data, err := env.Backend.GetJSON(ctx, "/dashboard/metrics", nil)
		if err != nil {
			return nil, err
		}
		out := &Outcome{}
		out.table(RegionTrend, render.BuildTable(payload.List(payload.Field(data, "daily_churn_trend")), 0))
		out.table(RegionReasons, render.BuildTable(payload.List(payload.Field(data, "top_reasons")), 0))
		out.table(RegionRegions, render.BuildTable(payload.List(payload.Field(data, "distribution_by_region")), 0))
		return out, nil
	},
})

var Alerts = register(&Action{
	Name:        "alerts",
	Title:       "Risk alerts",
	Region:      RegionAlerts,
	FailPrefix:  "Failed to load alerts",
	ClearOnFail: []string{RegionAlerts},
	Run: func(ctx context.Context, env Env, p Params) (*Outcome, error) {
		threshold := p.Float("alertThreshold", 80)
		q := url.Values{}
		q.Set("threshold", strconv.FormatFloat(threshold, 'f', -1, 64))
		q.Set("min_value", strconv.FormatFloat(p.Float("alertMinValue", 1000), 'f', -1, 64))
		data, err := env.Backend.GetJSON(ctx, "/dashboard/alerts", q)
		if err != nil {
			return nil, err
		}
		shown := payload.StringOr(payload.Field(data, "threshold"), strconv.FormatFloat(threshold, 'f', -1, 64))
		alerts := payload.List(payload.Field(data, "alerts"))
		out := &Outcome{}
		if len(alerts) == 0 {
			out.table(RegionAlerts, render.Placeholder("No alerts above threshold"))
			return out, nil
		}
		out.table(RegionAlerts, render.BuildTable(alerts, 0))
		out.notify(RegionAlerts, render.Info("%d customers above risk threshold %s", len(alerts), shown))
		return out, nil
	},
})
