package actions

import (
	"context"
	"net/url"
	"strings"
)

const (
	RegionSentiment = "sentiment-result"
	RegionRetention = "retention-result"
	RegionInsights  = "insights-result"
	RegionTopic     = "topic-result"
)

var Sentiment = register(&Action{
	Name:       "sentiment",
	Title:      "Sentiment analysis",
	Region:     RegionSentiment,
	FailPrefix: "Analysis failed",
	Validate: func(p Params) error {
		return required(p, "sentimentText", RegionSentiment, "Please enter text to analyze")
	},
	Run: func(ctx context.Context, env Env, p Params) (*Outcome, error) {
		data, err := env.Backend.PostJSON(ctx, "/analysis/sentiment", map[string]string{"text": p.Text("sentimentText")})
		if err != nil {
			return nil, err
		}
		out := &Outcome{}
		out.text(RegionSentiment, data)
		return out, nil
	},
})

type retentionRequest struct {
	CustomerID string  `json:"customer_id"`
	ChurnRisk  float64 `json:"churn_risk"`
}

var Retention = register(&Action{
	Name:       "retention",
	Title:      "Retention strategy",
	Region:     RegionRetention,
	FailPrefix: "Strategy generation failed",
	Validate: func(p Params) error {
		return required(p, "retentionCustomerId", RegionRetention, "Please enter a customer ID")
	},
	Run: func(ctx context.Context, env Env, p Params) (*Outcome, error) {
		req := retentionRequest{
			CustomerID: p.Text("retentionCustomerId"),
			ChurnRisk:  p.Float("retentionChurnRisk", 0),
		}
		data, err := env.Backend.PostJSON(ctx, "/retention/recommend", req)
		if err != nil {
			return nil, err
		}
		out := &Outcome{}
		out.text(RegionRetention, data)
		return out, nil
	},
})

var Insights = register(&Action{
	Name:       "insights",
	Title:      "Customer insights",
	Region:     RegionInsights,
	FailPrefix: "Failed to get insights",
	Validate: func(p Params) error {
		return required(p, "insightsCustomerId", RegionInsights, "Please enter a customer ID")
	},
	Run: func(ctx context.Context, env Env, p Params) (*Outcome, error) {
		path := "/insights/customer/" + url.PathEscape(p.Text("insightsCustomerId"))
		data, err := env.Backend.GetJSON(ctx, path, nil)
		if err != nil {
			return nil, err
		}
		out := &Outcome{}
		out.text(RegionInsights, data)
		return out, nil
	},
})

var Topic = register(&Action{
	Name:       "topic",
	Title:      "Topic analysis",
	Region:     RegionTopic,
	FailPrefix: "Topic analysis failed",
	Validate: func(p Params) error {
		return required(p, "topicTexts", RegionTopic, "Please enter texts for analysis")
	},
	Run: func(ctx context.Context, env Env, p Params) (*Outcome, error) {
		data, err := env.Backend.PostJSON(ctx, "/analysis/topic", map[string][]string{"texts": Lines(p.Text("topicTexts"))})
		if err != nil {
			return nil, err
		}
		out := &Outcome{}
		out.text(RegionTopic, data)
		return out, nil
	},
})

// Lines splits s on newlines and drops blank lines. Kept lines are not trimmed.
func Lines(s string) []string {
	out := []string{}
	for _, l := range strings.Split(s, "\n") {
		l = strings.TrimSuffix(l, "\r")
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}
