package actions

import (
	"context"
	"net/url"
	"strconv"

	"github.com/Roelanb/churnboard/internal/payload"
	"github.com/Roelanb/churnboard/internal/render"
)

const (
	RegionVector = "vector-results"
	RegionSQL    = "sql-result"
	RegionRows   = "table-result"
)

var Search = register(&Action{
	Name:        "search",
	Title:       "Similar interaction search",
	Region:      RegionVector,
	FailPrefix:  "Search failed",
	ClearOnFail: []string{RegionVector},
	Validate: func(p Params) error {
		return required(p, "searchQuery", RegionVector, "Please enter a search query")
	},
	Run: func(ctx context.Context, env Env, p Params) (*Outcome, error) {
		q := url.Values{}
		q.Set("q", p.Text("searchQuery"))
		q.Set("k", strconv.Itoa(p.Int("searchLimit", 5)))
		data, err := env.Backend.GetJSON(ctx, "/query/vector-search", q)
		if err != nil {
			return nil, err
		}

		results := payload.List(payload.Field(data, "results"))
		out := &Outcome{}
		if len(results) == 0 {
			out.table(RegionVector, render.Placeholder("No similar interactions found"))
			return out, nil
		}
		rows := make([]any, 0, len(results))
		for _, r := range results {
			row := payload.NewObject()
			row.Set("Customer ID", payload.StringOr(payload.Field(r, "customer_id"), "N/A"))
			row.Set("Interaction", payload.StringOr(payload.Field(r, "text"), "N/A"))
			row.Set("Source", payload.StringOr(payload.Field(r, "source"), "N/A"))
			row.Set("Title", payload.StringOr(payload.Field(r, "title"), "N/A"))
			rows = append(rows, row)
		}
		out.table(RegionVector, render.BuildTable(rows, 0))
		out.notify(RegionVector, render.Success("Found %d similar interactions", len(results)))
		return out, nil
	},
})

// NLQuery translates a question to SQL and then executes it. The two calls
// are sequential; a failing execute still leaves the generated SQL shown.
var NLQuery = register(&Action{
	Name:        "nlq",
	Title:       "Natural language query",
	Region:      RegionSQL,
	FailPrefix:  "Query failed",
	ClearOnFail: []string{RegionRows},
	Validate: func(p Params) error {
		return required(p, "nlq", RegionSQL, "Please enter a natural language query")
	},
	Run: func(ctx context.Context, env Env, p Params) (*Outcome, error) {
		body := map[string]string{"nl_query": p.Text("nlq")}
		sql, err := env.Backend.PostJSON(ctx, "/query/sql", body)
		if err != nil {
			return nil, err
		}
		out := &Outcome{}
		out.text(RegionSQL, sql)

		res, err := env.Backend.PostJSON(ctx, "/query/execute", body)
		if err != nil {
			return out, err
		}
		out.table(RegionRows, render.BuildTable(payload.ListOr(res, "rows"), 0))
		return out, nil
	},
})
