package actions

import (
	"context"

	"github.com/dustin/go-humanize"

	"github.com/Roelanb/churnboard/internal/payload"
	"github.com/Roelanb/churnboard/internal/render"
)

const (
	RegionExplore = "explore-result"

	exploreMaxRows = 50
	// ExportFilename is the name the CSV export is saved under.
	ExportFilename = "customer_data.csv"
)

var filterFields = [][2]string{
	{"filterGender", "gender"},
	{"filterContract", "contract"},
	{"filterChurn", "churn"},
}

var Explore = register(&Action{
	Name:        "explore",
	Title:       "Explore customers",
	Region:      RegionExplore,
	FailPrefix:  "Error",
	ClearOnFail: []string{RegionExplore},
	Run: func(ctx context.Context, env Env, p Params) (*Outcome, error) {
		q := p.Query(append(filterFields, [2]string{"exploreLimit", "limit"})...)
		data, err := env.Backend.GetJSON(ctx, "/ingestion/customers/explore", q)
		if err != nil {
			return nil, err
		}
		rows := payload.ListOr(data, "customers")
		out := &Outcome{}
		out.table(RegionExplore, render.BuildTable(rows, exploreMaxRows))
		out.notify(RegionExplore, render.Success("Found %d customers", len(rows)))
		return out, nil
	},
})

var Export = register(&Action{
	Name:       "export",
	Title:      "Export customers as CSV",
	Region:     RegionExplore,
	FailPrefix: "Export failed",
	Run: func(ctx context.Context, env Env, p Params) (*Outcome, error) {
		blob, err := env.Backend.Download(ctx, "/ingestion/customers/export", p.Query(filterFields...))
		if err != nil {
			return nil, err
		}
		ct := blob.ContentType
		if ct == "" {
			ct = "text/csv"
		}
		out := &Outcome{Download: &Download{Filename: ExportFilename, ContentType: ct, Data: blob.Data}}
		out.notify(RegionExplore, render.Success("Export ready: %s (%s)", ExportFilename, humanize.Bytes(uint64(len(blob.Data)))))
		return out, nil
	},
})
