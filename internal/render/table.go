package render

import (
	"fmt"
	"sort"

	"github.com/Roelanb/churnboard/internal/payload"
)

// DefaultMaxRows caps tables when callers do not pass their own limit.
const DefaultMaxRows = 100

// NoDataText is shown in place of an empty table.
const NoDataText = "No data available"

// Table is a rendered-ready tabular view of backend rows.
type Table struct {
	Columns []string
	Rows    [][]string
	// Total is the number of rows the backend returned, before truncation.
	Total int
	// Placeholder replaces the table when there is nothing to show.
	Placeholder string
}

// BuildTable turns rows into a table. Columns come from the first row's keys in
// insertion order; later rows missing a column get an empty cell. At most
// maxRows rows are kept (maxRows <= 0 means DefaultMaxRows).
func BuildTable(rows []any, maxRows int) *Table {
	if len(rows) == 0 {
		return &Table{Placeholder: NoDataText}
	}
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	limited := rows
	if len(limited) > maxRows {
		limited = limited[:maxRows]
	}

	cols := columnsOf(limited[0])
	t := &Table{
		Columns: cols,
		Rows:    make([][]string, 0, len(limited)),
		Total:   len(rows),
	}
	for _, r := range limited {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = cellOf(r, c)
		}
		t.Rows = append(t.Rows, cells)
	}
	return t
}

// Placeholder returns an empty table that only carries a message, e.g.
// "No similar interactions found".
func Placeholder(text string) *Table {
	return &Table{Placeholder: text}
}

// Empty reports whether the table renders as a placeholder.
func (t *Table) Empty() bool {
	return t == nil || len(t.Rows) == 0
}

// Truncated reports whether rows were dropped by the row cap.
func (t *Table) Truncated() bool {
	return t != nil && t.Total > len(t.Rows)
}

// Notice is the truncation line, or "" when nothing was dropped.
func (t *Table) Notice() string {
	if !t.Truncated() {
		return ""
	}
	return fmt.Sprintf("Showing %d of %d rows", len(t.Rows), t.Total)
}

// PlaceholderText returns the placeholder, defaulting to NoDataText.
func (t *Table) PlaceholderText() string {
	if t == nil || t.Placeholder == "" {
		return NoDataText
	}
	return t.Placeholder
}

func columnsOf(row any) []string {
	switch r := row.(type) {
	case *payload.Object:
		return r.Keys()
	case map[string]any:
		// plain maps have no order to preserve
		keys := make([]string, 0, len(r))
		for k := range r {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys
	default:
		return []string{"value"}
	}
}

func cellOf(row any, col string) string {
	switch r := row.(type) {
	case *payload.Object, map[string]any:
		return payload.String(payload.Field(r, col))
	default:
		if col == "value" {
			return payload.String(r)
		}
		return ""
	}
}
