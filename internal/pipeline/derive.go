package pipeline

import (
	"maps"
	"slices"
	"strconv"

	"dashnorm/internal"
	"dashnorm/internal/util"
)

// WithYear returns a copy of table with a year column parsed from a date column.
// The input is returned unchanged when the target column already exists or the
// source column is missing.
func WithYear(table *internal.Table, from, to string) *internal.Table {
	if table.HasColumn(to) || !table.HasColumn(from) {
		return table
	}
	out := &internal.Table{
		Name:    table.Name,
		Columns: append(slices.Clone(table.Columns), to),
		Rows:    make([]internal.Row, len(table.Rows)),
	}
	for i, row := range table.Rows {
		next := maps.Clone(row)
		if next == nil {
			next = internal.Row{}
		}
		next[to] = nil
		if cell := row[from]; cell != nil {
			if y := util.ParseYear(*cell); y != nil {
				next[to] = util.StringPtr(strconv.Itoa(*y))
			}
		}
		out.Rows[i] = next
	}
	return out
}
