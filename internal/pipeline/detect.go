package pipeline

import (
	"regexp"
	"sort"
	"strings"

	"dashnorm/internal"
	"dashnorm/internal/util"
)

type ColumnGuess struct {
	Name   string
	Score  float64
	Packed bool
}

type DetectResult struct {
	IDColumn string
	Columns  []ColumnGuess
}

var (
	idProbes      = []string{"incident_id", "event_id", "record_id", "id", "uuid", "key"}
	packedSegment = regexp.MustCompile(`^[^:|]*::`)
)

const packedThreshold = 0.6

// DetectColumns samples up to sample rows and suggests which columns hold packed
// values and which one identifies a parent row. Only used to help pick a preset.
func DetectColumns(table *internal.Table, sample int) DetectResult {
	if sample <= 0 || sample > len(table.Rows) {
		sample = len(table.Rows)
	}
	rows := table.Rows[:sample]

	res := DetectResult{IDColumn: detectIDColumn(table.Columns, rows)}
	for _, col := range table.Columns {
		score := packedScore(col, rows)
		res.Columns = append(res.Columns, ColumnGuess{Name: col, Score: score, Packed: score >= packedThreshold})
	}
	sort.SliceStable(res.Columns, func(i, j int) bool {
		return res.Columns[i].Score > res.Columns[j].Score
	})
	return res
}

func packedScore(col string, rows []internal.Row) float64 {
	nonEmpty, hits := 0, 0
	for _, row := range rows {
		cell := row[col]
		if !util.NonEmpty(cell) {
			continue
		}
		nonEmpty++
		first, _, _ := strings.Cut(*cell, DefaultDelimiters.Primary)
		if packedSegment.MatchString(first) {
			hits++
		}
	}
	if nonEmpty == 0 {
		return 0
	}
	return float64(hits) / float64(nonEmpty)
}

// detectIDColumn prefers a probe-named column whose sampled values are unique,
// then any unique column whose name ends in "id".
func detectIDColumn(columns []string, rows []internal.Row) string {
	if idx := findHeaderIndex(columns, idProbes); idx >= 0 && isUniqueColumn(columns[idx], rows) {
		return columns[idx]
	}
	for _, col := range columns {
		if strings.HasSuffix(col, "id") && isUniqueColumn(col, rows) {
			return col
		}
	}
	return ""
}

func isUniqueColumn(col string, rows []internal.Row) bool {
	seen := map[string]struct{}{}
	for _, row := range rows {
		cell := row[col]
		if cell == nil {
			return false
		}
		if _, dup := seen[*cell]; dup {
			return false
		}
		seen[*cell] = struct{}{}
	}
	return len(seen) > 0
}

// findHeaderIndex returns the first column matching a probe, trying probes in order.
func findHeaderIndex(headers []string, probes []string) int {
	for _, probe := range probes {
		for i, h := range headers {
			if h == probe {
				return i
			}
		}
	}
	for i, h := range headers {
		for _, probe := range probes {
			if strings.Contains(h, probe) {
				return i
			}
		}
	}
	return -1
}
