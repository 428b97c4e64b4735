package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
)

const missingLabel = "(missing)"

// RenderCounts writes counts as an aligned text table, one group per line.
func RenderCounts(w io.Writer, fields []string, counts []Count) error {
	rows := make([][]string, 0, len(counts)+1)
	header := append(append([]string{}, fields...), "count")
	rows = append(rows, header)
	for _, c := range counts {
		row := make([]string, 0, len(c.Keys)+1)
		for _, k := range c.Keys {
			if k == nil {
				row = append(row, missingLabel)
				continue
			}
			row = append(row, *k)
		}
		row = append(row, strconv.Itoa(c.N))
		rows = append(rows, row)
	}

	widths := make([]int, len(header))
	for _, row := range rows {
		for i, cell := range row {
			if width := runewidth.StringWidth(cell); width > widths[i] {
				widths[i] = width
			}
		}
	}

	var sb strings.Builder
	for r, row := range rows {
		for i, cell := range row {
			if i > 0 {
				sb.WriteString("  ")
			}
			if i == len(row)-1 {
				// counts are right aligned
				sb.WriteString(strings.Repeat(" ", widths[i]-runewidth.StringWidth(cell)))
				sb.WriteString(cell)
				continue
			}
			sb.WriteString(runewidth.FillRight(cell, widths[i]))
		}
		sb.WriteString("\n")
		if r == 0 {
			total := 0
			for _, width := range widths {
				total += width
			}
			sb.WriteString(strings.Repeat("-", total+2*(len(widths)-1)))
			sb.WriteString("\n")
		}
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
