package pipeline

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	"github.com/xuri/excelize/v2"

	"dashnorm/internal"
	"dashnorm/internal/util"
)

var ErrNoTable = errors.New("no table found in input")

// buildTable turns a header row plus data rows into a Table. Header cells are
// normalized to snake_case keys; blank cells become nil.
func buildTable(name string, header []string, records [][]string) (*internal.Table, error) {
	columns := normalizeHeader(header)
	if len(columns) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrNoTable)
	}

	table := &internal.Table{Name: name, Columns: columns, Rows: make([]internal.Row, 0, len(records))}
	for _, record := range records {
		if isBlankRecord(record) {
			continue
		}
		row := make(internal.Row, len(columns))
		for i, col := range columns {
			if i >= len(record) || strings.TrimSpace(record[i]) == "" {
				row[col] = nil
				continue
			}
			row[col] = util.StringPtr(record[i])
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func normalizeHeader(header []string) []string {
	out := make([]string, 0, len(header))
	seen := map[string]int{}
	for i, h := range header {
		col := util.NormalizeColumnName(h)
		if col == "" {
			col = "column_" + strconv.Itoa(i+1)
		}
		seen[col]++
		if n := seen[col]; n > 1 {
			col = col + "_" + strconv.Itoa(n)
		}
		out = append(out, col)
	}
	return out
}

func isBlankRecord(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func parseCSV(name string, r io.Reader) (*internal.Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: %w", name, ErrNoTable)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: read header: %w", name, err)
	}
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: read rows: %w", name, err)
	}
	return buildTable(name, header, records)
}

func parseXLSX(name string, content []byte) (*internal.Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		start := 0
		for start < len(rows) && isBlankRecord(rows[start]) {
			start++
		}
		if start >= len(rows) {
			continue
		}
		return buildTable(name+"#"+sheet, rows[start], rows[start+1:])
	}
	return nil, fmt.Errorf("%s: %w", name, ErrNoTable)
}

func parseHTMLTable(name string, html string) (*internal.Table, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var table *internal.Table
	doc.Find("table").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		rows := sel.Find("tr")
		if rows.Length() < 2 {
			return true
		}
		header := []string{}
		rows.First().Find("th,td").Each(func(_ int, cell *goquery.Selection) {
			header = append(header, util.NormalizeSpaces(cell.Text()))
		})
		records := [][]string{}
		rows.Slice(1, rows.Length()).Each(func(_ int, row *goquery.Selection) {
			cells := []string{}
			row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, util.NormalizeSpaces(cell.Text()))
			})
			records = append(records, cells)
		})
		built, err := buildTable(name, header, records)
		if err != nil {
			return true
		}
		table = built
		return false
	})
	if table == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrNoTable)
	}
	return table, nil
}

// parseEML loads the first CSV or XLSX attachment of a saved email.
func parseEML(name string, raw []byte) (*internal.Table, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	for _, att := range env.Attachments {
		filename := strings.TrimSpace(att.FileName)
		lower := strings.ToLower(filename)
		switch {
		case strings.HasSuffix(lower, ".csv"):
			return parseCSV(name+"/"+filename, bytes.NewReader(att.Content))
		case strings.HasSuffix(lower, ".xlsx"):
			return parseXLSX(name+"/"+filename, att.Content)
		}
	}
	if env.HTML != "" {
		return parseHTMLTable(name, env.HTML)
	}
	return nil, fmt.Errorf("%s: %w", name, ErrNoTable)
}
