package pipeline

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"
)

func mkXLSX(rows [][]any) []byte {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	buf := bytes.NewBuffer(nil)
	_, _ = f.WriteTo(buf)
	return buf.Bytes()
}

func TestParseXLSX(t *testing.T) {
	blob := mkXLSX([][]any{
		{},
		{"Incident ID", "State", "Participant Age"},
		{461105, "Pennsylvania", "0::20"},
		{460726, "California", ""},
	})
	table, err := parseXLSX("incidents.xlsx", blob)
	if err != nil {
		t.Fatal(err)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("len=%d", len(table.Rows))
	}
	if !table.HasColumn("participant_age") {
		t.Fatalf("columns=%v", table.Columns)
	}
	if got := deref(table.Rows[0]["incident_id"]); got != "461105" {
		t.Fatalf("incident_id=%q", got)
	}
	if table.Rows[1]["participant_age"] != nil {
		t.Fatal("blank cell should be nil")
	}
}

func TestParseXLSXEmpty(t *testing.T) {
	if _, err := parseXLSX("empty.xlsx", mkXLSX(nil)); err == nil {
		t.Fatal("expected error for workbook without rows")
	}
}
