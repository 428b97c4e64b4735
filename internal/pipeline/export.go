package pipeline

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"

	"dashnorm/internal"
	"dashnorm/internal/util"
)

// reservedExportColumns lead every exported row; preset fields may not reuse them.
var reservedExportColumns = []string{"parent_row", "index"}

// ExportHeaders is the column order of exported sub-record tables.
func ExportHeaders(table internal.SubRecordTable) []string {
	headers := make([]string, 0, len(table.IdentityFields)+len(table.AttributeFields)+2)
	headers = append(headers, reservedExportColumns...)
	headers = append(headers, table.IdentityFields...)
	headers = append(headers, table.AttributeFields...)
	return headers
}

func exportRow(table internal.SubRecordTable, rec internal.SubRecord) []any {
	row := make([]any, 0, len(table.IdentityFields)+len(table.AttributeFields)+2)
	row = append(row, rec.ParentRow, rec.Index)
	for _, f := range table.IdentityFields {
		row = append(row, util.Deref(rec.Identity[f]))
	}
	for _, f := range table.AttributeFields {
		row = append(row, util.Deref(rec.Attributes[f]))
	}
	return row
}

func ExportSubRecordsToXLSX(table internal.SubRecordTable, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	for i, h := range ExportHeaders(table) {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, rec := range table.Records {
		r := i + 2
		for c, value := range exportRow(table, rec) {
			cell, _ := excelize.CoordinatesToCellName(c+1, r)
			_ = f.SetCellValue(sheet, cell, value)
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func ExportSubRecordsToCSV(table internal.SubRecordTable, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeaders(table)); err != nil {
		return err
	}
	for _, rec := range table.Records {
		values := exportRow(table, rec)
		record := make([]string, len(values))
		for i, v := range values {
			switch tv := v.(type) {
			case int:
				record[i] = strconv.Itoa(tv)
			case string:
				record[i] = tv
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
