package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const incidentsCSV = "\ufeffincident_id,state,participant_age,participant_gender\n" +
	"1,Ohio,0::34||1::29,0::Male||1::Female\n" +
	"2,Texas,0::41,\n" +
	",,,\n" +
	"3,\"New York\",,\n"

func TestParseCSV(t *testing.T) {
	table, err := parseCSV("incidents.csv", strings.NewReader(incidentsCSV))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"incident_id", "state", "participant_age", "participant_gender"}, table.Columns); diff != "" {
		t.Fatalf("columns (-want +got):\n%s", diff)
	}
	if len(table.Rows) != 3 {
		t.Fatalf("blank record should be skipped, rows=%d", len(table.Rows))
	}
	if table.Rows[1]["participant_gender"] != nil {
		t.Fatal("empty cell should be nil")
	}
	if deref(table.Rows[2]["state"]) != "New York" {
		t.Fatalf("state=%q", deref(table.Rows[2]["state"]))
	}
}

func TestParseCSVDuplicateHeaders(t *testing.T) {
	table, err := parseCSV("dup.csv", strings.NewReader("id,Age,age,\n1,2,3,4\n"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"id", "age", "age_2", "column_4"}, table.Columns); diff != "" {
		t.Fatalf("columns (-want +got):\n%s", diff)
	}
}

func TestParseCSVEmpty(t *testing.T) {
	if _, err := parseCSV("empty.csv", strings.NewReader("")); !errors.Is(err, ErrNoTable) {
		t.Fatalf("expected ErrNoTable, got %v", err)
	}
}

func TestParseHTMLTable(t *testing.T) {
	html := `<html><body>
<table><tr><td>layout only</td></tr></table>
<table>
  <tr><th>Incident ID</th><th>Gun Type</th><th>Gun Stolen</th></tr>
  <tr><td>7</td><td>0::Handgun||1::Rifle</td><td>0::Stolen</td></tr>
</table></body></html>`
	table, err := parseHTMLTable("page.html", html)
	if err != nil {
		t.Fatal(err)
	}
	if len(table.Rows) != 1 || deref(table.Rows[0]["gun_type"]) != "0::Handgun||1::Rifle" {
		t.Fatalf("unexpected table: %+v", table)
	}
}

func TestParseEML(t *testing.T) {
	raw := strings.Join([]string{
		"From: analyst@example.com",
		"To: team@example.com",
		"Subject: incidents export",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="BOUNDARY"`,
		"",
		"--BOUNDARY",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Weekly export attached.",
		"--BOUNDARY",
		`Content-Type: text/csv; name="incidents.csv"`,
		`Content-Disposition: attachment; filename="incidents.csv"`,
		"",
		"incident_id,gun_type",
		"1,0::Handgun",
		"--BOUNDARY--",
		"",
	}, "\r\n")

	table, err := parseEML("export.eml", []byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if len(table.Rows) != 1 || deref(table.Rows[0]["gun_type"]) != "0::Handgun" {
		t.Fatalf("unexpected table: %+v", table)
	}
}

func TestExtractTableFromInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "incidents.csv")
	if err := os.WriteFile(path, []byte(incidentsCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	table, err := ExtractTableFromInput(InputTypeFromPath(path), path)
	if err != nil {
		t.Fatal(err)
	}
	if table.Name != "incidents.csv" || len(table.Rows) != 3 {
		t.Fatalf("name=%s rows=%d", table.Name, len(table.Rows))
	}

	if _, err := ExtractTableFromInput("parquet", path); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}
