package pipeline

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"dashnorm/internal"
)

func sp(v string) *string { return &v }

func mkTable(columns []string, rows ...internal.Row) *internal.Table {
	return &internal.Table{Name: "test", Columns: columns, Rows: rows}
}

type flatRecord struct {
	Parent int
	Index  string
	Values map[string]string
}

// flatten renders records with "<nil>" for missing values so diffs stay readable.
func flatten(table internal.SubRecordTable) []flatRecord {
	out := make([]flatRecord, 0, len(table.Records))
	for _, rec := range table.Records {
		values := map[string]string{}
		for _, f := range append(append([]string{}, table.IdentityFields...), table.AttributeFields...) {
			if v := rec.Value(f); v != nil {
				values[f] = *v
			} else {
				values[f] = "<nil>"
			}
		}
		out = append(out, flatRecord{Parent: rec.ParentRow, Index: rec.Index, Values: values})
	}
	return out
}

func TestNormalizeScenarios(t *testing.T) {
	cols := []string{"id", "age", "gender", "type"}
	cases := []struct {
		name string
		rows []internal.Row
		want []flatRecord
	}{
		{
			name: "two participants joined by index",
			rows: []internal.Row{{"id": sp("1"), "age": sp("0::34||1::29"), "gender": sp("0::Male||1::Female")}},
			want: []flatRecord{
				{Parent: 0, Index: "0", Values: map[string]string{"id": "1", "age": "34", "gender": "Male", "type": "<nil>"}},
				{Parent: 0, Index: "1", Values: map[string]string{"id": "1", "age": "29", "gender": "Female", "type": "<nil>"}},
			},
		},
		{
			name: "empty field leaves attribute missing",
			rows: []internal.Row{{"id": sp("2"), "age": sp("0::41"), "gender": sp("")}},
			want: []flatRecord{
				{Parent: 0, Index: "0", Values: map[string]string{"id": "2", "age": "41", "gender": "<nil>", "type": "<nil>"}},
			},
		},
		{
			name: "malformed segment dropped",
			rows: []internal.Row{{"id": sp("3"), "type": sp("0::Suspect||1::garbage_no_sep")}},
			want: []flatRecord{
				{Parent: 0, Index: "0", Values: map[string]string{"id": "3", "age": "<nil>", "gender": "<nil>", "type": "Suspect"}},
			},
		},
		{
			name: "all packed fields empty",
			rows: []internal.Row{{"id": sp("4"), "age": sp(""), "gender": nil}},
			want: []flatRecord{},
		},
		{
			name: "same index in two parents stays separate",
			rows: []internal.Row{
				{"id": sp("5"), "age": sp("0::20")},
				{"id": sp("6"), "age": sp("0::30")},
			},
			want: []flatRecord{
				{Parent: 0, Index: "0", Values: map[string]string{"id": "5", "age": "20", "gender": "<nil>", "type": "<nil>"}},
				{Parent: 1, Index: "0", Values: map[string]string{"id": "6", "age": "30", "gender": "<nil>", "type": "<nil>"}},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, _, err := Normalize(mkTable(cols, tc.rows...), []string{"age", "gender", "type"}, []string{"id"}, Options{})
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.want, flatten(out)); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalizeIndexUnionAndOrder(t *testing.T) {
	table := mkTable([]string{"id", "age", "gender"},
		internal.Row{"id": sp("1"), "age": sp("10::50||2::33||x::9"), "gender": sp("2::Male||7::Female")},
	)
	out, stats, err := Normalize(table, []string{"age", "gender"}, []string{"id"}, Options{})
	if err != nil {
		t.Fatal(err)
	}

	var indices []string
	for _, rec := range out.Records {
		indices = append(indices, rec.Index)
	}
	if diff := cmp.Diff([]string{"2", "7", "10", "x"}, indices); diff != "" {
		t.Fatalf("index order (-want +got):\n%s", diff)
	}
	if stats.PartialSubRecords != 3 {
		t.Fatalf("partial=%d", stats.PartialSubRecords)
	}
	if stats.ContributingParents != 1 || stats.SubRecords != 4 {
		t.Fatalf("stats=%+v", stats)
	}
}

func TestNormalizeCompleteness(t *testing.T) {
	table := mkTable([]string{"id", "age", "gender"},
		internal.Row{"id": sp("1"), "age": sp("0::34||1::29||bad"), "gender": sp("||1::Female||")},
		internal.Row{"id": sp("2"), "age": sp("3::18"), "gender": sp("3::Male")},
	)
	out, stats, err := Normalize(table, []string{"age", "gender"}, []string{"id"}, Options{})
	if err != nil {
		t.Fatal(err)
	}

	for rowNo, row := range table.Rows {
		for _, field := range []string{"age", "gender"} {
			for _, e := range DecodePacked(*row[field], DefaultDelimiters).Entries {
				matches := 0
				for _, rec := range out.Records {
					if rec.ParentRow == rowNo && rec.Index == e.Index {
						matches++
						if v := rec.Attributes[field]; v == nil || *v != e.Value {
							t.Fatalf("row %d field %s index %s: got %v want %q", rowNo, field, e.Index, v, e.Value)
						}
					}
				}
				if matches != 1 {
					t.Fatalf("row %d index %s appears %d times", rowNo, e.Index, matches)
				}
			}
		}
	}
	if stats.MalformedSegments != 1 {
		t.Fatalf("malformed=%d", stats.MalformedSegments)
	}
	if stats.Segments != 6 {
		t.Fatalf("segments=%d", stats.Segments)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	table := mkTable([]string{"id", "state", "age", "gender"},
		internal.Row{"id": sp("1"), "state": sp("Ohio"), "age": sp("1::20||0::30"), "gender": sp("0::Male")},
		internal.Row{"id": sp("2"), "state": nil, "age": sp("0::41")},
	)
	first, _, err := Normalize(table, []string{"age", "gender"}, []string{"id", "state"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := Normalize(table, []string{"age", "gender"}, []string{"id", "state"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("runs differ (-first +second):\n%s", diff)
	}
	if first.Records[2].Identity["state"] != nil {
		t.Fatal("missing identity value should stay nil")
	}
}

func TestNormalizeDoesNotAliasInput(t *testing.T) {
	state := "Ohio"
	table := mkTable([]string{"id", "state", "age"},
		internal.Row{"id": sp("1"), "state": &state, "age": sp("0::20")},
	)
	out, _, err := Normalize(table, []string{"age"}, []string{"id", "state"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	*out.Records[0].Identity["state"] = "Texas"
	if state != "Ohio" {
		t.Fatal("sub-record shares storage with the parent row")
	}
}

func TestNormalizeDuplicateIndexLastWins(t *testing.T) {
	table := mkTable([]string{"id", "gun_type"},
		internal.Row{"id": sp("1"), "gun_type": sp("0::Handgun||0::Rifle")},
	)
	out, stats, err := Normalize(table, []string{"gun_type"}, []string{"id"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Records) != 1 || *out.Records[0].Attributes["gun_type"] != "Rifle" {
		t.Fatalf("unexpected records: %+v", flatten(out))
	}
	if stats.DuplicateIndices != 1 {
		t.Fatalf("duplicates=%d", stats.DuplicateIndices)
	}
}

func TestNormalizeSplitsOnFirstSecondaryDelimiter(t *testing.T) {
	table := mkTable([]string{"id", "relationship"},
		internal.Row{"id": sp("1"), "relationship": sp("0::Family::Parent||::orphan")},
	)
	out, _, err := Normalize(table, []string{"relationship"}, []string{"id"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	got := flatten(out)
	want := []flatRecord{
		{Parent: 0, Index: "0", Values: map[string]string{"id": "1", "relationship": "Family::Parent"}},
		{Parent: 0, Index: "", Values: map[string]string{"id": "1", "relationship": "orphan"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeStrict(t *testing.T) {
	table := mkTable([]string{"id", "type"},
		internal.Row{"id": sp("3"), "type": sp("0::Suspect||1::garbage_no_sep")},
	)

	_, stats, err := Normalize(table, []string{"type"}, []string{"id"}, Options{Strict: true})
	if !errors.Is(err, ErrMalformedSegment) {
		t.Fatalf("expected ErrMalformedSegment, got %v", err)
	}
	if stats.MalformedSegments != 1 {
		t.Fatalf("stats=%+v", stats)
	}

	if _, _, err := Normalize(table, []string{"type"}, []string{"id"}, Options{}); err != nil {
		t.Fatalf("permissive mode must not fail: %v", err)
	}
}

func TestNormalizeCustomDelimiters(t *testing.T) {
	table := mkTable([]string{"id", "age"},
		internal.Row{"id": sp("1"), "age": sp("0=34;1=29")},
	)
	out, _, err := Normalize(table, []string{"age"}, []string{"id"}, Options{Delimiters: Delimiters{Primary: ";", Secondary: "="}})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Records) != 2 {
		t.Fatalf("len=%d", len(out.Records))
	}
}

func TestNormalizeInvalidArguments(t *testing.T) {
	table := mkTable([]string{"id", "age", "gender"})
	cases := []struct {
		name     string
		table    *internal.Table
		packed   []string
		identity []string
		opts     Options
	}{
		{name: "nil table", table: nil, packed: []string{"age"}},
		{name: "no packed fields", table: table, packed: nil, identity: []string{"id"}},
		{name: "unknown packed field", table: table, packed: []string{"weight"}},
		{name: "unknown identity field", table: table, packed: []string{"age"}, identity: []string{"state"}},
		{name: "duplicate field", table: table, packed: []string{"age", "age"}},
		{name: "identity and packed overlap", table: table, packed: []string{"age"}, identity: []string{"age"}},
		{name: "equal delimiters", table: table, packed: []string{"age"}, opts: Options{Delimiters: Delimiters{Primary: "|", Secondary: "|"}}},
		{name: "half-set delimiters", table: table, packed: []string{"age"}, opts: Options{Delimiters: Delimiters{Primary: "|"}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Normalize(tc.table, tc.packed, tc.identity, tc.opts)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}

func TestNormalizeEmptyTable(t *testing.T) {
	out, stats, err := Normalize(mkTable([]string{"id", "age"}), []string{"age"}, []string{"id"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if out.Records == nil || len(out.Records) != 0 {
		t.Fatalf("expected empty non-nil records, got %#v", out.Records)
	}
	if stats.ParentRows != 0 {
		t.Fatalf("stats=%+v", stats)
	}
}

func TestDecodePacked(t *testing.T) {
	res := DecodePacked("||0::a||||1::b||junk||", DefaultDelimiters)
	want := []Entry{{Index: "0", Value: "a"}, {Index: "1", Value: "b"}}
	if diff := cmp.Diff(want, res.Entries); diff != "" {
		t.Fatalf("entries (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"junk"}, res.Malformed); diff != "" {
		t.Fatalf("malformed (-want +got):\n%s", diff)
	}
	if res.Segments != 3 {
		t.Fatalf("segments=%d", res.Segments)
	}
}
