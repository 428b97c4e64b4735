package report

import (
	"dashnorm/internal"
)

// Index groups sub-records for the dashboard lookups. Positions point into
// the Records slice of the table it was built from.
type Index struct {
	table      internal.SubRecordTable
	ByParent   map[int][]int
	ByValue    map[string]map[string][]int
	ParentRows []int
}

func BuildIndex(table internal.SubRecordTable) *Index {
	idx := &Index{
		table:    table,
		ByParent: map[int][]int{},
		ByValue:  map[string]map[string][]int{},
	}

	fields := make([]string, 0, len(table.IdentityFields)+len(table.AttributeFields))
	fields = append(fields, table.IdentityFields...)
	fields = append(fields, table.AttributeFields...)
	for _, f := range fields {
		idx.ByValue[f] = map[string][]int{}
	}

	for pos, rec := range table.Records {
		if _, seen := idx.ByParent[rec.ParentRow]; !seen {
			idx.ParentRows = append(idx.ParentRows, rec.ParentRow)
		}
		idx.ByParent[rec.ParentRow] = append(idx.ByParent[rec.ParentRow], pos)

		for _, f := range fields {
			v := rec.Value(f)
			if v == nil {
				continue
			}
			idx.ByValue[f][*v] = append(idx.ByValue[f][*v], pos)
		}
	}
	return idx
}

// Parent returns the sub-records derived from one parent row, in table order.
func (idx *Index) Parent(parentRow int) []internal.SubRecord {
	return idx.records(idx.ByParent[parentRow])
}

// Lookup returns the sub-records whose field equals value.
func (idx *Index) Lookup(field, value string) []internal.SubRecord {
	return idx.records(idx.ByValue[field][value])
}

func (idx *Index) records(positions []int) []internal.SubRecord {
	out := make([]internal.SubRecord, 0, len(positions))
	for _, p := range positions {
		out = append(out, idx.table.Records[p])
	}
	return out
}
