package report

import (
	"sort"

	"dashnorm/internal"
)

// Criteria maps a field to its accepted values. A field with no values is
// unconstrained.
type Criteria map[string][]string

// Filter keeps the records matching every constrained field. A missing value
// never matches.
func Filter(table internal.SubRecordTable, criteria Criteria) internal.SubRecordTable {
	accept := make(map[string]map[string]struct{}, len(criteria))
	for field, values := range criteria {
		if len(values) == 0 {
			continue
		}
		set := make(map[string]struct{}, len(values))
		for _, v := range values {
			set[v] = struct{}{}
		}
		accept[field] = set
	}

	out := internal.SubRecordTable{
		IdentityFields:  table.IdentityFields,
		AttributeFields: table.AttributeFields,
		Records:         []internal.SubRecord{},
	}
	for _, rec := range table.Records {
		if matches(rec, accept) {
			out.Records = append(out.Records, rec)
		}
	}
	return out
}

func matches(rec internal.SubRecord, accept map[string]map[string]struct{}) bool {
	for field, set := range accept {
		v := rec.Value(field)
		if v == nil {
			return false
		}
		if _, ok := set[*v]; !ok {
			return false
		}
	}
	return true
}

// DistinctValues returns the sorted non-missing values of field.
func DistinctValues(table internal.SubRecordTable, field string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, rec := range table.Records {
		v := rec.Value(field)
		if v == nil {
			continue
		}
		if _, dup := seen[*v]; dup {
			continue
		}
		seen[*v] = struct{}{}
		out = append(out, *v)
	}
	sort.Strings(out)
	return out
}

// Count is one group of CountBy. A nil key is the missing group.
type Count struct {
	Keys []*string
	N    int
}

// CountBy groups records by the given fields. Groups are ordered by count,
// largest first, then by keys with missing after any present value.
func CountBy(table internal.SubRecordTable, fields ...string) []Count {
	groups := map[string]int{}
	var out []Count
	for _, rec := range table.Records {
		keys := make([]*string, len(fields))
		for i, f := range fields {
			keys[i] = rec.Value(f)
		}
		id := groupID(keys)
		if pos, ok := groups[id]; ok {
			out[pos].N++
			continue
		}
		groups[id] = len(out)
		out = append(out, Count{Keys: keys, N: 1})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].N != out[j].N {
			return out[i].N > out[j].N
		}
		return compareKeys(out[i].Keys, out[j].Keys) < 0
	})
	return out
}

func groupID(keys []*string) string {
	var b []byte
	for _, k := range keys {
		if k == nil {
			b = append(b, 0)
			continue
		}
		b = append(b, 1)
		b = append(b, *k...)
		b = append(b, 0)
	}
	return string(b)
}

func compareKeys(a, b []*string) int {
	for i := range a {
		switch {
		case a[i] == nil && b[i] == nil:
			continue
		case a[i] == nil:
			return 1
		case b[i] == nil:
			return -1
		case *a[i] < *b[i]:
			return -1
		case *a[i] > *b[i]:
			return 1
		}
	}
	return 0
}

// ParentIDs returns the distinct values of idField in first-seen order, for
// cross-filtering the parent table by a sub-record selection.
func ParentIDs(table internal.SubRecordTable, idField string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, rec := range table.Records {
		v := rec.Value(idField)
		if v == nil {
			continue
		}
		if _, dup := seen[*v]; dup {
			continue
		}
		seen[*v] = struct{}{}
		out = append(out, *v)
	}
	return out
}
