package pipeline

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"dashnorm/internal"
)

type Options struct {
	Delimiters Delimiters
	// Strict turns malformed segments and repeated indices into ErrMalformedSegment.
	Strict bool
}

func (o Options) delimiters() Delimiters {
	if o.Delimiters.Primary == "" && o.Delimiters.Secondary == "" {
		return DefaultDelimiters
	}
	return o.Delimiters
}

// Normalize explodes the packed fields of every parent row into one sub-record per
// index token. Identity fields are copied down unchanged. Data-quality problems are
// counted in the returned stats and never fail the call unless opts.Strict is set.
func Normalize(table *internal.Table, packedFields, identityFields []string, opts Options) (internal.SubRecordTable, internal.NormalizeStats, error) {
	var stats internal.NormalizeStats
	delims := opts.delimiters()
	if err := validateNormalizeArgs(table, packedFields, identityFields, delims); err != nil {
		return internal.SubRecordTable{}, stats, err
	}

	out := internal.SubRecordTable{
		IdentityFields:  slices.Clone(identityFields),
		AttributeFields: slices.Clone(packedFields),
		Records:         []internal.SubRecord{},
	}
	var anomalies []error

	for rowNo, row := range table.Rows {
		stats.ParentRows++
		byField := make(map[string]map[string]string, len(packedFields))
		var indices []string
		seen := map[string]struct{}{}

		for _, field := range packedFields {
			cell := row[field]
			if cell == nil || *cell == "" {
				continue
			}
			decoded := DecodePacked(*cell, delims)
			stats.Segments += decoded.Segments
			stats.MalformedSegments += len(decoded.Malformed)
			if opts.Strict {
				for _, seg := range decoded.Malformed {
					anomalies = append(anomalies, fmt.Errorf("%w: row %d field %s: %q", ErrMalformedSegment, rowNo, field, seg))
				}
			}
			if len(decoded.Entries) == 0 {
				continue
			}

			values := make(map[string]string, len(decoded.Entries))
			for _, e := range decoded.Entries {
				if _, dup := values[e.Index]; dup {
					stats.DuplicateIndices++
					if opts.Strict {
						anomalies = append(anomalies, fmt.Errorf("%w: row %d field %s: index %q repeated", ErrMalformedSegment, rowNo, field, e.Index))
					}
				}
				values[e.Index] = e.Value
				if _, ok := seen[e.Index]; !ok {
					seen[e.Index] = struct{}{}
					indices = append(indices, e.Index)
				}
			}
			byField[field] = values
		}

		if len(indices) == 0 {
			continue
		}
		stats.ContributingParents++
		slices.SortFunc(indices, compareIndexTokens)

		for _, idx := range indices {
			rec := internal.SubRecord{
				ParentRow:  rowNo,
				Index:      idx,
				Identity:   make(map[string]*string, len(identityFields)),
				Attributes: make(map[string]*string, len(packedFields)),
			}
			for _, field := range identityFields {
				rec.Identity[field] = cloneValue(row[field])
			}
			partial := false
			for _, field := range packedFields {
				if v, ok := byField[field][idx]; ok {
					rec.Attributes[field] = &v
				} else {
					rec.Attributes[field] = nil
					partial = true
				}
			}
			if partial {
				stats.PartialSubRecords++
			}
			out.Records = append(out.Records, rec)
		}
	}
	stats.SubRecords = len(out.Records)

	if len(anomalies) > 0 {
		return internal.SubRecordTable{}, stats, errors.Join(anomalies...)
	}
	return out, stats, nil
}

func validateNormalizeArgs(table *internal.Table, packedFields, identityFields []string, delims Delimiters) error {
	if table == nil {
		return fmt.Errorf("%w: nil table", ErrInvalidArgument)
	}
	if len(packedFields) == 0 {
		return fmt.Errorf("%w: no packed fields requested", ErrInvalidArgument)
	}
	if err := delims.validate(); err != nil {
		return err
	}

	requested := map[string]string{}
	check := func(kind string, names []string) error {
		for _, name := range names {
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf("%w: empty %s field name", ErrInvalidArgument, kind)
			}
			if prev, ok := requested[name]; ok {
				return fmt.Errorf("%w: field %q requested as %s and %s", ErrInvalidArgument, name, prev, kind)
			}
			if !table.HasColumn(name) {
				return fmt.Errorf("%w: unknown %s field %q", ErrInvalidArgument, kind, name)
			}
			requested[name] = kind
		}
		return nil
	}
	if err := check("identity", identityFields); err != nil {
		return err
	}
	return check("packed", packedFields)
}

// compareIndexTokens orders integer tokens numerically ahead of any other token.
func compareIndexTokens(a, b string) int {
	ai, aErr := strconv.Atoi(a)
	bi, bErr := strconv.Atoi(b)
	switch {
	case aErr == nil && bErr == nil:
		if ai != bi {
			if ai < bi {
				return -1
			}
			return 1
		}
	case aErr == nil:
		return -1
	case bErr == nil:
		return 1
	}
	return strings.Compare(a, b)
}

func cloneValue(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
