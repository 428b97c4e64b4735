package pipeline

import (
	"strconv"
	"strings"

	"dashnorm/internal"
	"dashnorm/internal/util"
)

type CleanKind string

const (
	CleanRaw      CleanKind = "raw"
	CleanCategory CleanKind = "category"
	CleanInteger  CleanKind = "integer"
)

// ListSeparators mark a category value that packs several answers into one cell.
var ListSeparators = []string{","}

// CleanCategoryValue trims and title-cases a categorical value so it compares
// equal across rows. A value carrying a list separator ("Male, Female") is not
// guessed at: it becomes missing, as does a blank value.
func CleanCategoryValue(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" || util.ContainsAny(s, ListSeparators) {
		return nil
	}
	s = util.TitleCase(s)
	return &s
}

// CleanIntegerValue keeps only values that parse as an integer, in canonical form.
func CleanIntegerValue(v *string) *string {
	if v == nil {
		return nil
	}
	n := util.ParseInteger(*v)
	if n == nil {
		return nil
	}
	s := strconv.Itoa(*n)
	return &s
}

// FieldCleanup is the post-processing applied to one attribute column.
type FieldCleanup struct {
	Kind    CleanKind
	Replace map[string]string
}

// Apply maps the trimmed raw value through Replace first, then cleans it by Kind.
func (c FieldCleanup) Apply(v *string) *string {
	if v != nil && len(c.Replace) > 0 {
		if repl, ok := c.Replace[strings.TrimSpace(*v)]; ok {
			v = &repl
		}
	}
	switch c.Kind {
	case CleanCategory:
		return CleanCategoryValue(v)
	case CleanInteger:
		return CleanIntegerValue(v)
	}
	return v
}

// CleanSubRecords applies per-field cleanup in place. Fields without a rule are left raw.
func CleanSubRecords(table *internal.SubRecordTable, rules map[string]FieldCleanup) {
	if len(rules) == 0 {
		return
	}
	for i := range table.Records {
		attrs := table.Records[i].Attributes
		for field, rule := range rules {
			if v, ok := attrs[field]; ok {
				attrs[field] = rule.Apply(v)
			}
		}
	}
}

// RenameAttributes rewrites attribute keys, e.g. participant_gender -> gender.
func RenameAttributes(table *internal.SubRecordTable, names map[string]string) {
	if len(names) == 0 {
		return
	}
	for i, field := range table.AttributeFields {
		if to, ok := names[field]; ok && to != "" {
			table.AttributeFields[i] = to
		}
	}
	for i := range table.Records {
		attrs := table.Records[i].Attributes
		renamed := make(map[string]*string, len(attrs))
		for field, v := range attrs {
			if to, ok := names[field]; ok && to != "" {
				field = to
			}
			renamed[field] = v
		}
		table.Records[i].Attributes = renamed
	}
}
