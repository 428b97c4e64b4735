package util

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	reSpaces     = regexp.MustCompile(`\s+`)
	reNonKeyChar = regexp.MustCompile(`[^a-z0-9_]+`)
	titleCaser   = cases.Title(language.Und)
)

// NormalizeSpaces collapses runs of whitespace and trims the result.
func NormalizeSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

// NormalizeColumnName turns a header cell into a snake_case column key,
// e.g. "Participant Age" -> "participant_age".
func NormalizeColumnName(input string) string {
	s := strings.ToLower(NormalizeSpaces(strings.TrimPrefix(input, "\ufeff")))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = reNonKeyChar.ReplaceAllString(s, "")
	return strings.Trim(s, "_")
}

// TitleCase matches the dashboards' str.title(): every word capitalised, the rest lower.
func TitleCase(input string) string {
	return titleCaser.String(strings.ToLower(input))
}

func ContainsAny(input string, separators []string) bool {
	for _, sep := range separators {
		if sep != "" && strings.Contains(input, sep) {
			return true
		}
	}
	return false
}

func StringPtr(v string) *string { return &v }

func Deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// NonEmpty reports whether v holds anything but whitespace.
func NonEmpty(v *string) bool {
	return v != nil && strings.TrimSpace(*v) != ""
}
