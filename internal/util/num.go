package util

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	integerPattern = regexp.MustCompile(`^[+-]?\d+(?:\.0+)?$`)
	yearPattern    = regexp.MustCompile(`^\d{4}$`)
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
	"02.01.2006",
}

// ParseInteger accepts "34", " 34 " and float-formatted "34.0"; anything else is nil.
func ParseInteger(input string) *int {
	s := strings.TrimSpace(strings.ReplaceAll(input, " ", ""))
	if !integerPattern.MatchString(s) {
		return nil
	}
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		s = s[:dot]
	}
	parsed, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &parsed
}

// ParseYear extracts the calendar year from a date cell or a bare year.
func ParseYear(input string) *int {
	s := strings.TrimSpace(input)
	if s == "" {
		return nil
	}
	if yearPattern.MatchString(s) {
		return ParseInteger(s)
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			y := ts.Year()
			return &y
		}
	}
	return nil
}
