package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidArgument marks caller configuration bugs: unknown fields, bad delimiters, no table.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrMalformedSegment is only returned in strict mode.
	ErrMalformedSegment = errors.New("malformed packed segment")
)

type Delimiters struct {
	Primary   string
	Secondary string
}

var DefaultDelimiters = Delimiters{Primary: "||", Secondary: "::"}

func (d Delimiters) validate() error {
	if d.Primary == "" || d.Secondary == "" {
		return fmt.Errorf("%w: delimiters must be non-empty", ErrInvalidArgument)
	}
	if d.Primary == d.Secondary {
		return fmt.Errorf("%w: primary and secondary delimiter are both %q", ErrInvalidArgument, d.Primary)
	}
	return nil
}

// Entry is one decoded index::value pair.
type Entry struct {
	Index string
	Value string
}

// DecodeResult holds the entries of one packed cell plus the segments that were dropped.
type DecodeResult struct {
	Entries   []Entry
	Segments  int
	Malformed []string
}

// DecodePacked splits a packed cell. Empty segments are skipped; segments without
// the secondary delimiter are reported in Malformed and otherwise ignored.
func DecodePacked(value string, d Delimiters) DecodeResult {
	var res DecodeResult
	if value == "" {
		return res
	}
	for _, segment := range strings.Split(value, d.Primary) {
		if segment == "" {
			continue
		}
		res.Segments++
		idx, v, ok := strings.Cut(segment, d.Secondary)
		if !ok {
			res.Malformed = append(res.Malformed, segment)
			continue
		}
		res.Entries = append(res.Entries, Entry{Index: idx, Value: v})
	}
	return res
}
