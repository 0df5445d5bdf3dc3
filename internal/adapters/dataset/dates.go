package dataset

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// dateLayouts are tried before falling back to dateparse. The Brent export
// mixes "20-May-87" with "Apr 22, 2020".
var dateLayouts = []string{
	"2006-01-02",
	"02-Jan-06",
	"2-Jan-06",
	"Jan 02, 2006",
	"Jan 2, 2006",
	"02-Jan-2006",
}

var errEmptyDate = errors.New("empty date")

// ParseDate parses a date cell, stripping stray quotes and whitespace.
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, `"`, ""))
	if s == "" {
		return time.Time{}, errEmptyDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}
