// backend/src/utils/date_utils.go
package utils

import (
	"fmt"
	"strings"
	"time"
)

// timestampLayouts lists the formats seen across agent submissions and
// scraped exports, ordered most common first.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02",
	"02-01-2006 15:04:05",
	"02-01-2006",
	"02/01/2006 15:04:05",
	"02/01/2006",
	"2006/01/02",
}

// ParseFlexibleTime attempts to parse a timestamp string against the known
// upstream layouts. It returns an error only when no layout matches.
func ParseFlexibleTime(s string) (time.Time, error) {
	cleaned := strings.TrimSpace(s)
	if cleaned == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", s)
}

// NormalizeMonthName title-cases a month name for case-insensitive matching
// ("january" -> "January"). Returns the input unchanged when it is not a
// full English month name.
func NormalizeMonthName(s string) string {
	cleaned := strings.TrimSpace(s)
	for m := time.January; m <= time.December; m++ {
		if strings.EqualFold(cleaned, m.String()) {
			return m.String()
		}
	}
	return cleaned
}
