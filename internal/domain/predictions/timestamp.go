package predictions

import (
	"fmt"
	"strings"
	"time"
)

// timestampLayouts are the ISO-8601 date-time forms accepted from callers.
// Fractional seconds are accepted after any seconds field.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp reads an ISO-8601 date-time with or without a zone
// designator. Zone-less values are read as UTC. The stored record keeps
// the caller's original string; this is only used to validate and order.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not an ISO-8601 date-time", s)
}
