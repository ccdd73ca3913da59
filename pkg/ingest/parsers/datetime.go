package parsers

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Timestamps above this are treated as milliseconds rather than seconds.
const millisThreshold = 10_000_000_000

// Common date layouts found in data exports, tried in order.
var dateLayouts = []string{
	// ISO 8601 variants
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.999999999Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
	// US formats
	"01/02/2006 15:04:05",
	"01/02/2006",
	// European formats
	"02/01/2006 15:04:05",
	"02/01/2006",
	// RFC 2822 (email)
	"Mon, 02 Jan 2006 15:04:05 -0700",
	"02 Jan 2006 15:04:05 -0700",
}

// ParseTime parses a datetime from numeric Unix timestamps (seconds or
// milliseconds), numeric strings, or any of the common export layouts.
// It reports false instead of failing when nothing matches.
func ParseTime(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case nil:
		return time.Time{}, false
	case int:
		return fromUnix(float64(v))
	case int64:
		return fromUnix(float64(v))
	case float64:
		return fromUnix(v)
	case time.Time:
		return v, true
	case string:
		return parseTimeString(v)
	}
	return time.Time{}, false
}

func parseTimeString(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	// Unix timestamp encoded as a string
	if ts, err := strconv.ParseFloat(value, 64); err == nil {
		return fromUnix(ts)
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}

	// Last resort: RFC 3339 with a bare Z suffix already covered above,
	// but some exports drop the seconds entirely.
	if t, err := time.Parse("2006-01-02T15:04Z07:00", value); err == nil {
		return t, true
	}

	return time.Time{}, false
}

func fromUnix(ts float64) (time.Time, bool) {
	if math.IsNaN(ts) || math.IsInf(ts, 0) {
		return time.Time{}, false
	}
	if ts > millisThreshold {
		ts = ts / 1000
	}
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC(), true
}
