package ingestion

import (
	"strconv"
	"strings"
	"time"
)

// timestamp magnitude thresholds used to infer the unit of a numeric value
const (
	nanosecondThreshold  = 1e18
	microsecondThreshold = 1e15
	millisecondThreshold = 1e12
)

// ParseTimestamp implements the universal timestamp rule: any input shape a
// provider might hand us is normalized to a tz-aware UTC instant. Returns
// false if the value cannot be interpreted as a timestamp at all; callers
// decide whether that's fatal (strict mode) or a dropped record.
//
// Centralizing this in one place, reused by every parser and adapter, avoids
// the numeric-scale inference drifting out of sync between formats.
func ParseTimestamp(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		if v.Location() == nil {
			return v.UTC(), true
		}
		return v.UTC(), true
	case string:
		return parseTimestampString(v)
	case int:
		return timestampFromMagnitude(float64(v)), true
	case int64:
		return timestampFromMagnitude(float64(v)), true
	case float64:
		return timestampFromMagnitude(v), true
	default:
		return time.Time{}, false
	}
}

func parseTimestampString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	iso := strings.Replace(s, "Z", "+00:00", 1)
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999-07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	} {
		if dt, err := time.Parse(layout, iso); err == nil {
			return dt.UTC(), true
		}
	}
	// also try the original string (before the Z->+00:00 substitution) in
	// case it already carried an explicit numeric offset
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if dt, err := time.Parse(layout, s); err == nil {
			return dt.UTC(), true
		}
	}

	if ts, err := strconv.ParseFloat(s, 64); err == nil {
		return timestampFromMagnitude(ts), true
	}

	return time.Time{}, false
}

func timestampFromMagnitude(ts float64) time.Time {
	var sec float64
	switch {
	case ts > nanosecondThreshold:
		sec = ts / 1e9
	case ts > microsecondThreshold:
		sec = ts / 1e6
	case ts > millisecondThreshold:
		sec = ts / 1e3
	default:
		sec = ts
	}
	whole := int64(sec)
	frac := sec - float64(whole)
	return time.Unix(whole, int64(frac*1e9)).UTC()
}

// ParseDurationSeconds parses a duration-like string ending in "s" (e.g.
// "0.150s", as emitted by GCP Cloud CDN's latency field) and returns the
// value in milliseconds, rounded to the nearest integer.
func ParseDurationSeconds(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, "s") {
		return 0, false
	}
	secs, err := strconv.ParseFloat(strings.TrimSuffix(s, "s"), 64)
	if err != nil {
		return 0, false
	}
	return int(secs*1000 + 0.5), true
}
