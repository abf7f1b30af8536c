package provider

import (
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// parseTimestamp converts assorted timestamp representations to a
// UTC time. Supports RFC3339 strings (with or without fractional
// seconds or trailing Z), unix epoch seconds, and milliseconds.
// Returns the zero time for anything unrecognized.
func parseTimestamp(v gjson.Result) time.Time {
	switch v.Type {
	case gjson.Number:
		seconds := v.Float()
		if seconds <= 0 {
			return time.Time{}
		}
		if seconds > 1e12 { // treat as milliseconds
			seconds /= 1000.0
		}
		sec := int64(seconds)
		nsec := int64((seconds - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC()
	case gjson.String:
		return parseTimestampStr(v.Str)
	default:
		return time.Time{}
	}
}

func parseTimestampStr(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	// SQLite stores often keep epoch timestamps as numeric columns.
	if seconds, err := strconv.ParseFloat(s, 64); err == nil && seconds > 0 {
		if seconds > 1e12 {
			seconds /= 1000.0
		}
		sec := int64(seconds)
		nsec := int64((seconds - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC()
	}
	return time.Time{}
}

// firstTimestamp returns the first parseable timestamp among the
// named fields of obj.
func firstTimestamp(obj gjson.Result, keys ...string) time.Time {
	for _, key := range keys {
		if t := parseTimestamp(obj.Get(key)); !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}

// firstString returns the first non-blank string value among the
// named fields of obj.
func firstString(obj gjson.Result, keys ...string) string {
	for _, key := range keys {
		if v := obj.Get(key); v.Type == gjson.String {
			if s := strings.TrimSpace(v.Str); s != "" {
				return s
			}
		}
	}
	return ""
}
