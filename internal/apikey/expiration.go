package apikey

import (
	"errors"
	"time"
)

// expirationLayout is one accepted textual form of an expiration date.
// Layouts without a zone are interpreted as UTC.
type expirationLayout struct {
	name  string
	parse func(string) (time.Time, error)
}

// expirationLayouts is tried in order; RFC 3339 must come first so that
// strings carrying an offset are never read as zone-less times.
var expirationLayouts = []expirationLayout{
	{"rfc3339", func(s string) (time.Time, error) {
		return time.Parse(time.RFC3339, s)
	}},
	{"datetime", utcLayout("2006-01-02T15:04:05")},
	{"datetime-space", utcLayout("2006-01-02 15:04:05")},
	{"date", utcLayout("2006-01-02")},
}

// utcLayout parses s as exactly layout in UTC. time.Parse accepts a
// fractional second after "05" even when the layout has none, so input
// of any other length is rejected first.
func utcLayout(layout string) func(string) (time.Time, error) {
	return func(s string) (time.Time, error) {
		if len(s) != len(layout) {
			return time.Time{}, errLayoutMismatch
		}
		return time.ParseInLocation(layout, s, time.UTC)
	}
}

var errLayoutMismatch = errors.New("apikey: expiration does not match layout")

// ParseExpiration interprets raw as an optional expiration date. A nil raw
// value means the key never expires. Strings are matched against the
// accepted layouts and must denote an instant strictly after now.
func ParseExpiration(raw any, now time.Time) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, invalid(CodeInvalidExpiresAt, FieldExpiresAt, raw)
	}

	t, ok := parseExpirationString(s)
	if !ok {
		return nil, invalid(CodeInvalidExpiresAt, FieldExpiresAt, raw)
	}
	if !t.After(now) {
		return nil, invalid(CodeInvalidExpiresAt, FieldExpiresAt, raw)
	}
	t = t.UTC()
	return &t, nil
}

func parseExpirationString(s string) (time.Time, bool) {
	for _, l := range expirationLayouts {
		if t, err := l.parse(s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
