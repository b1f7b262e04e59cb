package model

import (
	"strings"
	"time"
)

// Wire layouts used by the clinic API.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD date in loc. Timestamps such as
// "2026-10-19T00:00:00.000Z" are accepted and cut to their date part.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(DateLayout, s, loc)
}

// TruncateTime cuts an upstream time such as "09:00:00" to "09:00".
func TruncateTime(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > len(TimeLayout) {
		return s[:len(TimeLayout)]
	}
	return s
}

// NormalizeDate cuts an upstream date or timestamp to YYYY-MM-DD.
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) {
		return s[:len(DateLayout)]
	}
	return s
}

// JSONMap represents a generic JSON object
type JSONMap map[string]interface{}
