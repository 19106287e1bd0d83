// Package dates turns the timestamp strings found in social-media exports
// into time.Time values. Nothing here returns an error: a string that cannot
// be read yields ok == false and the caller keeps the post undated.
package dates

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// postedRe matches "Posted 05:59 15 Apr 2025" and the same text without the label.
var postedRe = regexp.MustCompile(`(?i)(?:posted\s+)?\b(\d{1,2}):(\d{2})\s+(\d{1,2})\s+([a-z]{3})\s+(\d{4})\b`)

var months = map[string]time.Month{
	"jan": time.January,
	"feb": time.February,
	"mar": time.March,
	"apr": time.April,
	"may": time.May,
	"jun": time.June,
	"jul": time.July,
	"aug": time.August,
	"sep": time.September,
	"oct": time.October,
	"nov": time.November,
	"dec": time.December,
}

// Parse reads a "Posted HH:MM D Mon YYYY" timestamp. The result is naive
// (UTC location, no conversion applied).
func Parse(s string) (time.Time, bool) {
	m := postedRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}

	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	year, _ := strconv.Atoi(m[5])
	month, ok := months[strings.ToLower(m[4])]
	if !ok {
		return time.Time{}, false
	}

	return build(year, month, day, hour, minute)
}

func build(year int, month time.Month, day, hour, minute int) (time.Time, bool) {
	if hour > 23 || minute > 59 || day < 1 {
		return time.Time{}, false
	}
	t := time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
	// time.Date normalizes overflow (31 Apr -> 1 May); reject instead.
	if t.Day() != day || t.Month() != month {
		return time.Time{}, false
	}
	return t, true
}

var layouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseAny accepts the posted format plus the layouts API exports use
// (RFC3339 from YouTube, plain ISO dates from spreadsheets).
func ParseAny(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, ok := Parse(s); ok {
		return t, true
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return naive(t), true
		}
	}
	return time.Time{}, false
}

// FromUnix converts a Reddit created_utc value.
func FromUnix(sec float64) (time.Time, bool) {
	if sec <= 0 || math.IsNaN(sec) || math.IsInf(sec, 0) {
		return time.Time{}, false
	}
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC(), true
}

// Day truncates t to midnight of its calendar day.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// naive drops the zone offset, keeping the wall clock the source reported.
func naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
