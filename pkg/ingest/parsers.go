package ingest

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ParseScore reads an NPS score. Comma decimals are accepted; the value must be
// finite and within [0,10] and is truncated to an integer.
func ParseScore(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if v < 0 || v > 10 {
		return 0, false
	}
	return int(v), true
}

// dateLayouts is the fixed parse order. Day-first layouts come before
// month-first ones, so "03/04/2024" is 3 April 2024. Two-digit years follow
// time.Parse: 69-99 are 19xx, 00-68 are 20xx.
var dateLayouts = []string{
	"2006-1-2", // yyyy-mm-dd
	"2/1/2006", // dd/mm/yyyy
	"2/1/06",   // dd/mm/yy
	"2-1-2006", // dd-mm-yyyy
	"2-1-06",   // dd-mm-yy
	"2.1.2006", // dd.mm.yyyy
	"2.1.06",   // dd.mm.yy
	"1/2/2006", // mm/dd/yyyy
	"1/2/06",   // mm/dd/yy
}

// Spreadsheet serial dates: day 1 is 1899-12-31, 2958465 is 9999-12-31.
var serialEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

const maxSerialDay = 2958465

// ParseDate reads a calendar date using dateLayouts, then the spreadsheet
// serial fallback. A trailing time of day is ignored. The result is UTC midnight.
func ParseDate(s string) (time.Time, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return time.Time{}, false
	}

	date := stripTimeOfDay(trimmed)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, date); err == nil {
			return t, true
		}
	}
	return parseSerialDate(trimmed)
}

// timeOfDaySuffix matches " 10:00", " 9:05:30 PM" and ISO "T10:00:00.000Z".
var timeOfDaySuffix = regexp.MustCompile(`(?i)[ \tT]+\d{1,2}:\d{2}(:\d{2}(\.\d+)?)?\s*(am|pm)?(z|[+-]\d{2}:?\d{2})?$`)

func stripTimeOfDay(s string) string {
	if loc := timeOfDaySuffix.FindStringIndex(s); loc != nil && loc[0] > 0 {
		return s[:loc[0]]
	}
	return s
}

func parseSerialDate(s string) (time.Time, bool) {
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return time.Time{}, false
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, false
	}
	days := int(math.Floor(v))
	if days < 1 || days > maxSerialDay {
		return time.Time{}, false
	}
	return serialEpoch.AddDate(0, 0, days), true
}

var placeholderComments = map[string]struct{}{
	"":       {},
	"n.v.t.": {},
	"nvt":    {},
	"n/a":    {},
	"na":     {},
	"none":   {},
}

// ParseComment trims s and reports false for empty or placeholder text.
func ParseComment(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if _, placeholder := placeholderComments[strings.ToLower(trimmed)]; placeholder {
		return "", false
	}
	return trimmed, true
}

// ParseBool maps Dutch and English yes/no synonyms; anything else is absent.
func ParseBool(s string) (value bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ja", "j", "yes", "y", "true", "1":
		return true, true
	case "nee", "n", "no", "false", "0":
		return false, true
	default:
		return false, false
	}
}

// WordCount counts whitespace-separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

func optionalText(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
