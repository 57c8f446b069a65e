// Package jsonutil decodes loosely typed JSON produced by language models.
package jsonutil

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// FlexibleString converts a raw value to a string, accepting numbers and
// booleans where a string was asked for. Returns "" for null or empty input.
func FlexibleString(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		return strconv.FormatFloat(numVal, 'f', -1, 64)
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return strconv.FormatBool(boolVal)
	}

	return string(raw)
}

// FlexibleFloat reads a number that may arrive as a JSON number or a numeric
// string. ok is false for null, non-numeric and non-finite values.
func FlexibleFloat(raw json.RawMessage) (float64, bool) {
	if isNull(raw) {
		return 0, false
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		return numVal, true
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(strVal), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// FlexibleStringSlice reads a list of strings. A single string becomes a
// one-element list; non-string elements are converted with FlexibleString
// and empty results are dropped.
func FlexibleStringSlice(raw json.RawMessage) []string {
	if isNull(raw) {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		if s := strings.TrimSpace(FlexibleString(raw)); s != "" {
			return []string{s}
		}
		return nil
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := strings.TrimSpace(FlexibleString(item)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isNull(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}
