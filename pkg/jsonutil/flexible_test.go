package jsonutil

import (
	"encoding/json"
	"testing"
)

func TestFlexibleString(t *testing.T) {
	tests := []struct {
		name  string
		input json.RawMessage
		want  string
	}{
		{name: "string value", input: json.RawMessage(`"pricing"`), want: "pricing"},
		{name: "integer value", input: json.RawMessage(`42`), want: "42"},
		{name: "float value", input: json.RawMessage(`0.85`), want: "0.85"},
		{name: "boolean", input: json.RawMessage(`true`), want: "true"},
		{name: "null value", input: json.RawMessage(`null`), want: ""},
		{name: "empty input", input: nil, want: ""},
		{name: "object falls back to raw", input: json.RawMessage(`{"a":1}`), want: `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FlexibleString(tt.input); got != tt.want {
				t.Errorf("FlexibleString(%s) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFlexibleFloat(t *testing.T) {
	tests := []struct {
		name   string
		input  json.RawMessage
		want   float64
		wantOK bool
	}{
		{name: "number", input: json.RawMessage(`0.8`), want: 0.8, wantOK: true},
		{name: "numeric string", input: json.RawMessage(`" 0.75 "`), want: 0.75, wantOK: true},
		{name: "out of range still parsed", input: json.RawMessage(`1.7`), want: 1.7, wantOK: true},
		{name: "word", input: json.RawMessage(`"high"`), wantOK: false},
		{name: "nan string", input: json.RawMessage(`"NaN"`), wantOK: false},
		{name: "null", input: json.RawMessage(`null`), wantOK: false},
		{name: "missing", input: nil, wantOK: false},
		{name: "list", input: json.RawMessage(`[0.5]`), wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FlexibleFloat(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("FlexibleFloat(%s) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("FlexibleFloat(%s) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFlexibleStringSlice(t *testing.T) {
	tests := []struct {
		name  string
		input json.RawMessage
		want  []string
	}{
		{name: "list", input: json.RawMessage(`["pricing", " overige "]`), want: []string{"pricing", "overige"}},
		{name: "single string", input: json.RawMessage(`"pricing"`), want: []string{"pricing"}},
		{name: "mixed and empty", input: json.RawMessage(`["pricing", "", null, 3]`), want: []string{"pricing", "3"}},
		{name: "null", input: json.RawMessage(`null`), want: nil},
		{name: "blank string", input: json.RawMessage(`"  "`), want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FlexibleStringSlice(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("FlexibleStringSlice(%s) = %v, want %v", tt.input, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("FlexibleStringSlice(%s)[%d] = %q, want %q", tt.input, i, got[i], tt.want[i])
				}
			}
		})
	}
}
