package internal

import (
	"encoding/json"
	"testing"
)

func TestSortTime(t *testing.T) {
	tests := []struct {
		name   string
		in     interface{}
		want   float64
		wantOK bool
	}{
		{"nil", nil, 0, false},
		{"seconds", float64(1700000000), 1700000000, true},
		{"millis", float64(1700000000123), 1700000000.123, true},
		{"int millis", int64(1700000000000), 1700000000, true},
		{"iso z", "2023-11-14T22:13:20Z", 1700000000, true},
		{"iso offset", "2023-11-14T23:13:20+01:00", 1700000000, true},
		{"iso fractional z", "2023-11-14T22:13:20.500Z", 1700000000.5, true},
		{"garbage", "yesterday", 0, false},
		{"empty", "", 0, false},
		{"bool", true, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SortTime(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("SortTime(%v) ok = %v, want %v", tt.in, ok, tt.wantOK)
			}
			if ok && (got-tt.want > 1e-3 || tt.want-got > 1e-3) {
				t.Errorf("SortTime(%v) = %f, want %f", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatTime(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{nil, "?"},
		{"", "?"},
		{"2023-11-14T22:13:20.987Z", "2023-11-14T22:13:20Z"},
		{"2023-11-14T22:13:20+00:00", "2023-11-14T22:13:20Z"},
		{"2023-11-14T23:13:20+01:00", "2023-11-14T23:13:20+01:00"},
		{"2023-11-14T22:13:20", "2023-11-14T22:13:20"},
		{"not a time", "not a time"},
	}
	for _, tt := range tests {
		if got := FormatTime(tt.in); got != tt.want {
			t.Errorf("FormatTime(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatTime_NumbersAgree(t *testing.T) {
	if FormatTime(float64(1700000000)) != FormatTime(float64(1700000000000)) {
		t.Error("seconds and milliseconds for the same instant format differently")
	}
}

func TestTimestamp_PreservesRawValue(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"string", `"2025-01-02T03:04:05.123Z"`},
		{"millis", `1735787045123`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg struct {
				Timestamp *Timestamp `json:"timestamp"`
			}
			if err := json.Unmarshal([]byte(`{"timestamp":`+tt.in+`}`), &msg); err != nil {
				t.Fatal(err)
			}
			out, err := json.Marshal(msg.Timestamp)
			if err != nil {
				t.Fatal(err)
			}
			if string(out) != tt.in {
				t.Errorf("round trip = %s, want %s", out, tt.in)
			}
		})
	}
}

func TestNewTimestamp(t *testing.T) {
	if NewTimestamp(nil) != nil || NewTimestamp("  ") != nil || NewTimestamp(map[string]interface{}{}) != nil {
		t.Error("NewTimestamp() should return nil for values without time information")
	}
	if NewTimestamp(json.Number("12")) == nil {
		t.Error("NewTimestamp(json.Number) = nil")
	}
	var nilTS *Timestamp
	if nilTS.String() != "?" {
		t.Errorf("nil Timestamp String() = %q, want ?", nilTS.String())
	}
	if MillisToTimestamp(float64(0)) != nil {
		t.Error("MillisToTimestamp(0) should be nil")
	}
}
