package util

import (
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"30s", 30 * time.Second, false},
		{"5m", 5 * time.Minute, false},
		{"2h", 2 * time.Hour, false},
		{"1d", 24 * time.Hour, false},
		{"500ms", 500 * time.Millisecond, false},
		{"1m30s", 90 * time.Second, false},
		{" 60s ", time.Minute, false},

		{"", 0, true},
		{"s", 0, true},
		{"abc", 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseDuration(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Errorf("ParseDuration(%q) expected error, got %v", tc.input, got)
				}
				return
			}
			if err != nil {
				t.Errorf("ParseDuration(%q) unexpected error: %v", tc.input, err)
				return
			}
			if got != tc.expected {
				t.Errorf("ParseDuration(%q) = %v, want %v", tc.input, got, tc.expected)
			}
		})
	}
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"60", time.Minute, false},
		{"60s", time.Minute, false},
		{"2m", 2 * time.Minute, false},
		{"0", 0, true},
		{"0s", 0, true},
		{"-5s", 0, true},
		{"soon", 0, true},
	}

	for _, tc := range tests {
		got, err := ParseInterval(tc.input, time.Second)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseInterval(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
			continue
		}
		if got != tc.expected {
			t.Errorf("ParseInterval(%q) = %v, want %v", tc.input, got, tc.expected)
		}
	}
}

func TestFormatInterval(t *testing.T) {
	tests := map[time.Duration]string{
		60 * time.Second:        "60s",
		90 * time.Second:        "90s",
		15 * time.Minute:        "15m",
		2 * time.Hour:           "2h",
		1500 * time.Millisecond: "1.5s",
		0:                       "0s",
	}
	for in, want := range tests {
		if got := FormatInterval(in); got != want {
			t.Errorf("FormatInterval(%v) = %q, want %q", in, got, want)
		}
	}
}
