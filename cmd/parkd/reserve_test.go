package main

import (
	"testing"
	"time"
)

func TestParseStart(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		text string
		want time.Time
	}{
		{name: "empty is now", text: "", want: now},
		{name: "now", text: "Now", want: now},
		{name: "rfc3339", text: "2025-03-02T08:30:00Z", want: time.Date(2025, 3, 2, 8, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseStart(tt.text, now)
			if err != nil {
				t.Fatalf("parseStart() failed: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseStart(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}

func TestParseStart_NaturalLanguage(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	got, err := parseStart("in 2 hours", now)
	if err != nil {
		t.Fatalf("parseStart() failed: %v", err)
	}
	if !got.After(now) || got.Sub(now) > 3*time.Hour {
		t.Errorf("parseStart(in 2 hours) = %s, want about two hours after %s", got, now)
	}
}

func TestParseStart_Unparseable(t *testing.T) {
	if _, err := parseStart("qwerty zxcv", time.Now()); err == nil {
		t.Error("parseStart() succeeded on gibberish")
	}
}

func TestCost(t *testing.T) {
	if got := cost(1234.5); got != "$1,234.5" {
		t.Errorf("cost() = %q", got)
	}
}
