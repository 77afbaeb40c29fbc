package components

import (
	"strings"
	"testing"
	"time"

	"github.com/theirongolddev/redline/internal/tui/theme"
)

func TestIsStale(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		elapsed  time.Duration
		interval time.Duration
		expected bool
	}{
		{"zero lastUpdate not stale", 0, 10 * time.Second, false},
		{"fresh data", 5 * time.Second, 10 * time.Second, false},
		{"just under 2x interval not stale", 19 * time.Second, 10 * time.Second, false},
		{"stale data (>2x interval)", 25 * time.Second, 10 * time.Second, true},
		{"auto-refresh off never stale", 100 * time.Second, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var lastUpdate time.Time
			if tt.elapsed > 0 {
				lastUpdate = now.Add(-tt.elapsed)
			}
			if got := IsStale(lastUpdate, now, tt.interval); got != tt.expected {
				t.Errorf("IsStale() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestAge(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Time{}, "—"},
		{now, "just now"},
		{now.Add(-30 * time.Second), "30 seconds ago"},
		{now.Add(-2 * time.Hour), "2 hours ago"},
	}
	for _, tt := range tests {
		if got := Age(tt.at, now); got != tt.want {
			t.Errorf("Age(%v) = %q, want %q", tt.at, got, tt.want)
		}
	}
}

func TestRenderFreshnessIndicator(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	fresh := RenderFreshnessIndicator(FreshnessOptions{
		LastUpdate:      now.Add(-30 * time.Second),
		RefreshInterval: time.Minute,
		Now:             now,
		Theme:           theme.Plain,
	})
	if !strings.Contains(fresh, "Updated 30 seconds ago") {
		t.Errorf("expected age text, got %q", fresh)
	}
	if strings.Contains(fresh, "STALE") {
		t.Errorf("expected no STALE badge, got %q", fresh)
	}

	stale := RenderFreshnessIndicator(FreshnessOptions{
		LastUpdate:      now.Add(-5 * time.Minute),
		RefreshInterval: time.Minute,
		Now:             now,
		Theme:           theme.Plain,
	})
	if !strings.Contains(stale, "STALE") {
		t.Errorf("expected STALE badge, got %q", stale)
	}
}
