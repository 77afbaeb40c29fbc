// Package components provides shared TUI building blocks.
package components

import (
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/theirongolddev/redline/internal/gauge"
	"github.com/theirongolddev/redline/internal/tui/theme"
)

// FreshnessOptions configures freshness indicator rendering.
type FreshnessOptions struct {
	LastUpdate      time.Time     // When data was last fetched
	RefreshInterval time.Duration // Expected refresh interval (0 when auto-refresh is off)
	Now             time.Time     // Reference time; zero means time.Now()
	Theme           theme.Theme
}

// IsStale returns true if data is older than 2x the refresh interval.
func IsStale(lastUpdate, now time.Time, refreshInterval time.Duration) bool {
	if lastUpdate.IsZero() || refreshInterval <= 0 {
		return false
	}
	return now.Sub(lastUpdate) > 2*refreshInterval
}

// Age renders how long ago t was, e.g. "3 minutes ago".
func Age(t, now time.Time) string {
	if t.IsZero() {
		return gauge.Placeholder
	}
	if now.Sub(t) < time.Second {
		return "just now"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// RenderFreshnessIndicator renders "Updated 3 minutes ago", with a STALE
// badge when auto-refresh has fallen behind.
func RenderFreshnessIndicator(opts FreshnessOptions) string {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	t := opts.Theme

	text := "Updated " + Age(opts.LastUpdate, now)
	if !IsStale(opts.LastUpdate, now, opts.RefreshInterval) {
		return lipgloss.NewStyle().Foreground(t.Overlay).Render(text)
	}

	badge := lipgloss.NewStyle().
		Background(t.Warning).
		Foreground(t.Base).
		Bold(true).
		Padding(0, 1).
		Render("STALE")
	return lipgloss.NewStyle().Foreground(t.Warning).Render(text) + " " + badge
}
