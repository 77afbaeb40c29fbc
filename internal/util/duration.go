// Package util holds small parsing and formatting helpers shared by the
// config, cli and tui packages.
package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDuration parses human-friendly duration strings.
// Supports: 30s, 5m, 1h, 1d and standard Go durations (e.g., 1m30s).
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	unit := s[len(s)-1]
	value, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return time.ParseDuration(s)
	}

	switch unit {
	case 's':
		return time.Duration(value) * time.Second, nil
	case 'm':
		return time.Duration(value) * time.Minute, nil
	case 'h':
		return time.Duration(value) * time.Hour, nil
	case 'd':
		return time.Duration(value) * 24 * time.Hour, nil
	default:
		return time.ParseDuration(s)
	}
}

// ParseInterval parses a positive refresh interval. A bare number is read
// in bareUnit, so REDLINE_AUTO_REFRESH=60 means sixty seconds.
func ParseInterval(s string, bareUnit time.Duration) (time.Duration, error) {
	s = strings.TrimSpace(s)
	d, err := ParseDuration(s)
	if err != nil {
		n, nerr := strconv.Atoi(s)
		if nerr != nil {
			return 0, fmt.Errorf("invalid interval: %q (use units like 30s, 5m)", s)
		}
		d = time.Duration(n) * bareUnit
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be positive, got %q", s)
	}
	return d, nil
}

// FormatInterval renders an interval the way the dashboard labels it:
// whole seconds below ten minutes ("60s"), else Go's compact form ("15m0s"
// becomes "15m").
func FormatInterval(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	if d < 10*time.Minute && d%time.Second == 0 {
		return fmt.Sprintf("%ds", int(d/time.Second))
	}
	s := d.String()
	if strings.HasSuffix(s, "m0s") {
		s = strings.TrimSuffix(s, "0s")
	}
	if strings.HasSuffix(s, "h0m") {
		s = strings.TrimSuffix(s, "0m")
	}
	return s
}
