// Package theme holds the color palettes and shared lipgloss styles of the
// terminal surfaces.
package theme

import (
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/theirongolddev/redline/internal/gauge"
)

// Theme defines a complete color palette for the TUI
type Theme struct {
	// Base colors
	Base     lipgloss.Color // Background
	Surface0 lipgloss.Color // Surface
	Surface1 lipgloss.Color // Surface highlight
	Surface2 lipgloss.Color // Surface bright

	// Text colors
	Text    lipgloss.Color // Primary text
	Subtext lipgloss.Color // Secondary text
	Overlay lipgloss.Color // Dimmed text

	// Accents
	Primary lipgloss.Color
	Needle  lipgloss.Color
	Wave    lipgloss.Color

	// Status colors; Success, Warning and Error double as the gauge zones.
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	Info    lipgloss.Color
}

// Catppuccin Mocha - the flagship dark theme
var CatppuccinMocha = Theme{
	Base:     lipgloss.Color("#1e1e2e"),
	Surface0: lipgloss.Color("#313244"),
	Surface1: lipgloss.Color("#45475a"),
	Surface2: lipgloss.Color("#585b70"),

	Text:    lipgloss.Color("#cdd6f4"),
	Subtext: lipgloss.Color("#a6adc8"),
	Overlay: lipgloss.Color("#6c7086"),

	Primary: lipgloss.Color("#89b4fa"), // Blue
	Needle:  lipgloss.Color("#f5e0dc"), // Rosewater
	Wave:    lipgloss.Color("#94e2d5"), // Teal

	Success: lipgloss.Color("#a6e3a1"), // Green
	Warning: lipgloss.Color("#f9e2af"), // Yellow
	Error:   lipgloss.Color("#f38ba8"), // Red
	Info:    lipgloss.Color("#89dceb"), // Sky
}

// Catppuccin Latte - light variant
var CatppuccinLatte = Theme{
	Base:     lipgloss.Color("#eff1f5"),
	Surface0: lipgloss.Color("#ccd0da"),
	Surface1: lipgloss.Color("#bcc0cc"),
	Surface2: lipgloss.Color("#acb0be"),

	Text:    lipgloss.Color("#4c4f69"),
	Subtext: lipgloss.Color("#6c6f85"),
	Overlay: lipgloss.Color("#7c7f93"),

	Primary: lipgloss.Color("#1e66f5"),
	Needle:  lipgloss.Color("#dc8a78"),
	Wave:    lipgloss.Color("#179299"),

	Success: lipgloss.Color("#40a02b"),
	Warning: lipgloss.Color("#df8e1d"),
	Error:   lipgloss.Color("#d20f39"),
	Info:    lipgloss.Color("#04a5e5"),
}

// Nord - popular arctic theme
var Nord = Theme{
	Base:     lipgloss.Color("#2e3440"),
	Surface0: lipgloss.Color("#3b4252"),
	Surface1: lipgloss.Color("#434c5e"),
	Surface2: lipgloss.Color("#4c566a"),

	Text:    lipgloss.Color("#eceff4"),
	Subtext: lipgloss.Color("#d8dee9"),
	Overlay: lipgloss.Color("#7b88a1"),

	Primary: lipgloss.Color("#88c0d0"),
	Needle:  lipgloss.Color("#d8dee9"),
	Wave:    lipgloss.Color("#8fbcbb"),

	Success: lipgloss.Color("#a3be8c"),
	Warning: lipgloss.Color("#ebcb8b"),
	Error:   lipgloss.Color("#bf616a"),
	Info:    lipgloss.Color("#81a1c1"),
}

// Plain is a no-color theme that uses empty/default colors.
// Used when NO_COLOR is set or for accessibility needs.
var Plain = Theme{}

// NoColorEnabled returns true if color output should be disabled.
// Respects the NO_COLOR standard (https://no-color.org/):
// - If NO_COLOR exists in environment (any value), colors are disabled
// - REDLINE_NO_COLOR=1 also disables colors
// - REDLINE_NO_COLOR=0 forces colors ON (overrides NO_COLOR)
func NoColorEnabled() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("REDLINE_NO_COLOR"))) {
	case "0", "false", "no", "off":
		return false
	case "1", "true", "yes", "on":
		return true
	}
	_, noColorSet := os.LookupEnv("NO_COLOR")
	return noColorSet
}

// FromName returns a theme by name
func FromName(name string) Theme {
	if NoColorEnabled() {
		return Plain
	}

	switch strings.ToLower(strings.TrimSpace(name)) {
	case "plain", "none", "no-color", "nocolor":
		return Plain
	case "nord":
		return Nord
	case "latte", "light":
		return CatppuccinLatte
	case "mocha", "dark":
		return CatppuccinMocha
	default:
		return autoTheme()
	}
}

// Current returns the theme named by REDLINE_THEME, or the auto-detected one.
func Current() Theme {
	return FromName(os.Getenv("REDLINE_THEME"))
}

// detectDarkBackground inspects the terminal to determine if a dark background is in use.
// It is defined as a variable for testability.
var detectDarkBackground = func() bool {
	output := termenv.NewOutput(os.Stdout)
	return output.HasDarkBackground()
}

var (
	cachedAutoTheme Theme
	autoThemeOnce   sync.Once
)

// resetAutoTheme resets the cached auto theme for testing purposes.
var resetAutoTheme = func() {
	autoThemeOnce = sync.Once{}
	cachedAutoTheme = Theme{}
}

func autoTheme() Theme {
	autoThemeOnce.Do(func() {
		cachedAutoTheme = CatppuccinMocha

		defer func() {
			if recover() != nil {
				cachedAutoTheme = CatppuccinMocha
			}
		}()

		if !detectDarkBackground() {
			cachedAutoTheme = CatppuccinLatte
		}
	})
	return cachedAutoTheme
}

// ZoneColor returns the fill color of a gauge zone.
func (t Theme) ZoneColor(z gauge.Zone) lipgloss.Color {
	switch z {
	case gauge.ZoneCritical:
		return t.Error
	case gauge.ZoneWarning:
		return t.Warning
	case gauge.ZoneNormal:
		return t.Success
	default:
		return t.Surface2
	}
}

// ModeColor returns the color of the total gauge's mode label.
func (t Theme) ModeColor(m gauge.Mode) lipgloss.Color {
	switch m {
	case gauge.ModeRedline, gauge.ModeCheck:
		return t.Error
	case gauge.ModeBusy:
		return t.Warning
	case gauge.ModeActive:
		return t.Success
	default:
		return t.Overlay
	}
}

// Styles contains pre-built lipgloss styles for the theme
type Styles struct {
	Header lipgloss.Style
	Title  lipgloss.Style
	Normal lipgloss.Style
	Bold   lipgloss.Style
	Dim    lipgloss.Style

	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style

	Box      lipgloss.Style
	BoxTitle lipgloss.Style
	Value    lipgloss.Style
	Needle   lipgloss.Style
	Wave     lipgloss.Style
	LightOn  lipgloss.Style
	LightOff lipgloss.Style
	Link     lipgloss.Style

	// Help/status bar
	Help      lipgloss.Style
	HelpKey   lipgloss.Style
	StatusBar lipgloss.Style
}

// NewStyles creates a Styles instance from a theme
func NewStyles(t Theme) Styles {
	styles := Styles{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(t.Primary).
			Padding(0, 1),

		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(t.Text),

		Normal: lipgloss.NewStyle().
			Foreground(t.Text),

		Bold: lipgloss.NewStyle().
			Bold(true).
			Foreground(t.Text),

		Dim: lipgloss.NewStyle().
			Foreground(t.Overlay),

		Success: lipgloss.NewStyle().
			Bold(true).
			Foreground(t.Success),

		Warning: lipgloss.NewStyle().
			Bold(true).
			Foreground(t.Warning),

		Error: lipgloss.NewStyle().
			Bold(true).
			Foreground(t.Error),

		Info: lipgloss.NewStyle().
			Bold(true).
			Foreground(t.Info),

		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Surface2).
			Padding(0, 1),

		BoxTitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(t.Primary),

		Value: lipgloss.NewStyle().
			Bold(true).
			Foreground(t.Text),

		Needle: lipgloss.NewStyle().
			Bold(true).
			Foreground(t.Needle),

		Wave: lipgloss.NewStyle().
			Foreground(t.Wave),

		LightOn: lipgloss.NewStyle().
			Bold(true).
			Foreground(t.Warning),

		LightOff: lipgloss.NewStyle().
			Foreground(t.Surface2),

		Link: lipgloss.NewStyle().
			Foreground(t.Info).
			Underline(true),

		Help: lipgloss.NewStyle().
			Foreground(t.Overlay),

		HelpKey: lipgloss.NewStyle().
			Bold(true).
			Foreground(t.Text).
			Background(t.Surface0).
			Padding(0, 1),

		StatusBar: lipgloss.NewStyle().
			Foreground(t.Subtext).
			Background(t.Surface0).
			Padding(0, 1),
	}

	// Without color, zones and lights must still be distinguishable.
	if t == Plain {
		styles.Warning = styles.Warning.Copy().Underline(true)
		styles.Error = styles.Error.Copy().Underline(true).Reverse(true)
		styles.LightOn = styles.LightOn.Copy().Reverse(true)
	}

	return styles
}

// DefaultStyles returns styles for the current theme
func DefaultStyles() Styles {
	return NewStyles(Current())
}
