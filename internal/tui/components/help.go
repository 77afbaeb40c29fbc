package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/redline/internal/tui/theme"
)

// NarrowWidth is the width below which key hints drop their backgrounds.
const NarrowWidth = 60

// KeyHint represents a single keybinding hint (e.g., "r" → "refresh").
type KeyHint struct {
	Key  string // The key(s) to press, e.g., "r", "q/esc"
	Desc string // Brief description, e.g., "refresh", "quit"
}

// HintsFromBindings converts enabled bindings to hints.
func HintsFromBindings(bindings ...key.Binding) []KeyHint {
	hints := make([]KeyHint, 0, len(bindings))
	for _, b := range bindings {
		if !b.Enabled() {
			continue
		}
		h := b.Help()
		hints = append(hints, KeyHint{Key: h.Key, Desc: h.Desc})
	}
	return hints
}

// HelpBarOptions configures HelpBar rendering.
type HelpBarOptions struct {
	Hints     []KeyHint // Key hints to display
	Width     int       // Available width (0 = unlimited)
	Separator string    // Separator between hints (default: "  ")
	Styles    theme.Styles
}

// RenderKeyHint renders a single key hint: "[key] desc"
func RenderKeyHint(hint KeyHint, st theme.Styles, compact bool) string {
	keyStyle := st.HelpKey
	if compact {
		keyStyle = st.Bold
	}
	return keyStyle.Render(hint.Key) + " " + st.Help.Render(hint.Desc)
}

// RenderHelpBar renders a horizontal bar of key hints, respecting width constraints.
// Hints are progressively hidden from right-to-left if they don't fit.
func RenderHelpBar(opts HelpBarOptions) string {
	if len(opts.Hints) == 0 {
		return ""
	}

	sep := opts.Separator
	if sep == "" {
		sep = "  "
	}
	compact := opts.Width > 0 && opts.Width < NarrowWidth

	rendered := make([]string, 0, len(opts.Hints))
	for _, h := range opts.Hints {
		rendered = append(rendered, RenderKeyHint(h, opts.Styles, compact))
	}

	if opts.Width <= 0 {
		return strings.Join(rendered, sep)
	}

	sepWidth := lipgloss.Width(sep)
	for len(rendered) > 0 {
		total := 0
		for i, r := range rendered {
			total += lipgloss.Width(r)
			if i > 0 {
				total += sepWidth
			}
		}
		if total <= opts.Width {
			break
		}
		rendered = rendered[:len(rendered)-1]
	}

	return strings.Join(rendered, sep)
}
