package components

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/theirongolddev/redline/internal/gauge"
	"github.com/theirongolddev/redline/internal/tui/theme"
)

const (
	filledChar  = "█"
	emptyChar   = "░"
	redlineChar = "┃"
	needleChar  = "▼"
)

// sparkLevels are the eight block heights of a sparkline.
var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// GaugeBar draws one gauge as a needle row over a fill bar. The fill uses
// the zone color of the displayed value and the redline is marked on the
// scale.
type GaugeBar struct {
	Width int
	State gauge.State
	Theme theme.Theme
}

// Cells returns the filled cell count for the displayed value.
func (b GaugeBar) Cells() int {
	if b.Width <= 0 || !b.State.HasValue {
		return 0
	}
	return int(math.Round(b.State.Fraction * float64(b.Width)))
}

// NeedleCell returns the column of the damped needle.
func (b GaugeBar) NeedleCell() int {
	if b.Width <= 1 {
		return 0
	}
	pos := b.State.Position
	if pos < 0 {
		pos = 0
	}
	if pos > 1 {
		pos = 1
	}
	return int(math.Round(pos * float64(b.Width-1)))
}

// RedlineCell returns the column of the redline mark, or -1 if the redline
// is off the scale.
func (b GaugeBar) RedlineCell() int {
	if b.Width <= 0 || b.State.Max <= 0 || b.State.Redline >= b.State.Max {
		return -1
	}
	return int(float64(b.State.Redline) / float64(b.State.Max) * float64(b.Width))
}

// View renders the two rows.
func (b GaugeBar) View() string {
	if b.Width <= 0 {
		return ""
	}
	t := b.Theme

	needle := strings.Repeat(" ", b.NeedleCell()) +
		lipgloss.NewStyle().Foreground(t.Needle).Bold(true).Render(needleChar)

	filled := b.Cells()
	red := b.RedlineCell()
	fillStyle := lipgloss.NewStyle().Foreground(t.ZoneColor(b.State.Zone))
	emptyStyle := lipgloss.NewStyle().Foreground(t.Surface1)
	redStyle := lipgloss.NewStyle().Foreground(t.Error)

	var bar strings.Builder
	bar.WriteString(fillStyle.Render(strings.Repeat(filledChar, filled)))
	if red >= filled {
		bar.WriteString(emptyStyle.Render(strings.Repeat(emptyChar, red-filled)))
		bar.WriteString(redStyle.Render(redlineChar))
		bar.WriteString(emptyStyle.Render(strings.Repeat(emptyChar, b.Width-red-1)))
	} else {
		bar.WriteString(emptyStyle.Render(strings.Repeat(emptyChar, b.Width-filled)))
	}

	return needle + "\n" + bar.String()
}

// Sparkline renders the last width samples (0..1) as block characters,
// right-aligned.
func Sparkline(samples []float64, width int) string {
	if width <= 0 {
		return ""
	}
	if len(samples) > width {
		samples = samples[len(samples)-width:]
	}
	var sb strings.Builder
	sb.WriteString(strings.Repeat(" ", width-len(samples)))
	top := len(sparkLevels) - 1
	for _, v := range samples {
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		sb.WriteRune(sparkLevels[int(math.Round(v*float64(top)))])
	}
	return sb.String()
}

// Light renders an indicator lamp with its label.
func Light(label string, on bool, st theme.Styles) string {
	if on {
		return st.LightOn.Render("● " + label)
	}
	return st.LightOff.Render("○ " + label)
}

// Truncate shortens s to width cells with an ellipsis.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	return truncate.StringWithTail(s, uint(width), "…")
}

// Angle formats a needle angle, e.g. "-72°".
func Angle(deg float64) string {
	return fmt.Sprintf("%+.0f°", deg)
}
