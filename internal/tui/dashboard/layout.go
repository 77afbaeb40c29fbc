package dashboard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/theirongolddev/redline/internal/counter"
	"github.com/theirongolddev/redline/internal/gauge"
	"github.com/theirongolddev/redline/internal/output"
	"github.com/theirongolddev/redline/internal/refresh"
	"github.com/theirongolddev/redline/internal/tui/components"
)

const (
	// minBoxWidth is the narrowest channel box before boxes wrap to a new row.
	minBoxWidth = 24
	margin      = "  "
)

// View implements tea.Model
func (m Model) View() string {
	st := m.Status()
	avail := m.width - len(margin)
	if avail < minBoxWidth {
		avail = minBoxWidth
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(margin + m.renderHeader(st, avail) + "\n\n")
	b.WriteString(indent(m.renderChannels(st, avail)) + "\n")
	b.WriteString(indent(m.renderTotal(st, avail)) + "\n")
	b.WriteString(margin + m.renderLights(st) + "\n")
	b.WriteString(margin + m.renderFooter(st) + "\n")
	if notice := m.renderNotice(st, avail); notice != "" {
		b.WriteString(indent(notice) + "\n")
	}
	b.WriteString("\n")
	b.WriteString(indent(m.renderHelpBar(avail)) + "\n")
	return b.String()
}

func (m Model) renderHeader(st output.Status, width int) string {
	t := m.theme

	title := m.styles.Header.Render("REDLINE")

	var state string
	switch m.snap.State {
	case refresh.StatePulling:
		state = m.spinner.View() + " " + m.styles.Info.Render("PULLING")
	case refresh.StateLive:
		state = m.styles.Success.Render("● LIVE")
	case refresh.StateError:
		state = m.styles.Error.Render("● ERROR")
	default:
		state = m.styles.Dim.Render("○ IDLE")
	}

	mode := lipgloss.NewStyle().
		Bold(true).
		Foreground(t.ModeColor(gauge.Mode(st.Mode))).
		Render(st.Mode)

	left := title + "  " + state + "  " + mode
	right := m.styles.Dim.Render("driver: ") + m.styles.Normal.Render(st.Driver)

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 2 {
		return left + "  " + right
	}
	return left + strings.Repeat(" ", gap) + right
}

// renderChannels lays the channel boxes out in as few rows as fit.
func (m Model) renderChannels(st output.Status, width int) string {
	n := len(st.Channels)
	if n == 0 {
		return ""
	}
	perRow := width / minBoxWidth
	if perRow < 1 {
		perRow = 1
	}
	if perRow > n {
		perRow = n
	}
	boxWidth := width / perRow

	var rows []string
	for start := 0; start < n; start += perRow {
		end := start + perRow
		if end > n {
			end = n
		}
		boxes := make([]string, 0, end-start)
		for _, g := range st.Channels[start:end] {
			boxes = append(boxes, m.renderGaugeBox(g, boxWidth, ""))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) renderTotal(st output.Status, width int) string {
	return m.renderGaugeBox(st.Total, width, st.Mode)
}

// renderGaugeBox draws one gauge: title and value, needle and fill rows,
// waveform, baseline caption and, when toggled, the channel link.
func (m Model) renderGaugeBox(g output.GaugeStatus, width int, mode string) string {
	t := m.theme
	inner := width - 4
	if inner < 8 {
		inner = 8
	}

	state, _ := m.GaugeState(counter.Key(g.Key))
	isTotal := counter.Key(g.Key) == counter.TotalKey

	label := m.styles.BoxTitle.Render(components.Truncate(g.Label, inner/2))
	if mode != "" {
		label += " " + lipgloss.NewStyle().Bold(true).Foreground(t.ModeColor(gauge.Mode(mode))).Render(mode)
	}
	value := lipgloss.NewStyle().Bold(true).Foreground(t.ZoneColor(state.Zone)).Render(gauge.ValueText(state))
	angle := m.styles.Dim.Render(components.Angle(state.Angle))
	right := angle + " " + value
	gap := inner - lipgloss.Width(label) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	lines := []string{label + strings.Repeat(" ", gap) + right}

	bar := components.GaugeBar{Width: inner, State: state, Theme: t}
	lines = append(lines, strings.Split(bar.View(), "\n")...)

	waveWidth := m.waveWidth
	if waveWidth > inner {
		waveWidth = inner
	}
	lines = append(lines, m.styles.Wave.Render(components.Sparkline(m.gauges[counter.Key(g.Key)].Wave().Samples(), waveWidth)))

	lines = append(lines, m.styles.Dim.Render(components.Truncate(gauge.Caption(isTotal, state), inner)))
	if m.showLinks && g.Link != "" {
		lines = append(lines, m.styles.Link.Render(components.Truncate(g.Link, inner)))
	}

	box := m.styles.Box.Copy().Width(width - 2)
	if state.Zone == gauge.ZoneCritical {
		box = box.BorderForeground(t.Error)
	}
	return box.Render(strings.Join(lines, "\n"))
}

func (m Model) renderLights(st output.Status) string {
	parts := make([]string, 0, len(st.Channels)+1)
	for _, g := range st.Channels {
		parts = append(parts, components.Light(strings.ToUpper(g.Label), g.Light, m.styles))
	}
	parts = append(parts, components.Light("CHECK", st.Check, m.styles))
	return strings.Join(parts, "  ")
}

func (m Model) renderFooter(st output.Status) string {
	interval := m.snap.AutoInterval
	if !m.snap.Auto {
		interval = 0
	}
	parts := []string{
		components.RenderFreshnessIndicator(components.FreshnessOptions{
			LastUpdate:      m.snap.UpdatedAt,
			RefreshInterval: interval,
			Now:             m.now(),
			Theme:           m.theme,
		}),
	}
	if st.UpdatedAt != nil {
		parts[0] += m.styles.Dim.Render(fmt.Sprintf(" (%dms)", st.LatencyMS))
	}

	baseline := gauge.Placeholder
	if st.BaselineAt != nil {
		baseline = components.Age(*st.BaselineAt, m.now())
	}
	parts = append(parts,
		m.styles.Dim.Render("Baseline: "+baseline),
		m.styles.Bold.Render(st.AutoLabel),
	)
	return strings.Join(parts, m.styles.Dim.Render(" · "))
}

// renderNotice shows, in order of priority, a pending device code, a
// recent action result or the last refresh error.
func (m Model) renderNotice(st output.Status, width int) string {
	if m.deviceCode != nil {
		url := m.deviceCode.VerificationURI
		if m.deviceCode.VerificationURIComplete != "" {
			url = m.deviceCode.VerificationURIComplete
		}
		text := fmt.Sprintf("To sign in, open %s and enter %s", url, m.deviceCode.UserCode)
		return m.styles.Info.Render(wordwrap.String(text, width))
	}
	if m.flash != "" && m.now().Before(m.flashUntil) {
		style := m.styles.Success
		if m.flashErr {
			style = m.styles.Error
		}
		return style.Render(wordwrap.String(m.flash, width))
	}
	if st.Check && st.Error != "" {
		return m.styles.Error.Render(wordwrap.String("CHECK: "+st.Error, width))
	}
	return ""
}

func (m Model) renderHelpBar(width int) string {
	if m.help.ShowAll {
		return m.help.View(m.keys)
	}
	return components.RenderHelpBar(components.HelpBarOptions{
		Hints:  components.HintsFromBindings(m.keys.ShortHelp()...),
		Width:  width,
		Styles: m.styles,
	})
}

func indent(block string) string {
	if block == "" {
		return ""
	}
	lines := strings.Split(block, "\n")
	for i, l := range lines {
		lines[i] = margin + l
	}
	return strings.Join(lines, "\n")
}
