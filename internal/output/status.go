package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"

	"github.com/theirongolddev/redline/internal/counter"
	"github.com/theirongolddev/redline/internal/gauge"
	"github.com/theirongolddev/redline/internal/refresh"
	"github.com/theirongolddev/redline/internal/tui/theme"
	"github.com/theirongolddev/redline/internal/util"
)

// Channel describes how one gauge is labelled and scaled.
type Channel struct {
	Key        counter.Key
	Label      string
	Thresholds gauge.Thresholds
	Link       string
}

// GaugeStatus is one gauge in a status report. Count and Delta are null
// until known.
type GaugeStatus struct {
	Key     string `json:"key"`
	Label   string `json:"label"`
	Count   *int   `json:"count"`
	Delta   *int   `json:"delta"`
	Max     int    `json:"max"`
	Redline int    `json:"redline"`
	Zone    string `json:"zone,omitempty"`
	Light   bool   `json:"light"`
	Caption string `json:"caption"`
	Link    string `json:"link,omitempty"`
}

// Status is the machine-readable state of the dashboard shared by
// `redline status`, the web API and the websocket stream.
type Status struct {
	State        string        `json:"state"`
	Mode         string        `json:"mode"`
	Driver       string        `json:"driver"`
	Identity     string        `json:"identity,omitempty"`
	Channels     []GaugeStatus `json:"channels"`
	Total        GaugeStatus   `json:"total"`
	Check        bool          `json:"check"`
	Error        string        `json:"error,omitempty"`
	ErrorKind    string        `json:"error_kind,omitempty"`
	CycleID      string        `json:"cycle_id,omitempty"`
	UpdatedAt    *time.Time    `json:"updated_at"`
	LatencyMS    int64         `json:"latency_ms"`
	BaselineAt   *time.Time    `json:"baseline_at"`
	Auto         bool          `json:"auto"`
	AutoInterval string        `json:"auto_interval,omitempty"`
	AutoLabel    string        `json:"auto_label"`
}

// NewStatus builds a report from a loop snapshot.
func NewStatus(snap refresh.Snapshot, channels []Channel, total Channel) Status {
	s := Status{
		State:     snap.State.String(),
		Driver:    gauge.Placeholder,
		Identity:  snap.Identity,
		Check:     snap.State == refresh.StateError,
		Error:     snap.Error,
		ErrorKind: snap.ErrorKind,
		CycleID:   snap.CycleID,
		LatencyMS: snap.Latency.Milliseconds(),
		Auto:      snap.Auto,
		AutoLabel: AutoLabel(snap.Auto, snap.AutoInterval),
	}
	if snap.Username != "" {
		s.Driver = snap.Username
	}
	if !snap.UpdatedAt.IsZero() {
		at := snap.UpdatedAt
		s.UpdatedAt = &at
	}
	if snap.BaselineAt != nil {
		at := *snap.BaselineAt
		s.BaselineAt = &at
	}
	if snap.Auto {
		s.AutoInterval = util.FormatInterval(snap.AutoInterval)
	}

	s.Channels = make([]GaugeStatus, 0, len(channels))
	for _, ch := range channels {
		s.Channels = append(s.Channels, gaugeStatus(ch, snap, false))
	}
	total.Key = counter.TotalKey
	s.Total = gaugeStatus(total, snap, true)

	switch {
	case s.Check:
		s.Mode = string(gauge.ModeCheck)
	case snap.Counts != nil:
		s.Mode = string(gauge.ModeFor(snap.Counts.Total, total.Thresholds))
	default:
		s.Mode = string(gauge.ModeIdle)
	}
	return s
}

func gaugeStatus(ch Channel, snap refresh.Snapshot, isTotal bool) GaugeStatus {
	g := GaugeStatus{
		Key:     string(ch.Key),
		Label:   ch.Label,
		Max:     ch.Thresholds.Max,
		Redline: ch.Thresholds.Redline,
		Link:    ch.Link,
	}
	var st gauge.State
	if snap.Counts != nil {
		v := snap.Counts.Get(ch.Key)
		g.Count = &v
		g.Zone = string(ch.Thresholds.Zone(v))
		g.Light = v > 0
		st.HasValue, st.Value = true, v
	}
	if snap.Deltas != nil {
		d := snap.Deltas.Get(ch.Key)
		g.Delta = &d
		st.HasDelta, st.Delta = true, d
	}
	g.Caption = gauge.Caption(isTotal, st)
	return g
}

// AutoLabel renders the auto-refresh toggle: "AUTO: OFF" or "AUTO: 60s".
func AutoLabel(on bool, interval time.Duration) string {
	if !on {
		return "AUTO: OFF"
	}
	return "AUTO: " + util.FormatInterval(interval)
}

// TextOptions controls RenderStatus.
type TextOptions struct {
	Color    bool
	BarWidth int
	Now      time.Time
}

// RenderStatus writes a human-readable report.
func RenderStatus(w io.Writer, s Status, opts TextOptions) error {
	if opts.BarWidth <= 0 {
		opts.BarWidth = 20
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	t := theme.Plain
	if opts.Color {
		t = theme.Current()
	}
	st := theme.NewStyles(t)
	paint := func(style lipgloss.Style, text string) string {
		if !opts.Color {
			return text
		}
		return style.Render(text)
	}

	labelWidth := runewidth.StringWidth(s.Total.Label)
	for _, g := range s.Channels {
		if n := runewidth.StringWidth(g.Label); n > labelWidth {
			labelWidth = n
		}
	}

	var sb strings.Builder
	modeStyle := lipgloss.NewStyle().Bold(true).Foreground(t.ModeColor(gauge.Mode(s.Mode)))
	fmt.Fprintf(&sb, "%s  %s  driver: %s\n",
		paint(st.Title, "redline"),
		paint(modeStyle, s.Mode),
		s.Driver)

	for _, g := range s.Channels {
		sb.WriteString(statusLine(g, labelWidth, opts.BarWidth, t, paint))
	}
	sb.WriteString(statusLine(s.Total, labelWidth, opts.BarWidth, t, paint))

	updated := gauge.Placeholder
	if s.UpdatedAt != nil {
		updated = fmt.Sprintf("%s (%dms)", humanize.RelTime(*s.UpdatedAt, opts.Now, "ago", "from now"), s.LatencyMS)
	}
	fmt.Fprintf(&sb, "Updated: %s\n", updated)

	captured := gauge.Placeholder
	if s.BaselineAt != nil {
		captured = humanize.RelTime(*s.BaselineAt, opts.Now, "ago", "from now")
	}
	fmt.Fprintf(&sb, "Baseline: %s\n", captured)
	fmt.Fprintf(&sb, "%s\n", s.AutoLabel)

	if s.Check {
		fmt.Fprintf(&sb, "%s %s\n", paint(st.Error, "CHECK"), s.Error)
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func statusLine(g GaugeStatus, labelWidth, barWidth int, t theme.Theme, paint func(lipgloss.Style, string) string) string {
	light := "○"
	if g.Light {
		light = "●"
	}
	label := runewidth.FillRight(g.Label, labelWidth)

	value := gauge.Placeholder
	var fraction float64
	if g.Count != nil {
		value = fmt.Sprintf("%d", *g.Count)
		fraction = gauge.Thresholds{Max: g.Max, Redline: g.Redline}.FillFraction(*g.Count)
	}
	filled := int(fraction*float64(barWidth) + 0.5)
	bar := paint(lipgloss.NewStyle().Foreground(t.ZoneColor(gauge.Zone(g.Zone))), strings.Repeat("█", filled)) +
		paint(lipgloss.NewStyle().Foreground(t.Surface1), strings.Repeat("░", barWidth-filled))

	return fmt.Sprintf("%s %s %4s/%-4d %s  %s\n", light, label, value, g.Max, bar, g.Caption)
}
