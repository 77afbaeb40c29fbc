// Package gauge holds the per-channel render state behind the dashboard
// gauges: fill fraction, needle angle, color zone, a damped needle, a
// decaying kick and a waveform buffer. Drawing lives in the surfaces.
package gauge

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	// ReferenceFrame is the tick length the per-frame constants are tuned for.
	ReferenceFrame = time.Second / 60

	// Damping is the fraction of the remaining distance the needle covers
	// per reference frame.
	Damping = 0.35

	// KickDecay is the kick multiplier applied per reference frame.
	KickDecay = 0.90

	// KickBase is the minimum magnitude of a kick.
	KickBase = 0.2

	// MaxAngle is the needle sweep either side of vertical, in degrees.
	MaxAngle = 120.0

	// DefaultWaveSamples is the waveform buffer capacity.
	DefaultWaveSamples = 64

	// Placeholder is shown where no value is available yet.
	Placeholder = "—"

	warnRatio = 0.6
	busyRatio = 0.55
)

// Zone is a color band.
type Zone string

const (
	ZoneNone     Zone = ""
	ZoneNormal   Zone = "normal"
	ZoneWarning  Zone = "warning"
	ZoneCritical Zone = "critical"
)

// Thresholds are the static scale of a gauge.
type Thresholds struct {
	Max     int `json:"max" toml:"max"`
	Redline int `json:"redline" toml:"redline"`
}

// WarnAt is the first value in the warning zone: ceil(60% of redline).
func (t Thresholds) WarnAt() int {
	return int(math.Ceil(float64(t.Redline) * warnRatio))
}

// BusyAt is the first value labelled BUSY: ceil(55% of redline).
func (t Thresholds) BusyAt() int {
	return int(math.Ceil(float64(t.Redline) * busyRatio))
}

// FillFraction maps v onto 0..1 of the scale.
func (t Thresholds) FillFraction(v int) float64 {
	scale := t.Max
	if scale < 1 {
		scale = 1
	}
	return clamp(float64(v)/float64(scale), 0, 1)
}

// Zone returns the color band for v.
func (t Thresholds) Zone(v int) Zone {
	switch {
	case v >= t.Redline:
		return ZoneCritical
	case v >= t.WarnAt():
		return ZoneWarning
	default:
		return ZoneNormal
	}
}

// NeedleAngle maps a fill fraction to degrees, -MaxAngle at empty and
// +MaxAngle at full.
func NeedleAngle(fraction float64) float64 {
	return -MaxAngle + clamp(fraction, 0, 1)*2*MaxAngle
}

// Mode is the headline label of the total gauge.
type Mode string

const (
	ModeIdle    Mode = "IDLE"
	ModeActive  Mode = "ACTIVE"
	ModeBusy    Mode = "BUSY"
	ModeRedline Mode = "REDLINE"
	// ModeCheck is shown after a failed refresh.
	ModeCheck Mode = "CHECK"
)

// ModeFor labels a total against the total gauge's thresholds.
func ModeFor(total int, t Thresholds) Mode {
	switch {
	case total >= t.Redline:
		return ModeRedline
	case total >= t.BusyAt():
		return ModeBusy
	case total > 0:
		return ModeActive
	default:
		return ModeIdle
	}
}

// Caption is the baseline line under a gauge: "Since baseline: +3" for a
// channel, "New since baseline: +3" for the total, with the placeholder
// when no baseline exists.
func Caption(total bool, s State) string {
	prefix := "Since baseline: "
	if total {
		prefix = "New since baseline: "
	}
	if !s.HasDelta {
		return prefix + Placeholder
	}
	if s.Delta > 0 {
		return fmt.Sprintf("%s+%d", prefix, s.Delta)
	}
	return fmt.Sprintf("%s%d", prefix, s.Delta)
}

// ValueText is the big number of a gauge, or the placeholder.
func ValueText(s State) string {
	if !s.HasValue {
		return Placeholder
	}
	return fmt.Sprintf("%d", s.Value)
}

// KickPolicy decides which count changes kick the needle.
type KickPolicy int

const (
	// KickSpike kicks on increases only.
	KickSpike KickPolicy = iota
	// KickDirectional also kicks (negatively) on decreases.
	KickDirectional
)

func (p KickPolicy) String() string {
	if p == KickDirectional {
		return "directional"
	}
	return "spike"
}

// ParseKickPolicy parses "spike" (or "") and "directional".
func ParseKickPolicy(s string) (KickPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "spike":
		return KickSpike, nil
	case "directional":
		return KickDirectional, nil
	default:
		return KickSpike, fmt.Errorf("unknown kick policy %q (expected spike or directional)", s)
	}
}

// State is a read-only copy of a gauge for rendering.
type State struct {
	HasValue bool    `json:"has_value"`
	Value    int     `json:"value"`
	HasDelta bool    `json:"has_delta"`
	Delta    int     `json:"delta"`
	Fraction float64 `json:"fraction"`
	Position float64 `json:"position"`
	Angle    float64 `json:"angle"`
	Kick     float64 `json:"kick"`
	Zone     Zone    `json:"zone"`
	Light    bool    `json:"light"`
	Max      int     `json:"max"`
	Redline  int     `json:"redline"`
}

// Gauge is the animated state of one channel. It is not safe for concurrent
// use; the render loop owns it.
type Gauge struct {
	thresholds Thresholds
	policy     KickPolicy

	hasValue bool
	value    int
	hasDelta bool
	delta    int

	position float64
	kick     float64
	phase    float64
	wave     *Wave
}

// New creates a gauge. The kick policy is fixed for the gauge's lifetime.
func New(t Thresholds, policy KickPolicy) *Gauge {
	return &Gauge{
		thresholds: t,
		policy:     policy,
		wave:       NewWave(DefaultWaveSamples),
	}
}

// Thresholds returns the gauge's scale.
func (g *Gauge) Thresholds() Thresholds { return g.thresholds }

// Policy returns the gauge's kick policy.
func (g *Gauge) Policy() KickPolicy { return g.policy }

// Update sets a new displayed value. delta is nil when no baseline exists.
// The first value after New or Reset never kicks.
func (g *Gauge) Update(value int, delta *int) {
	if g.hasValue {
		change := value - g.value
		switch {
		case change > 0:
			g.kick = g.kickFor(change)
		case change < 0 && g.policy == KickDirectional:
			g.kick = -g.kickFor(-change)
		}
	}
	g.hasValue = true
	g.value = value
	g.hasDelta = delta != nil
	g.delta = 0
	if delta != nil {
		g.delta = *delta
	}
}

func (g *Gauge) kickFor(change int) float64 {
	red := g.thresholds.Redline
	if red < 1 {
		red = 1
	}
	return math.Min(1, KickBase+float64(change)/float64(red))
}

// Tick advances the animation by dt: the needle eases toward the target
// fraction, the kick decays and one waveform sample is appended.
func (g *Gauge) Tick(dt time.Duration) {
	if dt <= 0 {
		return
	}
	frames := float64(dt) / float64(ReferenceFrame)

	target := 0.0
	if g.hasValue {
		target = g.thresholds.FillFraction(g.value)
	}
	alpha := 1 - math.Pow(1-Damping, frames)
	g.position += (target - g.position) * alpha

	g.kick *= math.Pow(KickDecay, frames)
	if math.Abs(g.kick) < 1e-4 {
		g.kick = 0
	}

	// 1.5 Hz carrier; amplitude grows with load.
	g.phase = math.Mod(g.phase+2*math.Pi*1.5*dt.Seconds(), 2*math.Pi)
	amp := 0.02 + 0.08*g.position
	g.wave.Push(clamp(g.position+amp*math.Sin(g.phase)+g.kick, 0, 1))
}

// State returns the current render state.
func (g *Gauge) State() State {
	s := State{
		HasValue: g.hasValue,
		HasDelta: g.hasDelta,
		Position: g.position,
		Angle:    NeedleAngle(g.position),
		Kick:     g.kick,
		Max:      g.thresholds.Max,
		Redline:  g.thresholds.Redline,
	}
	if g.hasValue {
		s.Value = g.value
		s.Delta = g.delta
		s.Fraction = g.thresholds.FillFraction(g.value)
		s.Zone = g.thresholds.Zone(g.value)
		s.Light = g.value > 0
	}
	return s
}

// Wave returns the gauge's waveform buffer.
func (g *Gauge) Wave() *Wave { return g.wave }

// Reset returns the gauge to its never-displayed state.
func (g *Gauge) Reset() {
	g.hasValue = false
	g.value = 0
	g.hasDelta = false
	g.delta = 0
	g.position = 0
	g.kick = 0
	g.phase = 0
	g.wave.Reset()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
