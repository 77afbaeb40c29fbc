// Package dashboard is the interactive terminal surface: animated gauges
// for every channel and the total, indicator lights and session controls.
package dashboard

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/theirongolddev/redline/internal/auth"
	"github.com/theirongolddev/redline/internal/counter"
	"github.com/theirongolddev/redline/internal/events"
	"github.com/theirongolddev/redline/internal/gauge"
	"github.com/theirongolddev/redline/internal/output"
	"github.com/theirongolddev/redline/internal/refresh"
	"github.com/theirongolddev/redline/internal/tui/theme"
)

const (
	// DefaultTickInterval is the animation frame length.
	DefaultTickInterval = 50 * time.Millisecond

	// DefaultWaveWidth is the sparkline width in cells.
	DefaultWaveWidth = 24

	// maxFrameGap caps dt after a stall so gauges do not jump.
	maxFrameGap = 250 * time.Millisecond

	// flashDuration is how long an action result stays on screen.
	flashDuration = 4 * time.Second
)

// Session is the part of refresh.Loop the dashboard drives.
type Session interface {
	Snapshot() refresh.Snapshot
	RefreshOnce(ctx context.Context) error
	SetBaselineFromCurrent() (counter.Snapshot, error)
	ToggleAutoRefresh(interval time.Duration) (bool, error)
	SignIn(ctx context.Context) error
	SignOut(ctx context.Context) error
	Subscribe(fn events.EventHandler) events.UnsubscribeFunc
}

// AnimTickMsg advances the gauge animation.
type AnimTickMsg time.Time

// SnapshotMsg carries the session state after a published event.
type SnapshotMsg struct {
	Snapshot refresh.Snapshot
}

// ActionResultMsg reports the outcome of a key-triggered action.
type ActionResultMsg struct {
	Action string
	Text   string
	Err    error
}

// DeviceCodeMsg asks the user to complete sign-in in a browser.
type DeviceCodeMsg struct {
	Code auth.DeviceCode
}

// Options configures the dashboard.
type Options struct {
	Channels     []output.Channel
	Total        output.Channel
	Kick         map[counter.Key]gauge.KickPolicy
	Theme        theme.Theme
	AutoInterval time.Duration
	Context      context.Context
	Log          *logrus.Entry
	Now          func() time.Time
}

// Model is the dashboard's bubbletea model.
type Model struct {
	session Session
	opts    Options
	ctx     context.Context
	log     *logrus.Entry
	now     func() time.Time

	theme   theme.Theme
	styles  theme.Styles
	keys    KeyMap
	help    help.Model
	spinner spinner.Model

	gauges map[counter.Key]*gauge.Gauge
	snap   refresh.Snapshot

	updates     chan struct{}
	unsubscribe events.UnsubscribeFunc

	width        int
	height       int
	tickInterval time.Duration
	waveWidth    int
	lastTick     time.Time
	showLinks    bool

	flash      string
	flashErr   bool
	flashUntil time.Time
	deviceCode *auth.DeviceCode
}

// KeyMap defines dashboard keybindings
type KeyMap struct {
	Refresh  key.Binding
	Baseline key.Binding
	Auto     key.Binding
	SignIn   key.Binding
	SignOut  key.Binding
	Links    key.Binding
	Help     key.Binding
	Quit     key.Binding
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Refresh, k.Baseline, k.Auto, k.SignIn, k.SignOut, k.Links, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Refresh, k.Baseline, k.Auto},
		{k.SignIn, k.SignOut},
		{k.Links, k.Help, k.Quit},
	}
}

var dashKeys = KeyMap{
	Refresh:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Baseline: key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "set baseline")),
	Auto:     key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "auto-refresh")),
	SignIn:   key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "sign in")),
	SignOut:  key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "sign out")),
	Links:    key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "links")),
	Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:     key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
}

// New creates a dashboard over session and subscribes to its events.
// Call Close when the program exits.
func New(session Session, opts Options) Model {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Total.Key == "" {
		opts.Total.Key = counter.TotalKey
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = sp.Style.Foreground(opts.Theme.Primary)

	m := Model{
		session:      session,
		opts:         opts,
		ctx:          opts.Context,
		log:          opts.Log.WithField("component", "dashboard"),
		now:          opts.Now,
		theme:        opts.Theme,
		styles:       theme.NewStyles(opts.Theme),
		keys:         dashKeys,
		help:         help.New(),
		spinner:      sp,
		gauges:       make(map[counter.Key]*gauge.Gauge, len(opts.Channels)+1),
		updates:      make(chan struct{}, 1),
		width:        80,
		height:       24,
		tickInterval: DefaultTickInterval,
		waveWidth:    DefaultWaveWidth,
	}
	applyDashboardEnvOverrides(&m)

	for _, ch := range opts.Channels {
		m.gauges[ch.Key] = gauge.New(ch.Thresholds, opts.Kick[ch.Key])
	}
	m.gauges[counter.TotalKey] = gauge.New(opts.Total.Thresholds, opts.Kick[counter.TotalKey])

	updates := m.updates
	m.unsubscribe = session.Subscribe(func(events.BusEvent) {
		select {
		case updates <- struct{}{}:
		default:
		}
	})
	m.applySnapshot(session.Snapshot())
	return m
}

// Close unsubscribes from the session.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.tick(),
		m.spinner.Tick,
		m.waitForUpdate(),
	)
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.tickInterval, func(t time.Time) tea.Msg {
		return AnimTickMsg(t)
	})
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case AnimTickMsg:
		m.advance(time.Time(msg))
		return m, m.tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case SnapshotMsg:
		m.applySnapshot(msg.Snapshot)
		return m, m.waitForUpdate()

	case DeviceCodeMsg:
		code := msg.Code
		m.deviceCode = &code
		return m, nil

	case ActionResultMsg:
		m.showResult(msg)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Refresh):
		return m, m.refreshCmd()

	case key.Matches(msg, m.keys.Baseline):
		return m, m.baselineCmd()

	case key.Matches(msg, m.keys.Auto):
		return m, m.autoCmd()

	case key.Matches(msg, m.keys.SignIn):
		return m, m.signInCmd()

	case key.Matches(msg, m.keys.SignOut):
		return m, m.signOutCmd()

	case key.Matches(msg, m.keys.Links):
		m.showLinks = !m.showLinks
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	}
	return m, nil
}

// advance steps every gauge by the time since the last frame.
func (m *Model) advance(now time.Time) {
	if m.lastTick.IsZero() {
		m.lastTick = now
		return
	}
	dt := now.Sub(m.lastTick)
	m.lastTick = now
	if dt > maxFrameGap {
		dt = maxFrameGap
	}
	for _, g := range m.gauges {
		g.Tick(dt)
	}
}

// applySnapshot feeds new counts to the gauges. Gauges reset when the
// session has no counts (before the first refresh or after sign-out).
func (m *Model) applySnapshot(snap refresh.Snapshot) {
	m.snap = snap
	if snap.SignedIn() {
		m.deviceCode = nil
	}
	if snap.Counts == nil {
		for _, g := range m.gauges {
			g.Reset()
		}
		return
	}
	for k, g := range m.gauges {
		var delta *int
		if snap.Deltas != nil {
			d := snap.Deltas.Get(k)
			delta = &d
		}
		g.Update(snap.Counts.Get(k), delta)
	}
}

func (m *Model) showResult(msg ActionResultMsg) {
	m.flashUntil = m.now().Add(flashDuration)
	m.flashErr = msg.Err != nil
	if msg.Err != nil {
		m.flash = msg.Action + " failed: " + msg.Err.Error()
		if hint := output.Classify(msg.Err).Hint; hint != "" {
			m.flash += " (" + hint + ")"
		}
		if msg.Action == "sign in" {
			m.deviceCode = nil
		}
		return
	}
	m.flash = msg.Text
}

// Status returns the report the view is drawn from.
func (m Model) Status() output.Status {
	return output.NewStatus(m.snap, m.opts.Channels, m.opts.Total)
}

// GaugeState returns the animated state of one gauge.
func (m Model) GaugeState(k counter.Key) (gauge.State, bool) {
	g, ok := m.gauges[k]
	if !ok {
		return gauge.State{}, false
	}
	return g.State(), true
}
