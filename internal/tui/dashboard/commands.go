package dashboard

import (
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/theirongolddev/redline/internal/output"
	"github.com/theirongolddev/redline/internal/refresh"
	"github.com/theirongolddev/redline/internal/util"
)

// waitForUpdate blocks until the session publishes, then reads its state.
// Bursts of events collapse into one snapshot.
func (m Model) waitForUpdate() tea.Cmd {
	updates := m.updates
	session := m.session
	ctx := m.ctx
	return func() tea.Msg {
		select {
		case <-updates:
			return SnapshotMsg{Snapshot: session.Snapshot()}
		case <-ctx.Done():
			return nil
		}
	}
}

// refreshCmd runs one cycle. While signed out the provider's interactive
// fallback starts sign-in.
func (m Model) refreshCmd() tea.Cmd {
	session := m.session
	ctx := m.ctx
	log := m.log
	return func() tea.Msg {
		err := session.RefreshOnce(ctx)
		switch {
		case errors.Is(err, refresh.ErrBusy):
			return ActionResultMsg{Action: "refresh", Text: "Refresh already in progress"}
		case errors.Is(err, refresh.ErrStale):
			return ActionResultMsg{Action: "refresh", Text: "Signed out during refresh"}
		case err != nil:
			log.WithError(err).Debug("refresh from keyboard failed")
			return ActionResultMsg{Action: "refresh", Err: err}
		}
		return ActionResultMsg{Action: "refresh", Text: "Refreshed"}
	}
}

// baselineCmd captures the displayed counts as the baseline.
func (m Model) baselineCmd() tea.Cmd {
	session := m.session
	return func() tea.Msg {
		snap, err := session.SetBaselineFromCurrent()
		if err != nil {
			return ActionResultMsg{Action: "baseline", Err: err}
		}
		return ActionResultMsg{
			Action: "baseline",
			Text:   "Baseline set at " + snap.CapturedAt.Local().Format("15:04:05"),
		}
	}
}

// autoCmd toggles auto-refresh at the configured interval.
func (m Model) autoCmd() tea.Cmd {
	session := m.session
	interval := m.opts.AutoInterval
	return func() tea.Msg {
		on, err := session.ToggleAutoRefresh(interval)
		if err != nil {
			return ActionResultMsg{Action: "auto-refresh", Err: err}
		}
		if on {
			return ActionResultMsg{Action: "auto-refresh", Text: "Auto-refresh every " + util.FormatInterval(interval)}
		}
		return ActionResultMsg{Action: "auto-refresh", Text: output.AutoLabel(false, 0)}
	}
}

func (m Model) signInCmd() tea.Cmd {
	session := m.session
	ctx := m.ctx
	return func() tea.Msg {
		if err := session.SignIn(ctx); err != nil {
			return ActionResultMsg{Action: "sign in", Err: err}
		}
		return ActionResultMsg{Action: "sign in", Text: "Signed in"}
	}
}

func (m Model) signOutCmd() tea.Cmd {
	session := m.session
	ctx := m.ctx
	return func() tea.Msg {
		if err := session.SignOut(ctx); err != nil {
			return ActionResultMsg{Action: "sign out", Err: err}
		}
		return ActionResultMsg{Action: "sign out", Text: "Signed out"}
	}
}
