package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/redline/internal/auth"
	"github.com/theirongolddev/redline/internal/tui/dashboard"
	"github.com/theirongolddev/redline/internal/tui/theme"
)

func newDashCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "dash",
		Aliases: []string{"dashboard"},
		Short:   "Open the gauge dashboard (default)",
		Long: `Open the interactive dashboard.

Keys:
  r  refresh now          b  set baseline to the current counts
  a  toggle auto-refresh  l  sign in         x  sign out
  d  show channel links   ?  full help       q  quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDash(cmd)
		},
	}
}

func runDash(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The provider is built before the program; nothing signs in until the
	// program exists.
	var program *tea.Program
	prompt := func(code auth.DeviceCode) {
		if program != nil {
			program.Send(dashboard.DeviceCodeMsg{Code: code})
		}
	}

	a, err := newApp(cfg, appOptions{prompt: prompt, watch: true})
	if err != nil {
		return err
	}
	defer a.Close()

	interval, err := cfg.AutoInterval()
	if err != nil {
		return err
	}
	channels, total := gaugeChannels(cfg)
	model := dashboard.New(a.loop, dashboard.Options{
		Channels:     channels,
		Total:        total,
		Kick:         kickPolicies(cfg),
		Theme:        theme.FromName(cfg.Theme),
		AutoInterval: interval,
		Context:      ctx,
		Log:          componentLogger("dashboard"),
	})
	defer model.Close()

	program = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if err := a.startAuto(); err != nil {
		return err
	}
	a.refreshIfSignedIn(ctx)

	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
