package cli

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/redline/internal/output"
	"github.com/theirongolddev/redline/internal/tui/theme"
)

func newStatusCmd() *cobra.Command {
	var (
		timeout  time.Duration
		barWidth int
		cached   bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Refresh once and print the gauges",
		Long: `Run one refresh cycle and print every gauge, the total and the mode.

Never prompts for sign-in; run 'redline login' first. Exits non-zero when the
refresh fails, after printing the last known counts.

Examples:
  redline status
  redline status --format json | jq .total.count
  redline status --cached     # print the last counts without a refresh`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := formatter(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			var refreshErr error
			if !cached {
				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				refreshErr = a.loop.RefreshOnce(ctx)
				cancel()
			}

			channels, total := gaugeChannels(cfg)
			st := output.NewStatus(a.loop.Snapshot(), channels, total)
			err = f.Output(st, func(w io.Writer) error {
				return output.RenderStatus(w, st, output.TextOptions{
					Color:    output.IsTerminal() && !theme.NoColorEnabled(),
					BarWidth: barWidth,
				})
			})
			if err != nil {
				return err
			}
			return refreshErr
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "give up on the refresh after this long")
	cmd.Flags().IntVar(&barWidth, "width", 10, "bar width in cells (text output)")
	cmd.Flags().BoolVar(&cached, "cached", false, "skip the refresh; counts stay empty until a cycle has run")
	return cmd
}
