package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/redline/internal/baseline"
	"github.com/theirongolddev/redline/internal/config"
	"github.com/theirongolddev/redline/internal/counter"
	"github.com/theirongolddev/redline/internal/gauge"
)

// baselineReport is the output of the baseline subcommands.
type baselineReport struct {
	Identity   string         `json:"identity"`
	CapturedAt *time.Time     `json:"captured_at"`
	Counts     map[string]int `json:"counts"`
	Total      *int           `json:"total"`
}

// newBaselineReport reports snap over the configured channels. Stored
// counts for channels no longer configured are left out of the total.
func newBaselineReport(identity string, snap *counter.Snapshot, channels []config.ChannelConfig) baselineReport {
	if identity == "" {
		identity = baseline.AnonymousIdentity
	}
	r := baselineReport{Identity: identity}
	if snap == nil {
		return r
	}
	at := snap.CapturedAt
	r.CapturedAt = &at
	r.Counts = make(map[string]int, len(channels))
	total := 0
	for _, ch := range channels {
		v := snap.Counts[counter.Key(ch.Key)]
		r.Counts[ch.Key] = v
		total += v
	}
	r.Total = &total
	return r
}

func renderBaseline(w io.Writer, r baselineReport, now time.Time) error {
	if r.CapturedAt == nil {
		_, err := fmt.Fprintf(w, "No baseline for %s\n", r.Identity)
		return err
	}
	fmt.Fprintf(w, "Baseline for %s captured %s (%s)\n",
		r.Identity,
		humanize.RelTime(*r.CapturedAt, now, "ago", "from now"),
		r.CapturedAt.Local().Format("2006-01-02 15:04:05"))
	for _, ch := range cfg.Channels {
		fmt.Fprintf(w, "  %-10s %d\n", cfg.Label(counter.Key(ch.Key)), r.Counts[ch.Key])
	}
	_, err := fmt.Fprintf(w, "  %-10s %d\n", cfg.Label(counter.TotalKey), *r.Total)
	return err
}

func newBaselineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Show, set or clear the baseline deltas are measured from",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the stored baseline for the signed-in account",
		Args:  cobra.NoArgs,
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

			snap := a.loop.Snapshot()
			r := newBaselineReport(snap.Identity, snap.Baseline, cfg.Channels)
			return f.Output(r, func(w io.Writer) error {
				return renderBaseline(w, r, time.Now())
			})
		},
	})

	var timeout time.Duration
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Refresh, then store the current counts as the baseline",
		Args:  cobra.NoArgs,
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

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			err = a.loop.RefreshOnce(ctx)
			cancel()
			if err != nil {
				return err
			}
			captured, err := a.loop.SetBaselineFromCurrent()
			if err != nil {
				return err
			}

			r := newBaselineReport(a.loop.Snapshot().Identity, &captured, cfg.Channels)
			return f.Output(r, func(w io.Writer) error {
				return renderBaseline(w, r, time.Now())
			})
		},
	}
	setCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "give up on the refresh after this long")
	cmd.AddCommand(setCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete the stored baseline for the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.loop.ClearBaseline(); err != nil {
				return err
			}
			identity := a.loop.Snapshot().Identity
			if identity == "" {
				identity = baseline.AnonymousIdentity
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Baseline cleared for %s (deltas show %s)\n", identity, gauge.Placeholder)
			return nil
		},
	})
	return cmd
}
