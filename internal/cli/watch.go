package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/redline/internal/counter"
	"github.com/theirongolddev/redline/internal/events"
	"github.com/theirongolddev/redline/internal/output"
	"github.com/theirongolddev/redline/internal/util"
)

func newWatchCmd() *cobra.Command {
	var interval string

	cmd := &cobra.Command{
		Use:     "watch",
		Aliases: []string{"w"},
		Short:   "Refresh on a timer and stream every event",
		Long: `Refresh on a timer and print one line per event: refreshes, failures,
baseline changes and sign-in changes.

JSON output is one object per line, for piping into other tools.

Examples:
  redline watch
  redline watch --interval 30s --format json | jq -c 'select(.type=="refresh_completed")'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := output.DetectFormat(formatFlag)
			if err != nil {
				return err
			}
			every, err := cfg.AutoInterval()
			if err != nil {
				return err
			}
			if interval != "" {
				if every, err = util.ParseInterval(interval, time.Second); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cfg, appOptions{prompt: stderrPrompt(cmd), watch: true})
			if err != nil {
				return err
			}
			defer a.Close()

			var unsubscribe events.UnsubscribeFunc
			if format == output.FormatText {
				unsubscribe = streamText(a.loop.Bus(), cmd.OutOrStdout())
			} else {
				unsubscribe = a.loop.Bus().StreamJSON(cmd.OutOrStdout())
			}
			defer unsubscribe()

			if err := a.loop.StartAutoRefresh(every); err != nil {
				return err
			}
			if err := a.loop.RefreshOnce(ctx); err != nil {
				a.log.WithError(err).Debug("first refresh failed")
			}

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&interval, "interval", "", "refresh interval, e.g. 30s or 5m (default from config)")
	return cmd
}

// streamText prints one readable line per event.
func streamText(bus *events.EventBus, w io.Writer) events.UnsubscribeFunc {
	var mu sync.Mutex
	return bus.SubscribeAll(func(e events.BusEvent) {
		line := describeEvent(e)
		if line == "" {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "%s  %-18s %s\n", e.EventTimestamp().Local().Format("15:04:05"), e.EventType(), line)
	})
}

func describeEvent(e events.BusEvent) string {
	switch ev := e.(type) {
	case events.RefreshStartedEvent:
		return ""
	case events.RefreshCompletedEvent:
		s := fmt.Sprintf("total=%d", ev.Counts.Total)
		for _, ch := range cfg.Channels {
			s += fmt.Sprintf(" %s=%d", ch.Key, ev.Counts.Get(counter.Key(ch.Key)))
		}
		if ev.Deltas != nil {
			s += " since baseline " + counter.FormatDelta(ev.Deltas.Total)
		}
		return s + fmt.Sprintf(" (%dms)", ev.LatencyMS)
	case events.RefreshFailedEvent:
		return fmt.Sprintf("CHECK %s: %s", ev.Kind, ev.Error)
	case events.BaselineEvent:
		if ev.CapturedAt.IsZero() {
			return "cleared"
		}
		return "captured " + ev.CapturedAt.Local().Format("2006-01-02 15:04:05")
	case events.AccountEvent:
		if ev.Username != "" {
			return ev.Username
		}
		return ev.Identity
	case events.AutoRefreshEvent:
		return output.AutoLabel(ev.Enabled, parseEventInterval(ev.Interval))
	}
	return e.EventType()
}

func parseEventInterval(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
