package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/redline/internal/auth"
	"github.com/theirongolddev/redline/internal/server"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the gauges over HTTP and websocket",
		Long: `Serve a status page, a JSON API and a websocket stream of state.

Endpoints:
  GET  /             status page
  GET  /healthz      liveness
  GET  /api/state    current state
  POST /api/refresh  refresh now
  POST /api/baseline set baseline
  POST /api/auto     {"enabled": true, "interval": "60s"}
  GET  /ws           state on every change

Device codes for sign-in are printed to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cfg, appOptions{prompt: stderrPrompt(cmd), watch: true})
			if err != nil {
				return err
			}
			defer a.Close()

			interval, err := cfg.AutoInterval()
			if err != nil {
				return err
			}
			channels, total := gaugeChannels(cfg)
			srv := server.New(a.loop, server.Options{
				Channels:     channels,
				Total:        total,
				AutoInterval: interval,
				Log:          componentLogger("server"),
			})
			defer srv.Close()

			if err := a.startAuto(); err != nil {
				return err
			}
			a.refreshIfSignedIn(ctx)

			if addr == "" {
				addr = cfg.Server.Addr
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Serving on http://%s\n", addr)
			return srv.Run(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, 127.0.0.1:8787)")
	return cmd
}

// stderrPrompt prints device codes for commands without a dashboard.
func stderrPrompt(cmd *cobra.Command) auth.PromptFunc {
	w := cmd.ErrOrStderr()
	return func(code auth.DeviceCode) {
		url := code.VerificationURI
		if code.VerificationURIComplete != "" {
			url = code.VerificationURIComplete
		}
		fmt.Fprintf(w, "To sign in, open %s and enter %s\n", url, code.UserCode)
	}
}

