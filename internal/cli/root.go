// Package cli implements the redline command line.
package cli

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/redline/internal/config"
	"github.com/theirongolddev/redline/internal/logging"
	"github.com/theirongolddev/redline/internal/output"
)

var (
	cfgFile    string
	formatFlag string
	cfg        *config.Config
	logger     *logging.Logger

	// Build information - set by goreleaser via ldflags
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
	BuiltBy = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "redline",
	Short: "Unread-mail gauges for your inbox and alert folders",
	Long: `redline polls Microsoft Graph for unread counts in your inbox and alert
folders and shows them as gauges, with a total and deltas since a baseline.

Quick Start:
  redline config init        # Write the default config
  redline login              # Sign in with a device code
  redline                    # Open the dashboard
  redline status --format json`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := output.DetectFormat(formatFlag); err != nil {
			return err
		}
		if canSkipConfigLoading(cmd) {
			return nil
		}
		if err := config.LoadEnvFile(); err != nil {
			return err
		}

		loaded, err := config.Load(cfgFile)
		if err != nil {
			return output.NewCLIError(err.Error()).WithCode("CONFIG").WithHint(output.HintConfigInvalid)
		}
		if err := loaded.Validate(); err != nil && !isConfigShow(cmd) {
			return output.NewCLIError(err.Error()).WithCode("CONFIG").WithHint(output.HintConfigInvalid)
		}
		cfg = loaded

		// The dashboard owns the terminal; everything else mirrors warnings
		// to stderr.
		var console io.Writer = os.Stderr
		if isDashboard(cmd) {
			console = nil
		}
		l, err := logging.New(cfg.Log, console)
		if err != nil {
			return fmt.Errorf("setting up logging: %w", err)
		}
		logger = l
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDash(cmd)
	},
}

// Execute runs the root command and prints any error once.
func Execute() error {
	err := rootCmd.Execute()
	if logger != nil {
		logger.Close()
	}
	if err != nil {
		format, ferr := output.DetectFormat(formatFlag)
		if ferr != nil {
			format = output.FormatText
		}
		output.PrintError(os.Stdout, err, format)
		return err
	}
	return nil
}

// canSkipConfigLoading reports commands that must work with a missing or
// broken config file.
func canSkipConfigLoading(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "version", "help", "completion":
		return true
	case "init", "path":
		return cmd.Parent() != nil && cmd.Parent().Name() == "config"
	}
	return false
}

func isConfigShow(cmd *cobra.Command) bool {
	return cmd.Name() == "show" && cmd.Parent() != nil && cmd.Parent().Name() == "config"
}

func isDashboard(cmd *cobra.Command) bool {
	return cmd == cmd.Root() || cmd.Name() == "dash"
}

// goVersion returns the current Go runtime version.
func goVersion() string {
	return runtime.Version()
}

// goPlatform returns the OS/ARCH string.
func goPlatform() string {
	return fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)
}

func formatter(cmd *cobra.Command) (*output.Formatter, error) {
	format, err := output.DetectFormat(formatFlag)
	if err != nil {
		return nil, err
	}
	return output.New(output.WithFormat(format), output.WithWriter(cmd.OutOrStdout()), output.WithPretty(true)), nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.config/redline/config.toml)")
	rootCmd.PersistentFlags().StringVar(&formatFlag, "format", "", "output format: text, json or yaml (default text on a terminal, json otherwise)")

	rootCmd.AddCommand(
		newDashCmd(),
		newStatusCmd(),
		newBaselineCmd(),
		newServeCmd(),
		newLoginCmd(),
		newLogoutCmd(),
		newWatchCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
}
