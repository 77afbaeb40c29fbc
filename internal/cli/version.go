package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuiltAt   string `json:"built_at"`
	BuiltBy   string `json:"built_by"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func newVersionCmd() *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if short {
				fmt.Fprintln(cmd.OutOrStdout(), Version)
				return nil
			}
			f, err := formatter(cmd)
			if err != nil {
				return err
			}
			info := versionInfo{
				Version:   Version,
				Commit:    Commit,
				BuiltAt:   Date,
				BuiltBy:   BuiltBy,
				GoVersion: goVersion(),
				Platform:  goPlatform(),
			}
			return f.Output(info, func(w io.Writer) error {
				fmt.Fprintf(w, "redline version %s\n", info.Version)
				fmt.Fprintf(w, "  commit:    %s\n", info.Commit)
				fmt.Fprintf(w, "  built:     %s\n", info.BuiltAt)
				fmt.Fprintf(w, "  builder:   %s\n", info.BuiltBy)
				fmt.Fprintf(w, "  go:        %s\n", info.GoVersion)
				_, err := fmt.Fprintf(w, "  platform:  %s\n", info.Platform)
				return err
			})
		},
	}
	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")
	return cmd
}
