package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/redline/internal/auth"
)

type accountReport struct {
	SignedIn bool          `json:"signed_in"`
	Account  *auth.Account `json:"account,omitempty"`
}

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in with a device code",
		Long: `Sign in to the mail account. Prints a code to enter at the Microsoft
device login page; the token is cached in the store for later runs.

With auth.access_token (or REDLINE_ACCESS_TOKEN) set, the fixed token is used
and no sign-in happens.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := formatter(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, appOptions{prompt: stderrPrompt(cmd)})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.loop.SignIn(cmd.Context()); err != nil {
				return err
			}
			r := accountReport{SignedIn: true, Account: a.provider.Account()}
			return f.Output(r, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Signed in as %s\n", r.Account.DisplayName())
				return err
			})
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the cached token",
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

			prev := a.provider.Account()
			if err := a.loop.SignOut(cmd.Context()); err != nil {
				return err
			}
			return f.Output(accountReport{SignedIn: false, Account: prev}, func(w io.Writer) error {
				if prev == nil {
					_, err := fmt.Fprintln(w, "Not signed in")
					return err
				}
				_, err := fmt.Fprintf(w, "Signed out %s\n", prev.DisplayName())
				return err
			})
		},
	}
}
