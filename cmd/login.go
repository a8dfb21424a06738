package cmd

import (
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"cordctl/internal/notify"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in to Discord via the browser",
		Long: `Sign in to Discord using the OAuth browser flow.

A browser window opens for you to approve access; the resulting token is
encrypted and stored locally, so subsequent commands run without any
prompt until the token can no longer be refreshed.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}
}

func runLogin(cmd *cobra.Command, args []string) error {
	a, err := newAppNoAuth()
	if err != nil {
		return err
	}
	manager, err := a.authManager()
	if err != nil {
		return err
	}

	var s *spinner.Spinner
	if !flagQuiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Suffix = " Waiting for browser sign-in..."
		s.Start()
	}

	_, err = manager.Login(cmd.Context())

	if s != nil {
		s.Stop()
	}
	if err != nil {
		a.notifier.Notify(notify.StyleFailure, "Sign-in failed", err.Error())
		return err
	}

	a.notifier.Notify(notify.StyleSuccess, "Signed in", "")
	return nil
}
