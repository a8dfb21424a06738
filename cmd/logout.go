package cmd

import (
	"github.com/spf13/cobra"

	"cordctl/internal/notify"
)

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove the stored credential",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func runLogout(cmd *cobra.Command, args []string) error {
	a, err := newAppNoAuth()
	if err != nil {
		return err
	}
	manager, err := a.authManager()
	if err != nil {
		return err
	}

	if err := manager.Logout(); err != nil {
		a.notifier.Notify(notify.StyleFailure, "Sign-out failed", err.Error())
		return err
	}
	a.notifier.Notify(notify.StyleSuccess, "Signed out", "")
	return nil
}
