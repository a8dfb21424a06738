package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE:  runWhoami,
	}
}

func runWhoami(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	user, err := a.client.CurrentUser(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s)\n", user.DisplayName(), user.Tag())
	fmt.Printf("  id: %s\n", user.ID)
	if user.Email != "" {
		fmt.Printf("  email: %s\n", user.Email)
	}
	if url := user.AvatarURL(); url != "" {
		fmt.Printf("  avatar: %s\n", url)
	}
	return nil
}
