package cmd

import (
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		Long: `Show whether you are signed in, when the current token expires, and
which scopes it was granted. Never triggers a sign-in or refresh.`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newAppNoAuth()
	if err != nil {
		return err
	}

	manager, err := a.authManager()
	if err != nil {
		var authRequired *authRequiredError
		if errors.As(err, &authRequired) {
			fmt.Printf("%s not configured: %v\n", text.FgYellow.Sprint("✗"), err)
			return nil
		}
		return err
	}

	st, err := manager.Status()
	if err != nil {
		return err
	}

	if !st.SignedIn {
		fmt.Printf("%s not signed in. Run 'cordctl login' to sign in.\n", text.FgYellow.Sprint("✗"))
		return nil
	}

	fmt.Printf("%s signed in (%s)\n", text.FgGreen.Sprint("✓"), st.State)
	fmt.Printf("  token expires %s\n", formatExpiryWithDirection(st.ExpiresAt))
	if st.Scope != "" {
		fmt.Printf("  scopes: %s\n", st.Scope)
	}
	if st.CanRefresh {
		fmt.Println("  refresh: available")
	} else {
		fmt.Printf("  refresh: %s\n", text.FgYellow.Sprint("not available, sign in again when the token expires"))
	}
	return nil
}
