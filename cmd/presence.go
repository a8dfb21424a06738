package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"cordctl/internal/api"
	"cordctl/internal/notify"
)

func newPresenceCmd() *cobra.Command {
	var (
		statusText string
		emoji      string
	)

	cmd := &cobra.Command{
		Use:   "presence <online|idle|dnd|invisible>",
		Short: "Set your status",
		Long: `Set your own status, optionally with a custom status text and emoji.

Examples:
  cordctl presence dnd
  cordctl presence online --text "reviewing PRs" --emoji "👀"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPresence(cmd, args[0], statusText, emoji)
		},
	}
	cmd.Flags().StringVar(&statusText, "text", "", "custom status text")
	cmd.Flags().StringVar(&emoji, "emoji", "", "custom status emoji")
	return cmd
}

func runPresence(cmd *cobra.Command, status, statusText, emoji string) error {
	presence := api.Presence{Status: api.PresenceStatus(status)}
	if !presence.Status.Valid() {
		return fmt.Errorf("invalid status %q: must be online, idle, dnd, or invisible", status)
	}
	if statusText != "" || emoji != "" {
		presence.Custom = &api.CustomStatus{Text: statusText, EmojiName: emoji}
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.client.UpdatePresence(cmd.Context(), presence); err != nil {
		return err
	}

	a.notifier.Notify(notify.StyleSuccess, "Status updated", string(presence.Status))
	return nil
}
