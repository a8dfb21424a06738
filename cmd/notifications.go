package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"cordctl/internal/api"
	"cordctl/internal/notify"
)

func newNotificationsCmd() *cobra.Command {
	var (
		mute   bool
		unmute bool
		level  string
	)

	cmd := &cobra.Command{
		Use:   "notifications <guild-id>",
		Short: "Update a server's notification settings",
		Long: `Update your notification settings for one server: mute or unmute it,
or choose which messages notify you.

Examples:
  cordctl notifications 81384788765712384 --mute
  cordctl notifications 81384788765712384 --unmute --level mentions`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNotifications(cmd, args[0], mute, unmute, level)
		},
	}
	cmd.Flags().BoolVar(&mute, "mute", false, "mute the server")
	cmd.Flags().BoolVar(&unmute, "unmute", false, "unmute the server")
	cmd.Flags().StringVar(&level, "level", "", "notification level: all, mentions, nothing")
	return cmd
}

func runNotifications(cmd *cobra.Command, guildID string, mute, unmute bool, level string) error {
	if mute && unmute {
		return fmt.Errorf("--mute and --unmute are mutually exclusive")
	}
	if !mute && !unmute && level == "" {
		return fmt.Errorf("nothing to change: pass --mute, --unmute, or --level")
	}

	settings := api.NotificationSettings{Muted: mute}
	switch level {
	case "":
		settings.MessageNotifications = api.NotifyOnlyMentions
	case "all":
		settings.MessageNotifications = api.NotifyAllMessages
	case "mentions":
		settings.MessageNotifications = api.NotifyOnlyMentions
	case "nothing":
		settings.MessageNotifications = api.NotifyNothing
	default:
		return fmt.Errorf("invalid level %q: must be all, mentions, or nothing", level)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.client.UpdateNotificationSettings(cmd.Context(), guildID, settings); err != nil {
		return err
	}

	summary := "notifications updated"
	if mute {
		summary = "server muted"
	} else if unmute {
		summary = "server unmuted"
	}
	a.notifier.Notify(notify.StyleSuccess, "Settings saved", summary)
	return nil
}
