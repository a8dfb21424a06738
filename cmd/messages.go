package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"cordctl/internal/api"
)

func newMessagesCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "messages <channel-id>",
		Short: "Show recent messages in a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMessages(cmd, args[0], limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 25, "number of messages to fetch (max 100)")
	return cmd
}

func runMessages(cmd *cobra.Command, channelID string, limit int) error {
	if limit < 1 || limit > 100 {
		return fmt.Errorf("limit must be between 1 and 100")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	messages, err := a.client.ChannelMessages(cmd.Context(), channelID, limit)
	if err != nil {
		return err
	}

	if len(messages) == 0 {
		fmt.Println("No messages found.")
		return nil
	}

	// The API returns newest first; print oldest first so the terminal
	// reads like the channel.
	for i := len(messages) - 1; i >= 0; i-- {
		printMessage(&messages[i])
	}
	return nil
}

// printMessage renders one message as a timestamped terminal line.
func printMessage(m *api.Message) {
	stamp := m.Timestamp.Local().Format("2006-01-02 15:04")
	author := text.FgCyan.Sprint(m.Author.DisplayName())
	content := m.Content
	if content == "" && len(m.Attachments) > 0 {
		content = text.Faint.Sprintf("[%d attachment(s)]", len(m.Attachments))
	}
	if m.EditedTimestamp != nil {
		content += text.Faint.Sprint(" (edited)")
	}
	fmt.Printf("%s %s: %s\n", text.Faint.Sprint(stamp), author, content)
	for _, att := range m.Attachments {
		fmt.Printf("    %s %s\n", text.Faint.Sprint("attachment:"), att.URL)
	}
}
