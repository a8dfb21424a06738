package cmd

import (
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"cordctl/internal/api"
)

func newChannelsCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "channels <guild-id>",
		Short: "List a server's channels",
		Long: `List the text channels of a server. Pass --all to include voice
channels, categories, and forums.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChannels(cmd, args[0], all)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include non-text channels")
	return cmd
}

func runChannels(cmd *cobra.Command, guildID string, all bool) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	channels, err := a.client.GuildChannels(cmd.Context(), guildID)
	if err != nil {
		return err
	}

	sort.Slice(channels, func(i, j int) bool {
		return channels[i].Position < channels[j].Position
	})

	t := newTable()
	t.AppendHeader(table.Row{"ID", "Name", "Type", "Topic"})
	shown := 0
	for _, ch := range channels {
		if !all && !ch.IsText() {
			continue
		}
		t.AppendRow(table.Row{ch.ID, "#" + ch.Name, channelTypeName(ch.Type), truncate(ch.Topic, 60)})
		shown++
	}

	if shown == 0 {
		fmt.Println("No channels found.")
		return nil
	}
	t.Render()
	return nil
}

// channelTypeName renders a channel type for display.
func channelTypeName(t api.ChannelType) string {
	switch t {
	case api.ChannelTypeGuildText:
		return "text"
	case api.ChannelTypeGuildVoice:
		return "voice"
	case api.ChannelTypeGuildCategory:
		return "category"
	case api.ChannelTypeAnnouncement:
		return "announcement"
	case api.ChannelTypeForum:
		return "forum"
	case api.ChannelTypeDM:
		return "dm"
	case api.ChannelTypeGroupDM:
		return "group dm"
	default:
		return fmt.Sprintf("type %d", int(t))
	}
}
