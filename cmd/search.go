package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"cordctl/internal/api"
)

func newSearchCmd() *cobra.Command {
	var (
		authorID  string
		channelID string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "search <guild-id> <query>...",
		Short: "Search a server's messages",
		Long: `Search messages in a server by content, optionally narrowed to one
author or channel.

Examples:
  cordctl search 81384788765712384 release notes
  cordctl search 81384788765712384 deploy --channel 123456789012345678
  cordctl search 81384788765712384 lgtm --author 987654321098765432`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := api.SearchQuery{
				Content:   strings.Join(args[1:], " "),
				AuthorID:  authorID,
				ChannelID: channelID,
				Limit:     limit,
			}
			return runSearch(cmd, args[0], query)
		},
	}
	cmd.Flags().StringVar(&authorID, "author", "", "only messages by this user ID")
	cmd.Flags().StringVar(&channelID, "channel", "", "only messages in this channel ID")
	cmd.Flags().IntVarP(&limit, "limit", "n", 25, "number of results to fetch")
	return cmd
}

func runSearch(cmd *cobra.Command, guildID string, query api.SearchQuery) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	results, err := a.client.SearchMessages(cmd.Context(), guildID, query)
	if err != nil {
		return err
	}

	hits := results.Hits()
	if len(hits) == 0 {
		fmt.Println("No messages matched.")
		return nil
	}

	fmt.Printf("%d result(s), showing %d:\n\n", results.TotalResults, len(hits))
	for i := range hits {
		printMessage(&hits[i])
	}
	return nil
}
