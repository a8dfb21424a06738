package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newGuildsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "guilds",
		Short: "List the servers you are a member of",
		Args:  cobra.NoArgs,
		RunE:  runGuilds,
	}
}

func runGuilds(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	guilds, err := a.client.Guilds(cmd.Context())
	if err != nil {
		return err
	}

	if len(guilds) == 0 {
		fmt.Println("No servers found.")
		return nil
	}

	t := newTable()
	t.AppendHeader(table.Row{"ID", "Name", "Owner"})
	for _, g := range guilds {
		owner := ""
		if g.Owner {
			owner = "yes"
		}
		t.AppendRow(table.Row{g.ID, g.Name, owner})
	}
	t.Render()
	return nil
}
