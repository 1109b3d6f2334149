package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"turtle-internet/internal/browse"
	"turtle-internet/internal/client"
	"turtle-internet/internal/game"
)

const defaultServer = "http://localhost:8080"

func newBrowseCmd() *cobra.Command {
	var (
		serverURL string
		category  string
		sortBy    string
		search    string
		pages     int
		pageSize  int
	)

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Page through the catalog of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			sort, err := game.ParseSortKey(sortBy)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			api := client.New(serverURL, nil)
			b := browse.New(api, api, pageSize)

			if err := b.SetQuery(ctx, category, sort); err != nil {
				return err
			}
			for i := 1; i < pages && b.State().HasMore; i++ {
				if err := b.LoadMore(ctx); err != nil {
					return err
				}
			}

			b.SetSearch(search)
			printGames(cmd.OutOrStdout(), b.Visible())

			s := b.State()
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d loaded over %d pages, more available: %t\n", len(s.Items), s.Page, s.HasMore)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", defaultServer, "catalog server base URL")
	cmd.Flags().StringVar(&category, "category", "", "only show games in this category")
	cmd.Flags().StringVar(&sortBy, "sort", string(game.SortByPopularity), "popularity, name or addedDate")
	cmd.Flags().StringVar(&search, "search", "", "filter loaded games by name or category")
	cmd.Flags().IntVar(&pages, "pages", 1, "number of pages to load")
	cmd.Flags().IntVar(&pageSize, "page-size", game.DefaultPageSize, "games per page")
	return cmd
}

func printGames(w io.Writer, games []*game.Game) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORIES\tPLAYS\tSYSTEM")
	for _, g := range games {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", g.ID, g.Name, strings.Join(g.Categories, ", "), g.PlayCount, g.System)
	}
	tw.Flush()
}
