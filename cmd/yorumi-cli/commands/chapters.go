package commands

import (
	"context"
	"fmt"

	"yorumi-backend/lib/pager"
	"yorumi-backend/lib/providers"
	"yorumi-backend/lib/providers/jikan"

	"github.com/spf13/cobra"
)

var chaptersProvider *string

func init() {
	chaptersProvider = chaptersCmd.Flags().String("provider", "mangakatana", "One of mangakatana, asura, jikan (episodes by MAL id).")
	rootCmd.AddCommand(chaptersCmd)
}

func printChildren(items []providers.ChildItem) {
	for _, item := range items {
		uploaded := ""
		if item.UploadedAt != nil {
			uploaded = item.UploadedAt.Format("2006-01-02")
		}
		fmt.Printf("%s\t%g\t%s\t%s\n", item.ID, item.Ordinal, item.Title, uploaded)
	}
	fmt.Printf("%d items\n", len(items))
}

var chaptersCmd = &cobra.Command{
	Use:   "chapters <id>",
	Short: "Lists chapters of a series, or episodes when the provider is jikan.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id := args[0]

		var items []providers.ChildItem
		var err error
		switch *chaptersProvider {
		case "mangakatana":
			items, err = newKatanaClient().ListChapters(ctx, id)
		case "asura":
			items, err = newAsuraClient().ListChapters(ctx, id)
		case "jikan":
			client := jikan.NewClient(jikan.ClientOptions{})
			items, err = pager.FetchAllPages(ctx, func(ctx context.Context, page int) (pager.Page[providers.ChildItem], error) {
				result, pageErr := client.EpisodesPage(ctx, id, page)
				if pageErr != nil {
					return pager.Page[providers.ChildItem]{}, pageErr
				}
				return pager.Page[providers.ChildItem]{
					Items:       result.Items,
					LastPage:    result.LastPage,
					HasNextPage: result.HasNextPage,
				}, nil
			})
		default:
			return fmt.Errorf("unknown provider %q", *chaptersProvider)
		}
		if err != nil {
			return err
		}
		printChildren(items)
		return nil
	},
}
