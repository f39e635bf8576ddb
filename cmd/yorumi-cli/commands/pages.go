package commands

import (
	"fmt"

	"yorumi-backend/lib/providers"

	"github.com/spf13/cobra"
)

var pagesProvider *string

func init() {
	pagesProvider = pagesCmd.Flags().String("provider", "mangakatana", "One of mangakatana, asura.")
	rootCmd.AddCommand(pagesCmd)
}

var pagesCmd = &cobra.Command{
	Use:   "pages <series-id> <chapter-id>",
	Short: "Lists the image urls of one chapter in reading order.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, chapterID := args[0], args[1]

		var pages []providers.PageItem
		var err error
		switch *pagesProvider {
		case "mangakatana":
			pages, err = newKatanaClient().ListPages(ctx, id+"/"+chapterID)
		case "asura":
			pages, err = newAsuraClient().ListPages(ctx, id, chapterID)
		default:
			return fmt.Errorf("unknown provider %q", *pagesProvider)
		}
		if err != nil {
			return err
		}

		for _, page := range pages {
			fmt.Printf("%d\t%s\n", page.Ordinal, page.AssetURL)
		}
		fmt.Printf("%d pages\n", len(pages))
		return nil
	},
}
