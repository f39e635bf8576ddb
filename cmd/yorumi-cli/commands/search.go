package commands

import (
	"fmt"

	"yorumi-backend/lib/providers/jikan"

	"github.com/spf13/cobra"
)

var searchProvider *string

func init() {
	searchProvider = searchCmd.Flags().String("provider", "jikan", "One of jikan, mangakatana, asura.")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Searches a provider by title.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		query := args[0]

		switch *searchProvider {
		case "jikan":
			records, pagination, err := jikan.NewClient(jikan.ClientOptions{}).SearchAnime(ctx, query, 1)
			if err != nil {
				return err
			}
			printRecords(records)
			fmt.Printf("last page: %d\n", pagination.LastPage)
		case "mangakatana":
			records, err := newKatanaClient().Search(ctx, query)
			if err != nil {
				return err
			}
			printRecords(records)
		case "asura":
			records, err := newAsuraClient().Search(ctx, query)
			if err != nil {
				return err
			}
			printRecords(records)
		default:
			return fmt.Errorf("unknown provider %q", *searchProvider)
		}
		return nil
	},
}
