package commands

import (
	"fmt"

	"yorumi-backend/lib/providers"
	"yorumi-backend/lib/providers/hianime"

	"github.com/spf13/cobra"
)

var infoProvider *string

func init() {
	infoProvider = infoCmd.Flags().String("provider", "hianime", "One of hianime, mangakatana, asura.")
	rootCmd.AddCommand(infoCmd)
}

func printDetail(detail providers.DetailRecord) {
	fmt.Printf("id:       %s\n", detail.ID)
	fmt.Printf("title:    %s\n", detail.Title)
	fmt.Printf("status:   %s\n", detail.Status)
	fmt.Printf("genres:   %v\n", detail.Genres)
	fmt.Printf("cover:    %s\n", detail.CoverURL)
	fmt.Printf("synopsis: %s\n", detail.Synopsis)
}

var infoCmd = &cobra.Command{
	Use:   "info <id>",
	Short: "Fetches the detail page for one title.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id := args[0]

		var detail providers.DetailRecord
		var err error
		switch *infoProvider {
		case "hianime":
			detail, err = hianime.NewClient(hianime.ClientOptions{}).GetInfo(ctx, id)
		case "mangakatana":
			detail, err = newKatanaClient().GetDetails(ctx, id)
		case "asura":
			detail, err = newAsuraClient().GetDetails(ctx, id)
		default:
			return fmt.Errorf("unknown provider %q", *infoProvider)
		}
		if err != nil {
			return err
		}
		printDetail(detail)
		return nil
	},
}
