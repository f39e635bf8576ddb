package commands

import (
	"context"
	"fmt"
	"os"

	"yorumi-backend/lib/fetch"
	"yorumi-backend/lib/providers"
	"yorumi-backend/lib/providers/asura"
	"yorumi-backend/lib/providers/mangakatana"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "yorumi-cli",
	Short: "yorumi-cli exercises the upstream scrapers directly, for checking rules against live markup.",
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newAsuraClient() *asura.Client {
	return asura.NewClient(asura.ClientOptions{
		Renderer: fetch.NewRenderer(fetch.RendererOptions{BlockAssets: true}),
	})
}

func newKatanaClient() *mangakatana.Client {
	return mangakatana.NewClient(mangakatana.ClientOptions{})
}

func printRecords(records []providers.ContentRecord) {
	for _, record := range records {
		fmt.Printf("%s\t%s\t%s\n", record.ID, record.Title, record.SourceURL)
	}
	fmt.Printf("%d records\n", len(records))
}
