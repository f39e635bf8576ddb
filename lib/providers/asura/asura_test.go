package asura

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"yorumi-backend/lib/providers"
	"yorumi-backend/lib/telemetry"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

// fixtureRenderer stands in for the headless browser.
type fixtureRenderer struct {
	pages map[string]string
}

func (r fixtureRenderer) FetchRendered(ctx context.Context, url string, waitSelector string) (*goquery.Document, error) {
	markup, ok := r.pages[url]
	if !ok {
		return nil, fmt.Errorf("no fixture for %s", url)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(markup))
}

func newTestClient(pages map[string]string) *Client {
	return NewClient(ClientOptions{
		Renderer: fixtureRenderer{pages: pages},
		BaseURL:  "https://asura.test",
	})
}

func TestSearch(t *testing.T) {
	telemetry.SetupForTesting(t, "asura_test")

	client := newTestClient(map[string]string{
		"https://asura.test/series?name=solo": `<html><body>
			<a href="/series/solo-leveling-abc123">
				<img src="https://img.test/solo.jpg">
				<span class="font-bold">Solo Leveling</span>
			</a>
			<a href="/series/solo-leveling-abc123"><span class="font-bold">Solo Leveling</span></a>
			<a href="/series/solo-max-def456">Solo Max: Level Newbie</a>
			<a href="/genre/action">Action</a>
		</body></html>`,
	})

	records, err := client.Search(context.Background(), "solo")
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.Equal(t, "solo-leveling-abc123", records[0].ID)
	require.Equal(t, "Solo Leveling", records[0].Title)
	require.Equal(t, "https://img.test/solo.jpg", records[0].ThumbnailURL)
	require.Equal(t, "https://asura.test/series/solo-leveling-abc123", records[0].SourceURL)
	require.Equal(t, providers.Asura, records[0].Provider)

	// anchors without a title element fall back to the anchor text
	require.Equal(t, "solo-max-def456", records[1].ID)
	require.Equal(t, "Solo Max: Level Newbie", records[1].Title)
}

func TestSearchRenderFailure(t *testing.T) {
	telemetry.SetupForTesting(t, "asura_test")

	client := newTestClient(nil)
	_, err := client.Search(context.Background(), "anything")
	require.Error(t, err)
}

func TestGetDetails(t *testing.T) {
	telemetry.SetupForTesting(t, "asura_test")

	client := newTestClient(map[string]string{
		"https://asura.test/series/solo-leveling-abc123": `<html><body>
			<img alt="Solo Leveling" src="https://img.test/solo-cover.jpg">
			<h1>Solo Leveling</h1>
			<span class="text-base">Ten years ago, the gates appeared.</span>
			<div class="status">Ongoing</div>
			<button>Action</button>
			<button>Fantasy</button>
		</body></html>`,
		"https://asura.test/series/missing-xyz": `<html><body><div class="spinner"></div></body></html>`,
	})

	detail, err := client.GetDetails(context.Background(), "solo-leveling-abc123")
	require.NoError(t, err)
	require.Equal(t, "Solo Leveling", detail.Title)
	require.Equal(t, "Ten years ago, the gates appeared.", detail.Synopsis)
	require.Equal(t, providers.StatusOngoing, detail.Status)
	require.Equal(t, []string{"Action", "Fantasy"}, detail.Genres)
	require.Equal(t, "https://img.test/solo-cover.jpg", detail.CoverURL)

	_, err = client.GetDetails(context.Background(), "missing-xyz")
	require.ErrorIs(t, err, providers.ErrNotFound)
}

func TestListChapters(t *testing.T) {
	telemetry.SetupForTesting(t, "asura_test")

	client := newTestClient(map[string]string{
		"https://asura.test/series/solo-leveling-abc123": `<html><body>
			<a href="/series/solo-leveling-abc123/chapter/2">Chapter 2</a>
			<a href="/series/solo-leveling-abc123/chapter/10">Chapter 10</a>
			<a href="/series/solo-leveling-abc123/chapter/10">Chapter 10</a>
			<a href="/series/solo-leveling-abc123/chapter/1.5"></a>
		</body></html>`,
	})

	chapters, err := client.ListChapters(context.Background(), "solo-leveling-abc123")
	require.NoError(t, err)
	require.Len(t, chapters, 3)

	// numeric ids sort descending regardless of document order
	require.Equal(t, "10", chapters[0].ID)
	require.Equal(t, "2", chapters[1].ID)
	require.Equal(t, "1.5", chapters[2].ID)
	require.Equal(t, "Chapter 1.5", chapters[2].Title)
	require.Equal(t, "solo-leveling-abc123", chapters[0].ParentID)
}

func TestListPages(t *testing.T) {
	telemetry.SetupForTesting(t, "asura_test")

	client := newTestClient(map[string]string{
		"https://asura.test/series/solo-leveling-abc123/chapter/10": `<html><body>
			<img src="https://asura.test/static/logo.png">
			<div class="flex-col">
				<img alt="page 1" src="https://img.test/ch10/01.jpg">
				<img alt="page 2" data-src="https://img.test/ch10/02.jpg">
				<img alt="page 3" src="/relative/03.jpg">
			</div>
		</body></html>`,
	})

	pages, err := client.ListPages(context.Background(), "solo-leveling-abc123", "10")
	require.NoError(t, err)
	require.Equal(t, []providers.PageItem{
		{Ordinal: 1, AssetURL: "https://img.test/ch10/01.jpg"},
		{Ordinal: 2, AssetURL: "https://img.test/ch10/02.jpg"},
	}, pages)
}
