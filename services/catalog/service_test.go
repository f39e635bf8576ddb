package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"yorumi-backend/lib/cache"
	"yorumi-backend/lib/providers"
	"yorumi-backend/lib/providers/anilist"
	"yorumi-backend/lib/providers/asura"
	"yorumi-backend/lib/providers/hianime"
	"yorumi-backend/lib/providers/jikan"
	"yorumi-backend/lib/providers/mangakatana"
	"yorumi-backend/lib/telemetry"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const spotlightFixture = `
<html><body><div id="slider"><div class="swiper-wrapper">
<div class="swiper-slide"><div class="deslide-item">
  <div class="deslide-cover"><img class="film-poster-img" data-src="https://img.test/aot-banner.jpg"></div>
  <div class="desi-head-title">Attack on Titan</div>
  <div class="desi-description">Humanity fights back.</div>
  <div class="tick-sub">25</div>
  <div class="tick-dub">25</div>
  <div class="desi-buttons"><a href="/watch/attack-on-titan-112?ref=slide">Watch Now</a></div>
</div></div>
<div class="swiper-slide"><div class="deslide-item">
  <div class="deslide-cover"><img class="film-poster-img" src="https://img.test/obscure-banner.jpg"></div>
  <div class="desi-head-title">Utterly Obscure Show</div>
  <div class="desi-description">Nobody indexed this one.</div>
  <div class="desi-buttons"><a href="/watch/utterly-obscure-show-991">Watch Now</a></div>
</div></div>
</div></div></body></html>`

func anilistFixtureServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Variables struct {
				Search string `json:"search"`
			} `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		media := "[]"
		if strings.Contains(req.Variables.Search, "Attack") {
			media = `[
				{
					"id": 16498,
					"idMal": 16498,
					"siteUrl": "https://anilist.co/anime/16498",
					"genres": ["Action", "Drama"],
					"title": {"romaji": "Shingeki no Kyojin", "english": "Attack on Titan"},
					"coverImage": {"large": "https://img.anilist.co/aot.jpg", "extraLarge": "https://img.anilist.co/aot-xl.jpg"}
				},
				{
					"id": 20958,
					"idMal": 25777,
					"siteUrl": "https://anilist.co/anime/20958",
					"title": {"romaji": "Shingeki no Kyojin Season 2", "english": "Attack on Titan Season 2"},
					"coverImage": {}
				}
			]`
		}
		fmt.Fprintf(w, `{"data":{"Page":{"pageInfo":{"currentPage":1,"lastPage":1,"hasNextPage":false},"media":%s}}}`, media)
	}))
}

func TestEnrichedSpotlight(t *testing.T) {
	telemetry.SetupForTesting(t, "catalog_test")

	var homeHits atomic.Int32
	animeSite := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		homeHits.Add(1)
		fmt.Fprint(w, spotlightFixture)
	}))
	defer animeSite.Close()
	metadata := anilistFixtureServer(t)
	defer metadata.Close()

	svc := NewService(Options{
		HiAnime: hianime.NewClient(hianime.ClientOptions{BaseURL: animeSite.URL}),
		AniList: anilist.NewClient(anilist.ClientOptions{Endpoint: metadata.URL}),
		Cache:   cache.New(cache.NewMemoryStore()),
	})

	items, err := svc.EnrichedSpotlight(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)

	matched := items[0]
	require.Equal(t, "attack-on-titan-112", matched.ID)
	require.Equal(t, providers.HiAnime, matched.Provider)
	require.Equal(t, "16498", matched.AniListID)
	require.Equal(t, "16498", matched.MalID)
	require.Equal(t, []string{"Action", "Drama"}, matched.Genres)
	require.Equal(t, "https://img.anilist.co/aot-xl.jpg", matched.CoverURL)
	require.Equal(t, 25, matched.Sub)

	unmatched := items[1]
	require.Equal(t, "utterly-obscure-show-991", unmatched.ID)
	require.Equal(t, "Utterly Obscure Show", unmatched.Title)
	require.Equal(t, providers.HiAnime, unmatched.Provider)
	require.Empty(t, unmatched.AniListID)
	require.Empty(t, unmatched.MalID)

	// second call is served from cache
	again, err := svc.EnrichedSpotlight(context.Background())
	require.NoError(t, err)
	require.Equal(t, items, again)
	require.Equal(t, int32(1), homeHits.Load())
}

func TestSearchAnimeKeepsPartialRecords(t *testing.T) {
	telemetry.SetupForTesting(t, "catalog_test")

	index := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"data": [
				{"mal_id": 20, "url": "https://myanimelist.net/anime/20", "title": "Naruto",
				 "images": {"jpg": {"image_url": "https://cdn.mal.net/20.jpg"}}},
				{"mal_id": 1735, "url": "https://myanimelist.net/anime/1735", "title": "Naruto: Shippuuden",
				 "images": {"jpg": {}}},
				{"mal_id": 442, "url": "https://myanimelist.net/anime/442", "title": "Naruto Movie 1",
				 "images": {"jpg": {"image_url": "https://cdn.mal.net/442.jpg"}}}
			],
			"pagination": {"last_visible_page": 3, "has_next_page": true}
		}`)
	}))
	defer index.Close()

	svc := NewService(Options{
		Jikan: jikan.NewClient(jikan.ClientOptions{BaseURL: index.URL}),
		Cache: cache.New(cache.NewMemoryStore()),
	})

	records, pagination, err := svc.SearchAnime(context.Background(), "Naruto", 1)
	require.NoError(t, err)
	require.Len(t, records, 3)
	// a missing thumbnail never drops the record
	require.Equal(t, "1735", records[1].ID)
	require.Empty(t, records[1].ThumbnailURL)
	require.Equal(t, 3, pagination.LastPage)
	require.True(t, pagination.HasNextPage)
}

func TestAnimeEpisodesWalksAndCaches(t *testing.T) {
	telemetry.SetupForTesting(t, "catalog_test")

	var hits atomic.Int32
	index := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Query().Get("page") {
		case "2":
			fmt.Fprint(w, `{
				"data": [
					{"mal_id": 101, "title": "Assault", "aired": "2013-04-14T00:00:00+00:00"},
					{"mal_id": 2, "title": "That Day"}
				],
				"pagination": {"last_visible_page": 2, "has_next_page": false}
			}`)
		default:
			fmt.Fprint(w, `{
				"data": [
					{"mal_id": 2, "title": "That Day", "aired": "2013-04-14T00:00:00+00:00"},
					{"mal_id": 1, "title": "To You, in 2000 Years", "aired": "2013-04-07T00:00:00+00:00"}
				],
				"pagination": {"last_visible_page": 2, "has_next_page": true}
			}`)
		}
	}))
	defer index.Close()

	svc := NewService(Options{
		Jikan: jikan.NewClient(jikan.ClientOptions{BaseURL: index.URL}),
		Cache: cache.New(cache.NewMemoryStore()),
	})

	episodes, err := svc.AnimeEpisodes(context.Background(), "16498")
	require.NoError(t, err)

	var ids []string
	for _, ep := range episodes {
		require.Equal(t, "16498", ep.ParentID)
		ids = append(ids, ep.ID)
	}
	// ascending ordinal order, with the repeated episode collapsed
	require.Equal(t, []string{"1", "2", "101"}, ids)

	_, err = svc.AnimeEpisodes(context.Background(), "16498")
	require.NoError(t, err)
	require.Equal(t, int32(2), hits.Load())
}

// fixtureRenderer serves canned documents instead of driving a
// browser.
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

func TestMangaRouting(t *testing.T) {
	telemetry.SetupForTesting(t, "catalog_test")

	renderer := fixtureRenderer{pages: map[string]string{
		"https://asuracomic.net/series?name=solo": `
			<html><body>
			<a href="/series/solo-leveling-abc123"><span class="font-bold">Solo Leveling</span>
				<img src="https://img.test/solo.jpg"></a>
			</body></html>`,
	}}

	katanaSite := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div id="book_list">
			<div class="item">
				<div class="cover"><img src="https://img.test/solo-max.jpg"></div>
				<div class="text"><h3><a href="/manga/solo-max.26912">Solo Max</a></h3></div>
			</div>
		</div></body></html>`)
	}))
	defer katanaSite.Close()

	svc := NewService(Options{
		MangaKatana: mangakatana.NewClient(mangakatana.ClientOptions{BaseURL: katanaSite.URL}),
		Asura:       asura.NewClient(asura.ClientOptions{Renderer: renderer}),
		Cache:       cache.New(cache.NewMemoryStore()),
	})
	ctx := context.Background()

	fromAsura, err := svc.SearchManga(ctx, providers.Asura, "solo")
	require.NoError(t, err)
	require.Len(t, fromAsura, 1)
	require.Equal(t, "solo-leveling-abc123", fromAsura[0].ID)
	require.Equal(t, providers.Asura, fromAsura[0].Provider)

	fromKatana, err := svc.SearchManga(ctx, providers.MangaKatana, "solo")
	require.NoError(t, err)
	require.Len(t, fromKatana, 1)
	require.Equal(t, "solo-max.26912", fromKatana[0].ID)
	require.Equal(t, providers.MangaKatana, fromKatana[0].Provider)

	_, err = svc.SearchManga(ctx, providers.HiAnime, "solo")
	require.ErrorIs(t, err, ErrUnknownProvider)
	_, err = svc.MangaDetails(ctx, "nonsense", "x")
	require.ErrorIs(t, err, ErrUnknownProvider)
	_, err = svc.MangaChapters(ctx, "nonsense", "x")
	require.ErrorIs(t, err, ErrUnknownProvider)
	_, err = svc.MangaPages(ctx, "nonsense", "x", "y")
	require.ErrorIs(t, err, ErrUnknownProvider)
}

func TestUpstreamFailureDegradesToEmpty(t *testing.T) {
	telemetry.SetupForTesting(t, "catalog_test")

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()

	svc := NewService(Options{
		HiAnime:     hianime.NewClient(hianime.ClientOptions{BaseURL: down.URL}),
		Jikan:       jikan.NewClient(jikan.ClientOptions{BaseURL: down.URL}),
		MangaKatana: mangakatana.NewClient(mangakatana.ClientOptions{BaseURL: down.URL}),
		Cache:       cache.New(cache.NewMemoryStore()),
	})
	ctx := context.Background()

	// every operation answers with an empty result, never an error
	items, err := svc.EnrichedSpotlight(ctx)
	require.NoError(t, err)
	require.Empty(t, items)

	records, pagination, err := svc.SearchAnime(ctx, "Naruto", 1)
	require.NoError(t, err)
	require.Empty(t, records)
	require.Equal(t, providers.ChildPage{}, pagination)

	azRecords, _, err := svc.AnimeAZList(ctx, "a", 1)
	require.NoError(t, err)
	require.Empty(t, azRecords)

	detail, err := svc.AnimeInfo(ctx, "attack-on-titan-112")
	require.NoError(t, err)
	require.Equal(t, providers.DetailRecord{}, detail)

	episodes, err := svc.AnimeEpisodes(ctx, "16498")
	require.NoError(t, err)
	require.Empty(t, episodes)

	chapters, err := svc.MangaChapters(ctx, providers.MangaKatana, "solo-max.26912")
	require.NoError(t, err)
	require.Empty(t, chapters)
}

func TestUserAvatarRoundTrip(t *testing.T) {
	svc := NewService(Options{Cache: cache.New(cache.NewMemoryStore())})
	ctx := context.Background()

	avatar, err := svc.UserAvatar(ctx, "miyuki")
	require.NoError(t, err)
	require.Empty(t, avatar)

	require.NoError(t, svc.SetUserAvatar(ctx, "miyuki", "https://cdn.test/miyuki.png"))
	avatar, err = svc.UserAvatar(ctx, "miyuki")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.test/miyuki.png", avatar)

	require.NoError(t, svc.SetUserAvatar(ctx, "miyuki", "https://cdn.test/new.png"))
	avatar, err = svc.UserAvatar(ctx, "miyuki")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.test/new.png", avatar)
}
