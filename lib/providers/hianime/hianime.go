// Package hianime scrapes the HiAnime site. Plain HTML GETs, selector
// based extraction. Markup here changes without notice, every field is
// best-effort.
//
// Identifier rule: the trailing path component of a watch link with
// the query string removed, e.g. "/one-piece-100?ref=home" -> the slug
// "one-piece-100". The numeric suffix after the final '-' is the
// site-local numeric id.
package hianime

import (
	"context"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/codes"

	"yorumi-backend/lib/extract"
	"yorumi-backend/lib/fetch"
	"yorumi-backend/lib/htmlutil"
	"yorumi-backend/lib/providers"
	"yorumi-backend/lib/telemetry"
)

var tracer = telemetry.Tracer("yorumi.lib.providers.hianime")

const defaultBaseURL = "https://hianime.to"

type Client struct {
	http    *resty.Client
	baseURL string
}

type ClientOptions struct {
	// BaseURL overrides the live site, used by tests.
	BaseURL string
}

func NewClient(opts ClientOptions) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		http: fetch.NewRestyClient(fetch.ClientOptions{
			BaseURL:          baseURL,
			Headers:          map[string]string{"referer": baseURL},
			CloudflareBypass: true,
			TracerName:       "yorumi.lib.providers.hianime.http",
		}),
		baseURL: baseURL,
	}
}

// SpotlightItem is a home-page slider entry. Sub and Dub are episode
// counts printed on the slide badges, zero when the badge is missing.
type SpotlightItem struct {
	providers.ContentRecord
	Description string `json:"description"`
	BannerURL   string `json:"banner_url"`
	Sub         int    `json:"sub"`
	Dub         int    `json:"dub"`
}

var spotlightRules = extract.RuleSet{
	Container: "#slider .swiper-slide .deslide-item",
	Fields: map[string]extract.FieldRule{
		"title":       {Selectors: []string{".desi-head-title"}},
		"description": {Selectors: []string{".desi-description"}},
		"link":        {Selectors: []string{".desi-buttons a"}, Attr: "href"},
		"poster":      {Selectors: []string{".film-poster-img"}, Attr: "data-src", AttrFallbacks: []string{"src"}},
		"banner":      {Selectors: []string{".deslide-cover .film-poster-img"}, Attr: "data-src", AttrFallbacks: []string{"src"}},
		"sub":         {Selectors: []string{".tick-sub"}},
		"dub":         {Selectors: []string{".tick-dub"}},
	},
}

func (c *Client) Spotlight(ctx context.Context) ([]SpotlightItem, error) {
	ctx, span := tracer.Start(ctx, "Spotlight")
	defer span.End()

	doc, err := fetch.FetchStatic(ctx, c.http, "/home", nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch home page")
		return nil, err
	}

	bags := extract.Extract(doc, spotlightRules)
	bags = extract.DedupeBy(bags, func(b extract.FieldBag) string { return b.Get("title") })

	var items []SpotlightItem
	for _, bag := range bags {
		link := bag.Get("link")
		items = append(items, SpotlightItem{
			ContentRecord: providers.ContentRecord{
				ID:           htmlutil.LastPathSegment(link),
				Title:        bag.Get("title"),
				ThumbnailURL: bag.Get("poster"),
				SourceURL:    c.baseURL + link,
				Provider:     providers.HiAnime,
			},
			Description: bag.Get("description"),
			BannerURL:   bag.Get("banner"),
			Sub:         atoiOrZero(bag.Get("sub")),
			Dub:         atoiOrZero(bag.Get("dub")),
		})
	}
	return items, nil
}

var azListRules = extract.RuleSet{
	Container: ".film_list-wrap .flw-item",
	Fields: map[string]extract.FieldRule{
		"title":  {Selectors: []string{".film-name a"}},
		"link":   {Selectors: []string{".film-name a"}, Attr: "href"},
		"poster": {Selectors: []string{".film-poster-img"}, Attr: "data-src", AttrFallbacks: []string{"src"}},
	},
}

// AZList fetches one page of the alphabetical listing. Page is
// 1-based; lastPage is parsed from the pagination markup, defaulting
// to 1 when the widget is absent.
func (c *Client) AZList(ctx context.Context, letter string, page int) ([]providers.ContentRecord, providers.ChildPage, error) {
	ctx, span := tracer.Start(ctx, "AZList")
	defer span.End()

	path := azListPath(letter)
	doc, err := fetch.FetchStatic(ctx, c.http, path+"?page="+strconv.Itoa(page), nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch az list")
		return nil, providers.ChildPage{}, err
	}

	bags := extract.Extract(doc, azListRules)
	bags = extract.DedupeBy(bags, func(b extract.FieldBag) string { return b.Get("link") })

	var records []providers.ContentRecord
	for _, bag := range bags {
		link := bag.Get("link")
		records = append(records, providers.ContentRecord{
			ID:           htmlutil.LastPathSegment(link),
			Title:        bag.Get("title"),
			ThumbnailURL: bag.Get("poster"),
			SourceURL:    c.baseURL + link,
			Provider:     providers.HiAnime,
		})
	}

	lastPage := 1
	lastHref, ok := doc.Find(".pagination .page-item:not(.next) a").Last().Attr("href")
	if ok {
		_, pageParam, found := strings.Cut(lastHref, "page=")
		if found {
			n, err := strconv.Atoi(strings.SplitN(pageParam, "&", 2)[0])
			if err == nil && n > 0 {
				lastPage = n
			}
		}
	}
	hasNext := doc.Find(".pagination .page-item.next").Length() > 0

	return records, providers.ChildPage{
		LastPage:    lastPage,
		HasNextPage: hasNext,
	}, nil
}

func azListPath(letter string) string {
	switch {
	case strings.EqualFold(letter, "all"):
		return "/az-list"
	case letter == "#" || letter == "0-9":
		return "/az-list/other"
	default:
		return "/az-list/" + strings.ToUpper(letter)
	}
}

var infoRules = extract.RuleSet{
	Container: ".anisc-detail",
	Fields: map[string]extract.FieldRule{
		"title":    {Selectors: []string{".film-name"}},
		"synopsis": {Selectors: []string{".film-description .text"}},
	},
}

// GetInfo scrapes the detail page for a watch slug. ErrNotFound when
// the page carries no detail container at all.
func (c *Client) GetInfo(ctx context.Context, id string) (providers.DetailRecord, error) {
	ctx, span := tracer.Start(ctx, "GetInfo")
	defer span.End()

	path := id
	if !strings.HasPrefix(path, "watch/") {
		path = "watch/" + path
	}
	doc, err := fetch.FetchStatic(ctx, c.http, "/"+path, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch info page")
		return providers.DetailRecord{}, err
	}

	bags := extract.Extract(doc, infoRules)
	if len(bags) == 0 {
		span.SetStatus(codes.Error, "no detail container in page")
		return providers.DetailRecord{}, providers.ErrNotFound
	}
	bag := bags[0]

	poster := htmlutil.AttrOrFirst(doc.Find(".anisc-poster .film-poster-img").First(), "data-src", "src")
	status := doc.Find(`.anisc-info .item-title:contains("Status")`).Next().Text()

	var genres []string
	doc.Find(`.anisc-info .item-list a[href*="/genre/"]`).Each(func(_ int, sel *goquery.Selection) {
		g := strings.TrimSpace(sel.Text())
		if g != "" {
			genres = append(genres, g)
		}
	})

	return providers.DetailRecord{
		ContentRecord: providers.ContentRecord{
			ID:           id,
			Title:        bag.Get("title"),
			ThumbnailURL: poster,
			SourceURL:    c.baseURL + "/" + path,
			Provider:     providers.HiAnime,
		},
		Synopsis: bag.Get("synopsis"),
		Status:   providers.ParseStatus(status),
		Genres:   genres,
		CoverURL: poster,
	}, nil
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
