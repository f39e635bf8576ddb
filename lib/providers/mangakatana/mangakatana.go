// Package mangakatana scrapes MangaKatana. Search, details and
// chapter lists come from plain markup; chapter page images are
// embedded in inline script text, so the page lister walks an ordered
// chain of extraction strategies instead of a single selector.
//
// Identifier rule: the series id is the URL path after "/manga/" with
// any trailing slash trimmed (e.g. "one-piece.12345"); the chapter id
// is the final path segment of the chapter link (e.g. "c1051").
package mangakatana

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/codes"

	"yorumi-backend/lib/extract"
	"yorumi-backend/lib/fetch"
	"yorumi-backend/lib/htmlutil"
	"yorumi-backend/lib/providers"
	"yorumi-backend/lib/telemetry"
	"yorumi-backend/lib/textutil"
)

var tracer = telemetry.Tracer("yorumi.lib.providers.mangakatana")

const defaultBaseURL = "https://mangakatana.com"

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
			BaseURL: baseURL,
			Headers: map[string]string{
				"accept":  "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
				"referer": baseURL,
			},
			CloudflareBypass: true,
			TracerName:       "yorumi.lib.providers.mangakatana.http",
		}),
		baseURL: baseURL,
	}
}

var searchRules = extract.RuleSet{
	Container: "#book_list > div.item",
	Fields: map[string]extract.FieldRule{
		"title": {Selectors: []string{"div.text > h3 > a"}},
		"link":  {Selectors: []string{"div.text > h3 > a"}, Attr: "href"},
		"thumb": {Selectors: []string{"div.cover img"}, Attr: "src", AttrFallbacks: []string{"data-src"}},
	},
}

func (c *Client) Search(ctx context.Context, query string) ([]providers.ContentRecord, error) {
	ctx, span := tracer.Start(ctx, "Search")
	defer span.End()

	doc, err := c.getDoc(ctx, "/?search="+queryEscape(query)+"&search_by=book_name")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search fetch failed")
		return nil, err
	}

	bags := extract.Extract(doc, searchRules)
	bags = extract.DedupeBy(bags, func(b extract.FieldBag) string { return b.Get("link") })

	var records []providers.ContentRecord
	for _, bag := range bags {
		link := bag.Get("link")
		records = append(records, providers.ContentRecord{
			ID:           seriesID(c.baseURL, link),
			Title:        bag.Get("title"),
			ThumbnailURL: bag.Get("thumb"),
			SourceURL:    link,
			Provider:     providers.MangaKatana,
		})
	}
	return records, nil
}

var detailRules = extract.RuleSet{
	Container: "#single_book, .single_book, body",
	Fields: map[string]extract.FieldRule{
		"title":    {Selectors: []string{"h1.heading"}},
		"alt":      {Selectors: []string{".alt_name"}},
		"status":   {Selectors: []string{".value.status"}},
		"synopsis": {Selectors: []string{".summary > p"}},
		"cover":    {Selectors: []string{"div.media div.cover img"}, Attr: "src", AttrFallbacks: []string{"data-src"}},
	},
}

func (c *Client) GetDetails(ctx context.Context, id string) (providers.DetailRecord, error) {
	ctx, span := tracer.Start(ctx, "GetDetails")
	defer span.End()

	doc, err := c.getDoc(ctx, "/manga/"+id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "details fetch failed")
		return providers.DetailRecord{}, err
	}

	bags := extract.Extract(doc, detailRules)
	if len(bags) == 0 || bags[0].Get("title") == "" {
		span.SetStatus(codes.Error, "no detail markup in page")
		return providers.DetailRecord{}, providers.ErrNotFound
	}
	bag := bags[0]

	var alts []string
	for _, alt := range strings.Split(bag.Get("alt"), ";") {
		alt = strings.TrimSpace(alt)
		if alt != "" {
			alts = append(alts, alt)
		}
	}
	var genres []string
	doc.Find(".genres > a").Each(func(_ int, sel *goquery.Selection) {
		g := strings.TrimSpace(sel.Text())
		if g != "" {
			genres = append(genres, g)
		}
	})

	return providers.DetailRecord{
		ContentRecord: providers.ContentRecord{
			ID:           id,
			Title:        bag.Get("title"),
			ThumbnailURL: bag.Get("cover"),
			SourceURL:    c.baseURL + "/manga/" + id,
			Provider:     providers.MangaKatana,
		},
		AltTitles: alts,
		Synopsis:  bag.Get("synopsis"),
		Status:    providers.ParseStatus(bag.Get("status")),
		Genres:    genres,
		CoverURL:  bag.Get("cover"),
	}, nil
}

// uploadTimeLayout matches the site's update_time column, e.g.
// "Oct-12-2023".
const uploadTimeLayout = "Jan-02-2006"

// ListChapters scrapes the chapter table on the series page. Ordinals
// are assigned from numeric-coercible chapter ids; ids that do not
// parse keep document order.
func (c *Client) ListChapters(ctx context.Context, id string) ([]providers.ChildItem, error) {
	ctx, span := tracer.Start(ctx, "ListChapters")
	defer span.End()

	doc, err := c.getDoc(ctx, "/manga/"+id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chapter list fetch failed")
		return nil, err
	}

	var items []providers.ChildItem
	doc.Find("tr:has(.chapter)").Each(func(_ int, row *goquery.Selection) {
		link := row.Find("a").First()
		href, _ := link.Attr("href")
		title := textutil.CollapseWhitespace(link.Text())
		if href == "" || title == "" {
			return
		}

		item := providers.ChildItem{
			ID:       htmlutil.LastPathSegment(href),
			ParentID: id,
			Title:    title,
		}
		uploaded, err := time.Parse(uploadTimeLayout, strings.TrimSpace(row.Find(".update_time").Text()))
		if err == nil {
			item.UploadedAt = &uploaded
		}
		items = append(items, item)
	})

	// the site lists newest first; with explicit ordinals attached the
	// document order is kept as-is
	items = providers.DedupeChildren(items)
	for i, item := range items {
		n, ok := chapterNumber(item.ID)
		if ok {
			items[i].Ordinal = n
		}
	}
	return items, nil
}

func (c *Client) getDoc(ctx context.Context, path string) (*goquery.Document, error) {
	body, err := c.getRaw(ctx, path)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

func (c *Client) getRaw(ctx context.Context, path string) ([]byte, error) {
	res, err := c.http.R().SetContext(ctx).Get(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fetch.ErrUpstreamUnavailable, err)
	}
	if res.StatusCode() == 404 {
		return nil, providers.ErrNotFound
	}
	if res.StatusCode() < 200 || res.StatusCode() >= 300 {
		return nil, fmt.Errorf("%w: status %d from %s", fetch.ErrUpstreamUnavailable, res.StatusCode(), path)
	}
	return res.Body(), nil
}

func seriesID(baseURL, link string) string {
	id := strings.TrimPrefix(link, baseURL+"/manga/")
	id = strings.TrimPrefix(id, "/manga/")
	return strings.TrimRight(id, "/")
}

func queryEscape(s string) string {
	return url.QueryEscape(strings.TrimSpace(s))
}
