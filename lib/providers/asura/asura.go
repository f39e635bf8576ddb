// Package asura scrapes AsuraScans. The site renders its lists with
// client-side script, so every operation drives a throwaway headless
// browser session through the fetch renderer instead of a plain GET.
//
// Identifier rule: the series id is the path segment after "/series/",
// the chapter id is the segment after "/chapter/".
package asura

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"

	"yorumi-backend/lib/extract"
	"yorumi-backend/lib/htmlutil"
	"yorumi-backend/lib/providers"
	"yorumi-backend/lib/telemetry"
	"yorumi-backend/lib/textutil"
)

var tracer = telemetry.Tracer("yorumi.lib.providers.asura")

const defaultBaseURL = "https://asuracomic.net"

// Renderer is the rendered-fetch dependency, satisfied by
// *fetch.Renderer in production and by fixture fakes in tests.
type Renderer interface {
	FetchRendered(ctx context.Context, url string, waitSelector string) (*goquery.Document, error)
}

type Client struct {
	renderer Renderer
	baseURL  string
}

type ClientOptions struct {
	Renderer Renderer
	// BaseURL overrides the live site, used by tests.
	BaseURL string
}

func NewClient(opts ClientOptions) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		renderer: opts.Renderer,
		baseURL:  baseURL,
	}
}

func (c *Client) Search(ctx context.Context, query string) ([]providers.ContentRecord, error) {
	ctx, span := tracer.Start(ctx, "Search")
	defer span.End()

	pageURL := c.baseURL + "/series?name=" + url.QueryEscape(query)
	doc, err := c.renderer.FetchRendered(ctx, pageURL, `a[href*="/series/"]`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search render failed")
		return nil, err
	}

	var records []providers.ContentRecord
	doc.Find(`a[href*="/series/"]`).Each(func(_ int, anchor *goquery.Selection) {
		href, _ := anchor.Attr("href")
		id := pathSegmentAfter(href, "/series/")
		if id == "" {
			return
		}

		title := textutil.CollapseWhitespace(anchor.Text())
		titleEl := anchor.Find("span.font-bold, h3, div.text-sm").First()
		if titleEl.Length() > 0 {
			if t := textutil.CollapseWhitespace(titleEl.Text()); t != "" {
				title = t
			}
		}
		if title == "" {
			return
		}

		records = append(records, providers.ContentRecord{
			ID:           id,
			Title:        title,
			ThumbnailURL: htmlutil.AttrOrFirst(anchor.Find("img").First(), "src", "data-src"),
			SourceURL:    c.baseURL + "/series/" + id,
			Provider:     providers.Asura,
		})
	})

	return dedupeRecords(records), nil
}

var detailRules = extract.RuleSet{
	Container: "body",
	Fields: map[string]extract.FieldRule{
		"title":    {Selectors: []string{"h1", "span.text-xl"}},
		"synopsis": {Selectors: []string{"span.text-base", "p.description"}},
		"status":   {Selectors: []string{"div.status"}},
	},
}

func (c *Client) GetDetails(ctx context.Context, id string) (providers.DetailRecord, error) {
	ctx, span := tracer.Start(ctx, "GetDetails")
	defer span.End()

	pageURL := c.baseURL + "/series/" + id
	doc, err := c.renderer.FetchRendered(ctx, pageURL, "h1, span.font-bold")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "details render failed")
		return providers.DetailRecord{}, err
	}

	bags := extract.Extract(doc, detailRules)
	if len(bags) == 0 || bags[0].Get("title") == "" {
		span.SetStatus(codes.Error, "no detail markup in page")
		return providers.DetailRecord{}, providers.ErrNotFound
	}
	bag := bags[0]

	var genres []string
	doc.Find("button, a.badge").Each(func(_ int, sel *goquery.Selection) {
		g := textutil.CollapseWhitespace(sel.Text())
		if len(g) > 2 {
			genres = append(genres, g)
		}
	})

	cover := htmlutil.AttrOrFirst(doc.Find(`img[alt="`+bag.Get("title")+`"]`).First(), "src")
	if cover == "" {
		cover = htmlutil.AttrOrFirst(doc.Find("img").First(), "src", "data-src")
	}

	return providers.DetailRecord{
		ContentRecord: providers.ContentRecord{
			ID:           id,
			Title:        bag.Get("title"),
			ThumbnailURL: cover,
			SourceURL:    pageURL,
			Provider:     providers.Asura,
		},
		Synopsis: bag.Get("synopsis"),
		Status:   providers.ParseStatus(bag.Get("status")),
		Genres:   genres,
		CoverURL: cover,
	}, nil
}

// ListChapters pulls every chapter link off the rendered series page.
// Chapter ids are numeric-coercible ("105", "105.5") and carry no
// explicit ordinal markup, so the list is ordered by descending id.
func (c *Client) ListChapters(ctx context.Context, id string) ([]providers.ChildItem, error) {
	ctx, span := tracer.Start(ctx, "ListChapters")
	defer span.End()

	pageURL := c.baseURL + "/series/" + id
	doc, err := c.renderer.FetchRendered(ctx, pageURL, `a[href*="/chapter/"]`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chapter list render failed")
		return nil, err
	}

	var items []providers.ChildItem
	doc.Find(`a[href*="/chapter/"]`).Each(func(_ int, anchor *goquery.Selection) {
		href, _ := anchor.Attr("href")
		chapterID := pathSegmentAfter(href, "/chapter/")
		if chapterID == "" {
			return
		}
		title := textutil.CollapseWhitespace(anchor.Text())
		if title == "" {
			title = "Chapter " + chapterID
		}
		items = append(items, providers.ChildItem{
			ID:       chapterID,
			ParentID: id,
			Title:    title,
		})
	})

	items = providers.DedupeChildren(items)
	return providers.SortChildrenByID(items), nil
}

// non-content image markers on reader pages
var excludedAssetMarkers = []string{"logo", "banner", "icon", "avatar"}

// ListPages captures every content image on the rendered reader page,
// in document order, filtering obvious chrome by URL.
func (c *Client) ListPages(ctx context.Context, id, chapterID string) ([]providers.PageItem, error) {
	ctx, span := tracer.Start(ctx, "ListPages")
	defer span.End()

	pageURL := c.baseURL + "/series/" + id + "/chapter/" + chapterID
	doc, err := c.renderer.FetchRendered(ctx, pageURL, `img[alt*="page"], div.flex-col img`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reader render failed")
		return nil, err
	}

	var pages []providers.PageItem
	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		src := htmlutil.AttrOrFirst(sel, "src", "data-src")
		if !strings.HasPrefix(src, "http") || isExcludedAsset(src) {
			return
		}
		pages = append(pages, providers.PageItem{
			Ordinal:  len(pages) + 1,
			AssetURL: src,
		})
	})
	return pages, nil
}

func isExcludedAsset(src string) bool {
	for _, marker := range excludedAssetMarkers {
		if strings.Contains(src, marker) {
			return true
		}
	}
	return false
}

func pathSegmentAfter(href, marker string) string {
	_, rest, found := strings.Cut(href, marker)
	if !found {
		return ""
	}
	segment, _, _ := strings.Cut(rest, "/")
	segment, _, _ = strings.Cut(segment, "?")
	return segment
}

func dedupeRecords(records []providers.ContentRecord) []providers.ContentRecord {
	seen := make(map[string]struct{}, len(records))
	var out []providers.ContentRecord
	for _, record := range records {
		if _, dup := seen[record.ID]; dup {
			continue
		}
		seen[record.ID] = struct{}{}
		out = append(out, record)
	}
	return out
}
