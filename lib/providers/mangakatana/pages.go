package mangakatana

import (
	"bytes"
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"yorumi-backend/lib/htmlutil"
	"yorumi-backend/lib/providers"
)

// The reader embeds its image list in inline script text rather than
// markup, and the shape has changed over time. Page extraction walks
// an ordered chain of strategies; a strategy that matches nothing
// falls through to the next, and only exhaustion of the whole chain
// yields an empty result. Never an error: a drifting reader page
// degrades, it does not abort.
type pageStrategy struct {
	name string
	fn   func(markup string, doc *goquery.Document) []providers.PageItem
}

var pageStrategies = []pageStrategy{
	{"named-script-array", pagesFromNamedArray},
	{"data-src-indirection", pagesFromDataSrcVariable},
	{"img-tags", pagesFromImageTags},
}

// ListPages returns the chapter's images in encounter order, ordinals
// 1-based. chapterPath is "<seriesID>/<chapterID>".
func (c *Client) ListPages(ctx context.Context, chapterPath string) ([]providers.PageItem, error) {
	ctx, span := tracer.Start(ctx, "ListPages")
	defer span.End()

	body, err := c.getRaw(ctx, "/manga/"+chapterPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chapter page fetch failed")
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse chapter page")
		return nil, err
	}

	markup := string(body)
	for _, strategy := range pageStrategies {
		pages := strategy.fn(markup, doc)
		if len(pages) > 0 {
			span.SetAttributes(
				attribute.String("strategy", strategy.name),
				attribute.Int("pages", len(pages)),
			)
			return pages, nil
		}
	}

	slog.WarnContext(ctx, "no page extraction strategy matched",
		"provider", providers.MangaKatana,
		"chapter", chapterPath,
	)
	span.AddEvent("strategy chain exhausted")
	return nil, nil
}

var scriptArrayRegex = regexp.MustCompile(`var\s+\w+\s*=\s*\[([^\]]+)\]`)
var dataSrcVarRegex = regexp.MustCompile(`data-src['"]\s*,\s*(\w+)`)
var quotedStringRegex = regexp.MustCompile(`['"]([^'"]+)['"]`)

// strategy 1: the first script array literal on the page is the image
// list.
func pagesFromNamedArray(markup string, _ *goquery.Document) []providers.PageItem {
	groups := scriptArrayRegex.FindStringSubmatch(markup)
	if groups == nil {
		return nil
	}
	return pagesFromArrayLiteral(groups[1])
}

// strategy 2: the reader script wires images through
// setAttribute('data-src', someVar); find that variable's array
// literal by name.
func pagesFromDataSrcVariable(markup string, _ *goquery.Document) []providers.PageItem {
	groups := dataSrcVarRegex.FindStringSubmatch(markup)
	if groups == nil {
		return nil
	}
	arrayRegex, err := regexp.Compile(`var\s+` + regexp.QuoteMeta(groups[1]) + `\s*=\s*\[([^\]]+)\]`)
	if err != nil {
		return nil
	}
	arrayGroups := arrayRegex.FindStringSubmatch(markup)
	if arrayGroups == nil {
		return nil
	}
	return pagesFromArrayLiteral(arrayGroups[1])
}

// strategy 3: plain image tags inside the reader container.
func pagesFromImageTags(_ string, doc *goquery.Document) []providers.PageItem {
	var pages []providers.PageItem
	doc.Find("#imgs img").Each(func(_ int, sel *goquery.Selection) {
		src := htmlutil.AttrOrFirst(sel, "data-src", "src")
		if src == "" {
			return
		}
		pages = append(pages, providers.PageItem{
			Ordinal:  len(pages) + 1,
			AssetURL: src,
		})
	})
	return pages
}

func pagesFromArrayLiteral(literal string) []providers.PageItem {
	var pages []providers.PageItem
	for _, match := range quotedStringRegex.FindAllStringSubmatch(literal, -1) {
		u := strings.TrimSpace(match[1])
		switch {
		case strings.HasPrefix(u, "//"):
			u = "https:" + u
		case !strings.HasPrefix(u, "http"):
			continue
		}
		pages = append(pages, providers.PageItem{
			Ordinal:  len(pages) + 1,
			AssetURL: u,
		})
	}
	return pages
}

// chapterNumber extracts the numeric part of a chapter id like
// "c105.5". False when the id carries no leading-c number.
func chapterNumber(id string) (float64, bool) {
	trimmed := strings.TrimPrefix(id, "c")
	n, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
