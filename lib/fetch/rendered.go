package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.opentelemetry.io/otel/codes"
)

// blocked resource patterns: heavy assets that never carry the markup
// we extract from
var blockedResourceURLs = []string{
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.svg",
	"*.woff", "*.woff2", "*.ttf", "*.otf",
	"*.mp4", "*.webm", "*.mp3",
}

type RendererOptions struct {
	// Timeout bounds the whole navigation, zero means 30s.
	Timeout time.Duration
	// WaitTimeout bounds the readiness-selector wait, zero means 8s.
	WaitTimeout time.Duration
	// BlockAssets skips image/font/media requests to cut page load
	// time. Defaults off so callers opt in per provider.
	BlockAssets bool
}

type Renderer struct {
	opts RendererOptions
}

func NewRenderer(opts RendererOptions) *Renderer {
	if opts.Timeout == 0 {
		opts.Timeout = time.Second * 30
	}
	if opts.WaitTimeout == 0 {
		opts.WaitTimeout = time.Second * 8
	}
	return &Renderer{opts: opts}
}

// FetchRendered navigates a throwaway browser session to the url,
// optionally waits for a readiness selector, and parses whatever
// markup is present at that point. A missed readiness selector is not
// fatal: many pages render their primary content before secondary
// widgets, so the wait degrades to best-effort extraction. The browser
// session is torn down on every exit path.
//
// Sessions are deliberately not pooled, each call gets its own. A
// crashed or stuck page then only ever costs its own call.
func (r *Renderer) FetchRendered(ctx context.Context, url string, waitSelector string) (*goquery.Document, error) {
	ctx, span := tracer.Start(ctx, "FetchRendered")
	defer span.End()

	ctx, cancelTimeout := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancelTimeout()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.UserAgent(userAgent),
			chromedp.NoSandbox,
		)...,
	)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	setup := []chromedp.Action{network.Enable()}
	if r.opts.BlockAssets {
		setup = append(setup, network.SetBlockedURLS(blockedResourceURLs))
	}
	setup = append(setup, chromedp.Navigate(url))

	err := chromedp.Run(browserCtx, setup...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "navigation failed")
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	if waitSelector != "" {
		waitCtx, cancelWait := context.WithTimeout(browserCtx, r.opts.WaitTimeout)
		err = chromedp.Run(waitCtx, chromedp.WaitReady(waitSelector, chromedp.ByQuery))
		cancelWait()
		if err != nil {
			// degrade to whatever loaded
			slog.WarnContext(ctx, "readiness selector never appeared, extracting from partial page",
				"url", url,
				"selector", waitSelector,
			)
			span.AddEvent("readiness wait timed out")
		}
	}

	var markup string
	err = chromedp.Run(browserCtx, chromedp.OuterHTML("html", &markup, chromedp.ByQuery))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to capture page markup")
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse rendered html")
		return nil, err
	}
	return doc, nil
}
