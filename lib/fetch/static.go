// Package fetch issues outbound requests to upstream providers. It
// offers a static HTTP path for plain markup and JSON endpoints, and a
// rendered path that drives a headless browser for script-rendered
// pages. Retry policy does not live here, callers decide whether a
// failed fetch is worth repeating.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"net/http/cookiejar"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/codes"

	"yorumi-backend/lib/telemetry"
)

// ErrUpstreamUnavailable covers transport failures, timeouts and
// non-2xx statuses from any external provider.
var ErrUpstreamUnavailable = fmt.Errorf("upstream unavailable")

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

const staticTimeout = time.Second * 15

type ClientOptions struct {
	BaseURL string
	// Headers are applied to every request in addition to the fixed
	// client identity header.
	Headers map[string]string
	// CloudflareBypass swaps in a transport that passes common
	// cloudflare browser checks. Scrape targets want this, JSON APIs
	// do not need it.
	CloudflareBypass bool
	TracerName       string
}

// NewRestyClient builds the shared outbound client: cookie jar, fixed
// realistic user agent, hard timeout and instrumentation.
func NewRestyClient(opts ClientOptions) *resty.Client {
	client := resty.New()
	if opts.BaseURL != "" {
		client.SetBaseURL(opts.BaseURL)
	}
	jar, err := cookiejar.New(nil)
	if err == nil {
		client.SetCookieJar(jar)
	}
	if opts.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}

	client.SetHeader("user-agent", userAgent)
	for k, v := range opts.Headers {
		client.SetHeader(k, v)
	}
	client.SetTimeout(staticTimeout)

	tracerName := opts.TracerName
	if tracerName == "" {
		tracerName = "yorumi.lib.fetch.http"
	}
	telemetry.InstrumentResty(client, tracerName)

	return client
}

// FetchStatic performs a single GET and parses the body as HTML.
// Exactly one network round trip, no retries.
func FetchStatic(ctx context.Context, client *resty.Client, url string, headers map[string]string) (*goquery.Document, error) {
	ctx, span := tracer.Start(ctx, "FetchStatic")
	defer span.End()

	req := client.R().SetContext(ctx)
	for k, v := range headers {
		req.SetHeader(k, v)
	}

	res, err := req.Get(url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if res.StatusCode() < 200 || res.StatusCode() >= 300 {
		span.SetStatus(codes.Error, "non-2xx status")
		return nil, fmt.Errorf("%w: status %d from %s", ErrUpstreamUnavailable, res.StatusCode(), url)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse html")
		return nil, err
	}
	return doc, nil
}
