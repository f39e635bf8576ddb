// Package catalog is the aggregation layer the API and CLI talk to.
// It owns which provider serves which operation, the caching policy
// per operation, and cross-provider identity enrichment. Provider
// failures degrade to empty results wherever a partial answer is more
// useful than an error.
package catalog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"yorumi-backend/lib/cache"
	"yorumi-backend/lib/fetch"
	"yorumi-backend/lib/providers/anilist"
	"yorumi-backend/lib/providers/asura"
	"yorumi-backend/lib/providers/hianime"
	"yorumi-backend/lib/providers/jikan"
	"yorumi-backend/lib/providers/mangakatana"
	"yorumi-backend/lib/telemetry"

	"go.opentelemetry.io/otel/trace"
)

var tracer = telemetry.Tracer("yorumi.services.catalog")

const (
	spotlightCacheKey = "spotlight:hianime:enriched"
	spotlightTTL      = 12 * time.Hour
	episodesTTL       = time.Hour
	avatarHashKey     = "user:global"
)

type Service struct {
	hianime *hianime.Client
	anilist *anilist.Client
	jikan   *jikan.Client
	katana  *mangakatana.Client
	asura   *asura.Client
	cache   *cache.Cache
}

type Options struct {
	HiAnime     *hianime.Client
	AniList     *anilist.Client
	Jikan       *jikan.Client
	MangaKatana *mangakatana.Client
	Asura       *asura.Client
	Cache       *cache.Cache
}

func NewService(opts Options) *Service {
	return &Service{
		hianime: opts.HiAnime,
		anilist: opts.AniList,
		jikan:   opts.Jikan,
		katana:  opts.MangaKatana,
		asura:   opts.Asura,
		cache:   opts.Cache,
	}
}

// degradeUpstream reports whether err is an upstream failure the
// catalog absorbs. Sources fall over routinely; the caller gets an
// empty result and the diagnostic goes to the log and the span. A
// missing identifier is not an upstream failure and stays an error.
func degradeUpstream(ctx context.Context, span trace.Span, op string, err error) bool {
	if !errors.Is(err, fetch.ErrUpstreamUnavailable) {
		return false
	}
	span.RecordError(err)
	span.AddEvent("degraded to empty result")
	slog.WarnContext(ctx, "upstream failure degraded to empty result", "op", op, "err", err)
	return true
}
