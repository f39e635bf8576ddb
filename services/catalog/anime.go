package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"yorumi-backend/lib/pager"
	"yorumi-backend/lib/providers"
	"yorumi-backend/lib/providers/anilist"
	"yorumi-backend/lib/providers/hianime"
	"yorumi-backend/lib/reconcile"

	"go.opentelemetry.io/otel/codes"
)

// EnrichedSpotlightItem is a spotlight entry annotated with the
// cross-provider identity found on AniList. Enrichment fields stay
// empty when no exact title match exists; the scraped identity is
// always preserved.
type EnrichedSpotlightItem struct {
	hianime.SpotlightItem
	AniListID string   `json:"anilist_id,omitempty"`
	MalID     string   `json:"mal_id,omitempty"`
	Genres    []string `json:"genres,omitempty"`
	CoverURL  string   `json:"cover_url,omitempty"`
}

// EnrichedSpotlight returns the home-page spotlight with AniList
// identities attached. The assembled list is cached; while a cached
// copy exists callers never wait on the scrape or the enrichment.
func (s *Service) EnrichedSpotlight(ctx context.Context) ([]EnrichedSpotlightItem, error) {
	ctx, span := tracer.Start(ctx, "EnrichedSpotlight")
	defer span.End()

	raw, err := s.cache.GetOrRefresh(ctx, spotlightCacheKey, spotlightTTL, spotlightTTL, s.buildSpotlight)
	if err != nil {
		if degradeUpstream(ctx, span, "EnrichedSpotlight", err) {
			return []EnrichedSpotlightItem{}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "spotlight unavailable")
		return nil, err
	}

	var items []EnrichedSpotlightItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Service) buildSpotlight(ctx context.Context) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "buildSpotlight")
	defer span.End()

	spotlight, err := s.hianime.Spotlight(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// enrichment runs one title at a time; AniList rate limits burst
	// traffic and the producer is already off the request path
	items := make([]EnrichedSpotlightItem, 0, len(spotlight))
	for _, entry := range spotlight {
		items = append(items, s.enrichSpotlightItem(ctx, entry))
	}
	return json.Marshal(items)
}

func (s *Service) enrichSpotlightItem(ctx context.Context, entry hianime.SpotlightItem) EnrichedSpotlightItem {
	item := EnrichedSpotlightItem{SpotlightItem: entry}

	mediaByID := map[string]anilist.Media{}
	match, err := reconcile.Reconcile(ctx, entry.Title, func(ctx context.Context, query string) ([]reconcile.Candidate, error) {
		result, err := s.anilist.SearchAnime(ctx, query, 1, 10)
		if err != nil {
			return nil, err
		}
		candidates := make([]reconcile.Candidate, 0, len(result.Media))
		for _, media := range result.Media {
			record := media.Record()
			mediaByID[record.ID] = media
			candidates = append(candidates, reconcile.Candidate{ID: record.ID, Title: record.Title})
		}
		return candidates, nil
	})
	if err != nil {
		slog.WarnContext(ctx, "spotlight enrichment lookup failed", "title", entry.Title, "err", err)
		return item
	}
	if match == nil {
		return item
	}

	found := mediaByID[match.ID]
	item.AniListID = match.ID
	item.MalID = found.MalID()
	item.Genres = found.Genres
	item.CoverURL = found.CoverImage.ExtraLarge
	return item
}

// SearchAnime queries the MAL index. Records with missing fields are
// returned as-is, never dropped.
func (s *Service) SearchAnime(ctx context.Context, query string, page int) ([]providers.ContentRecord, providers.ChildPage, error) {
	ctx, span := tracer.Start(ctx, "SearchAnime")
	defer span.End()

	records, pagination, err := s.jikan.SearchAnime(ctx, query, page)
	if err != nil {
		if degradeUpstream(ctx, span, "SearchAnime", err) {
			return []providers.ContentRecord{}, providers.ChildPage{}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return nil, providers.ChildPage{}, err
	}
	return records, pagination, nil
}

// AnimeAZList lists titles alphabetically, one page at a time.
func (s *Service) AnimeAZList(ctx context.Context, letter string, page int) ([]providers.ContentRecord, providers.ChildPage, error) {
	ctx, span := tracer.Start(ctx, "AnimeAZList")
	defer span.End()

	records, pagination, err := s.hianime.AZList(ctx, letter, page)
	if err != nil {
		if degradeUpstream(ctx, span, "AnimeAZList", err) {
			return []providers.ContentRecord{}, providers.ChildPage{}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "az list failed")
		return nil, providers.ChildPage{}, err
	}
	return records, pagination, nil
}

// AnimeInfo fetches the detail page for one title.
func (s *Service) AnimeInfo(ctx context.Context, id string) (providers.DetailRecord, error) {
	ctx, span := tracer.Start(ctx, "AnimeInfo")
	defer span.End()

	detail, err := s.hianime.GetInfo(ctx, id)
	if err != nil {
		if degradeUpstream(ctx, span, "AnimeInfo", err) {
			return providers.DetailRecord{}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "info failed")
		return providers.DetailRecord{}, err
	}
	return detail, nil
}

// AnimeEpisodes returns the full episode list for a MAL id in ordinal
// order, walking every listing page and caching the assembled result.
func (s *Service) AnimeEpisodes(ctx context.Context, malID string) ([]providers.ChildItem, error) {
	ctx, span := tracer.Start(ctx, "AnimeEpisodes")
	defer span.End()

	raw, err := s.cache.GetOrRefresh(ctx, "episodes:jikan:"+malID, episodesTTL, episodesTTL, func(ctx context.Context) ([]byte, error) {
		episodes, err := pager.FetchAllPages(ctx, func(ctx context.Context, page int) (pager.Page[providers.ChildItem], error) {
			result, err := s.jikan.EpisodesPage(ctx, malID, page)
			if err != nil {
				return pager.Page[providers.ChildItem]{}, err
			}
			return pager.Page[providers.ChildItem]{
				Items:       result.Items,
				LastPage:    result.LastPage,
				HasNextPage: result.HasNextPage,
			}, nil
		})
		if err != nil {
			return nil, err
		}

		episodes = providers.DedupeChildren(episodes)
		sort.SliceStable(episodes, func(i, j int) bool {
			return episodes[i].Ordinal < episodes[j].Ordinal
		})
		return json.Marshal(episodes)
	})
	if err != nil {
		if degradeUpstream(ctx, span, "AnimeEpisodes", err) {
			return []providers.ChildItem{}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "episodes unavailable")
		return nil, err
	}

	var episodes []providers.ChildItem
	if err := json.Unmarshal(raw, &episodes); err != nil {
		return nil, err
	}
	return episodes, nil
}
