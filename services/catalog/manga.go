package catalog

import (
	"context"
	"fmt"

	"yorumi-backend/lib/providers"

	"go.opentelemetry.io/otel/codes"
)

// ErrUnknownProvider marks a manga request naming a provider the
// catalog does not route.
var ErrUnknownProvider = fmt.Errorf("unknown manga provider")

// SearchManga queries one manga source by name.
func (s *Service) SearchManga(ctx context.Context, provider providers.ProviderID, query string) ([]providers.ContentRecord, error) {
	ctx, span := tracer.Start(ctx, "SearchManga")
	defer span.End()

	var records []providers.ContentRecord
	var err error
	switch provider {
	case providers.MangaKatana:
		records, err = s.katana.Search(ctx, query)
	case providers.Asura:
		records, err = s.asura.Search(ctx, query)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	if err != nil {
		if degradeUpstream(ctx, span, "SearchManga", err) {
			return []providers.ContentRecord{}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return nil, err
	}
	return records, nil
}

// MangaDetails fetches the detail page for one series.
func (s *Service) MangaDetails(ctx context.Context, provider providers.ProviderID, id string) (providers.DetailRecord, error) {
	ctx, span := tracer.Start(ctx, "MangaDetails")
	defer span.End()

	var detail providers.DetailRecord
	var err error
	switch provider {
	case providers.MangaKatana:
		detail, err = s.katana.GetDetails(ctx, id)
	case providers.Asura:
		detail, err = s.asura.GetDetails(ctx, id)
	default:
		return providers.DetailRecord{}, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	if err != nil {
		if degradeUpstream(ctx, span, "MangaDetails", err) {
			return providers.DetailRecord{}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "details failed")
		return providers.DetailRecord{}, err
	}
	return detail, nil
}

// MangaChapters lists every chapter of a series, newest first, with
// repeated chapter ids collapsed to their first occurrence.
func (s *Service) MangaChapters(ctx context.Context, provider providers.ProviderID, id string) ([]providers.ChildItem, error) {
	ctx, span := tracer.Start(ctx, "MangaChapters")
	defer span.End()

	var chapters []providers.ChildItem
	var err error
	switch provider {
	case providers.MangaKatana:
		chapters, err = s.katana.ListChapters(ctx, id)
	case providers.Asura:
		chapters, err = s.asura.ListChapters(ctx, id)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	if err != nil {
		if degradeUpstream(ctx, span, "MangaChapters", err) {
			return []providers.ChildItem{}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "chapters failed")
		return nil, err
	}
	return chapters, nil
}

// MangaPages lists the image urls of one chapter in reading order. A
// chapter whose markup defeats every extraction strategy yields an
// empty list, not an error.
func (s *Service) MangaPages(ctx context.Context, provider providers.ProviderID, id, chapterID string) ([]providers.PageItem, error) {
	ctx, span := tracer.Start(ctx, "MangaPages")
	defer span.End()

	var pages []providers.PageItem
	var err error
	switch provider {
	case providers.MangaKatana:
		pages, err = s.katana.ListPages(ctx, id+"/"+chapterID)
	case providers.Asura:
		pages, err = s.asura.ListPages(ctx, id, chapterID)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	if err != nil {
		if degradeUpstream(ctx, span, "MangaPages", err) {
			return []providers.PageItem{}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "pages failed")
		return nil, err
	}
	return pages, nil
}
