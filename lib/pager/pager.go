// Package pager fans out paginated upstream fetches with bounded
// concurrency and reassembles the results in page order.
package pager

import (
	"context"
	"log/slog"
	"sync"

	"yorumi-backend/lib/telemetry"
)

var tracer = telemetry.Tracer("yorumi-backend/lib/pager")

const (
	// BatchSize is how many pages are fetched concurrently per wave.
	BatchSize = 5
	// PageCeiling caps how deep any listing is walked regardless of
	// what the upstream reports as its last page.
	PageCeiling = 10
)

// Page is one fetched page of items plus the upstream's pagination
// cursor state.
type Page[T any] struct {
	Items       []T
	LastPage    int
	HasNextPage bool
}

// FetchFunc fetches a single 1-based page.
type FetchFunc[T any] func(ctx context.Context, page int) (Page[T], error)

// FetchAllPages walks a paginated listing. Page 1 is fetched alone to
// learn the total page count, then the remaining pages are fetched in
// waves of BatchSize, never past PageCeiling. Results are concatenated
// in ascending page order no matter which fetch finishes first. A page
// that fails is logged and contributes nothing; it never aborts the
// other pages.
func FetchAllPages[T any](ctx context.Context, fetch FetchFunc[T]) ([]T, error) {
	ctx, span := tracer.Start(ctx, "FetchAllPages")
	defer span.End()

	first, err := fetch(ctx, 1)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	lastPage := first.LastPage
	if lastPage > PageCeiling {
		lastPage = PageCeiling
	}
	if lastPage <= 1 {
		return first.Items, nil
	}

	pages := make([][]T, lastPage+1)
	pages[1] = first.Items

	for batchStart := 2; batchStart <= lastPage; batchStart += BatchSize {
		batchEnd := batchStart + BatchSize - 1
		if batchEnd > lastPage {
			batchEnd = lastPage
		}

		var wg sync.WaitGroup
		for page := batchStart; page <= batchEnd; page++ {
			wg.Add(1)
			go func(page int) {
				defer wg.Done()
				result, err := fetch(ctx, page)
				if err != nil {
					slog.WarnContext(ctx, "page fetch failed", "page", page, "err", err)
					return
				}
				pages[page] = result.Items
			}(page)
		}
		wg.Wait()
	}

	var all []T
	for _, items := range pages {
		all = append(all, items...)
	}
	return all, nil
}
