// Package reconcile matches a title produced by one provider against
// the search results of another. Matching is exact on normalized
// titles only: a false cross-reference later routes requests to the
// wrong canonical identifier, so a miss is always preferable to a
// guess. Callers must treat a nil match as "keep source-provider
// identity", never as an error.
package reconcile

import (
	"context"
	"log/slog"

	"github.com/antzucaro/matchr"
	"go.opentelemetry.io/otel/attribute"

	"yorumi-backend/lib/telemetry"
	"yorumi-backend/lib/textutil"
)

var tracer = telemetry.Tracer("yorumi.lib.reconcile")

// Candidate is one search result from the target provider.
type Candidate struct {
	ID    string
	Title string
}

// SearchFunc queries the target provider for candidates. Implementors
// decide how many results one query returns.
type SearchFunc func(ctx context.Context, query string) ([]Candidate, error)

// Match is a resolved cross-reference to the target provider.
type Match struct {
	ID    string
	Title string
}

// Reconcile searches the target provider with the candidate title and
// returns the first result whose normalized title is exactly equal to
// the normalized candidate. No match returns (nil, nil). An error is
// only returned when the search itself fails.
func Reconcile(ctx context.Context, title string, search SearchFunc) (*Match, error) {
	ctx, span := tracer.Start(ctx, "Reconcile")
	defer span.End()
	span.SetAttributes(attribute.String("title", title))

	candidates, err := search(ctx, title)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	normalized := textutil.NormalizeTitle(title)
	if normalized == "" {
		return nil, nil
	}

	for _, candidate := range candidates {
		if textutil.NormalizeTitle(candidate.Title) == normalized {
			span.SetAttributes(attribute.String("matched_id", candidate.ID))
			return &Match{ID: candidate.ID, Title: candidate.Title}, nil
		}
	}

	logNearMiss(ctx, title, candidates)
	return nil, nil
}

// logNearMiss records the closest candidate by Jaro-Winkler distance.
// Diagnostic only: near misses (alternate romanizations, season
// suffixes) are deliberately left unmatched, but knowing what almost
// matched makes drift in upstream titling visible in the logs.
func logNearMiss(ctx context.Context, title string, candidates []Candidate) {
	if len(candidates) == 0 {
		slog.DebugContext(ctx, "reconciliation miss, no candidates", "title", title)
		return
	}

	var best Candidate
	var bestScore float64
	for _, candidate := range candidates {
		score := matchr.JaroWinkler(
			textutil.NormalizeTitle(title),
			textutil.NormalizeTitle(candidate.Title),
			false,
		)
		if score > bestScore {
			bestScore = score
			best = candidate
		}
	}

	slog.DebugContext(ctx, "reconciliation miss",
		"title", title,
		"closest_title", best.Title,
		"closest_id", best.ID,
		"similarity", bestScore,
	)
}
