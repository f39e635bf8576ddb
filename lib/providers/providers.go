// Package providers defines the records every upstream adapter
// normalizes into, and the helpers shared between adapters. Each
// adapter exclusively owns the raw-to-record mapping for its provider;
// records are never mutated after an adapter produces them, only
// replaced wholesale by a re-fetch.
package providers

import (
	"fmt"
	"strconv"
	"time"
)

type ProviderID string

const (
	Jikan       ProviderID = "jikan"
	AniList     ProviderID = "anilist"
	HiAnime     ProviderID = "hianime"
	MangaKatana ProviderID = "mangakatana"
	Asura       ProviderID = "asura"
)

// ErrNotFound marks a well-formed request for an identifier the
// provider cannot locate, as opposed to the provider being down.
var ErrNotFound = fmt.Errorf("not found")

type Status string

const (
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
	StatusUnknown   Status = "unknown"
)

// ParseStatus maps the status strings scrape sites print onto the
// closed enum. Anything unrecognized is unknown, never an error.
func ParseStatus(raw string) Status {
	switch normalizeStatus(raw) {
	case "ongoing", "releasing", "publishing", "airing", "currentlyairing":
		return StatusOngoing
	case "completed", "finished", "finishedairing", "complete":
		return StatusCompleted
	}
	return StatusUnknown
}

func normalizeStatus(raw string) string {
	var b []byte
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c >= 'a' && c <= 'z' {
			b = append(b, c)
		}
	}
	return string(b)
}

// ContentRecord is the summary-granularity view of a title. The ID is
// provider-local, it is not unique across providers.
type ContentRecord struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	ThumbnailURL string     `json:"thumbnail_url"`
	SourceURL    string     `json:"source_url"`
	Provider     ProviderID `json:"provider"`
}

// DetailRecord is the full-detail view. Fields default to empty or
// unknown when extraction fails for them, partial success is valid.
type DetailRecord struct {
	ContentRecord
	AltTitles []string `json:"alt_titles"`
	Synopsis  string   `json:"synopsis"`
	Status    Status   `json:"status"`
	Genres    []string `json:"genres"`
	CoverURL  string   `json:"cover_url"`
}

// ChildItem is an episode or chapter belonging to a title. Uniqueness
// is (ParentID, ID); Ordinal is the primary sort key with ties broken
// by insertion order from the source page.
type ChildItem struct {
	ID         string     `json:"id"`
	ParentID   string     `json:"parent_id"`
	Ordinal    float64    `json:"ordinal"`
	Title      string     `json:"title"`
	UploadedAt *time.Time `json:"uploaded_at"`
}

// PageItem is a single image belonging to a chapter. Ordinal is the
// 1-based encounter position, duplicates across ordinals are kept.
type PageItem struct {
	Ordinal  int    `json:"ordinal"`
	AssetURL string `json:"asset_url"`
}

// ChildPage is one page of a paginated child listing.
type ChildPage struct {
	Items       []ChildItem `json:"items"`
	LastPage    int         `json:"last_page"`
	HasNextPage bool        `json:"has_next_page"`
}

// DedupeChildren collapses repeated (ParentID, ID) pairs, keeping the
// first-seen item and therefore its ordinal.
func DedupeChildren(items []ChildItem) []ChildItem {
	type key struct{ parent, id string }
	seen := make(map[key]struct{}, len(items))
	var out []ChildItem
	for _, item := range items {
		k := key{item.ParentID, item.ID}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, item)
	}
	return out
}

// SortChildrenByID orders items by descending numeric identifier, the
// convention for chapter lists whose IDs are chapter numbers. Items
// whose ID does not parse as a number keep their document order,
// placed after the numeric ones. Lists with explicit ordinals should
// not go through here.
func SortChildrenByID(items []ChildItem) []ChildItem {
	type numbered struct {
		item ChildItem
		n    float64
	}
	var numeric []numbered
	var rest []ChildItem
	for _, item := range items {
		n, err := strconv.ParseFloat(item.ID, 64)
		if err != nil {
			rest = append(rest, item)
			continue
		}
		numeric = append(numeric, numbered{item, n})
	}

	// insertion sort keeps equal IDs in document order
	for i := 1; i < len(numeric); i++ {
		for j := i; j > 0 && numeric[j].n > numeric[j-1].n; j-- {
			numeric[j], numeric[j-1] = numeric[j-1], numeric[j]
		}
	}

	out := make([]ChildItem, 0, len(items))
	for _, n := range numeric {
		out = append(out, n.item)
	}
	return append(out, rest...)
}
