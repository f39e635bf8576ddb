// Package jikan adapts the Jikan REST API (MyAnimeList mirror) to the
// provider contract. Jikan enforces roughly 3 requests per second, so
// every call goes through a shared limiter that spaces requests a few
// hundred milliseconds apart regardless of caller concurrency.
package jikan

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"yorumi-backend/lib/fetch"
	"yorumi-backend/lib/providers"
	"yorumi-backend/lib/telemetry"
)

var tracer = telemetry.Tracer("yorumi.lib.providers.jikan")

const defaultBaseURL = "https://api.jikan.moe/v4"

type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
}

type ClientOptions struct {
	// BaseURL overrides the live API endpoint, used by tests.
	BaseURL string
}

func NewClient(opts ClientOptions) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		http: fetch.NewRestyClient(fetch.ClientOptions{
			BaseURL:    baseURL,
			TracerName: "yorumi.lib.providers.jikan.http",
		}),
		limiter: rate.NewLimiter(rate.Every(time.Millisecond*350), 1),
	}
}

type pagination struct {
	LastVisiblePage int  `json:"last_visible_page"`
	HasNextPage     bool `json:"has_next_page"`
}

type searchResponse struct {
	Data []struct {
		MalID  int    `json:"mal_id"`
		URL    string `json:"url"`
		Title  string `json:"title"`
		Images struct {
			JPG struct {
				ImageURL string `json:"image_url"`
			} `json:"jpg"`
		} `json:"images"`
	} `json:"data"`
	Pagination pagination `json:"pagination"`
}

func (c *Client) SearchAnime(ctx context.Context, query string, page int) ([]providers.ContentRecord, providers.ChildPage, error) {
	ctx, span := tracer.Start(ctx, "SearchAnime")
	defer span.End()

	body, err := c.getJSON(ctx, "/anime", map[string]string{
		"q":    query,
		"page": strconv.Itoa(page),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search request failed")
		return nil, providers.ChildPage{}, err
	}

	var parsed searchResponse
	err = json.Unmarshal(body, &parsed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse search response")
		return nil, providers.ChildPage{}, err
	}

	records := make([]providers.ContentRecord, 0, len(parsed.Data))
	for _, entry := range parsed.Data {
		records = append(records, providers.ContentRecord{
			ID:           strconv.Itoa(entry.MalID),
			Title:        entry.Title,
			ThumbnailURL: entry.Images.JPG.ImageURL,
			SourceURL:    entry.URL,
			Provider:     providers.Jikan,
		})
	}
	return records, providers.ChildPage{
		LastPage:    parsed.Pagination.LastVisiblePage,
		HasNextPage: parsed.Pagination.HasNextPage,
	}, nil
}

type episodesResponse struct {
	Data []struct {
		MalID int    `json:"mal_id"`
		Title string `json:"title"`
		Aired string `json:"aired"`
	} `json:"data"`
	Pagination pagination `json:"pagination"`
}

// EpisodesPage fetches one page of the episode list for a MAL id.
// Page is 1-based. Episode ordinals come from the episode's own
// mal_id, which Jikan documents as the episode number.
func (c *Client) EpisodesPage(ctx context.Context, malID string, page int) (providers.ChildPage, error) {
	ctx, span := tracer.Start(ctx, "EpisodesPage")
	defer span.End()

	body, err := c.getJSON(ctx, fmt.Sprintf("/anime/%s/episodes", malID), map[string]string{
		"page": strconv.Itoa(page),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "episodes request failed")
		return providers.ChildPage{}, err
	}

	var parsed episodesResponse
	err = json.Unmarshal(body, &parsed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse episodes response")
		return providers.ChildPage{}, err
	}

	items := make([]providers.ChildItem, 0, len(parsed.Data))
	for _, entry := range parsed.Data {
		item := providers.ChildItem{
			ID:       strconv.Itoa(entry.MalID),
			ParentID: malID,
			Ordinal:  float64(entry.MalID),
			Title:    entry.Title,
		}
		aired, err := time.Parse(time.RFC3339, entry.Aired)
		if err == nil {
			item.UploadedAt = &aired
		}
		items = append(items, item)
	}

	lastPage := parsed.Pagination.LastVisiblePage
	if lastPage < 1 {
		lastPage = 1
	}
	return providers.ChildPage{
		Items:       items,
		LastPage:    lastPage,
		HasNextPage: parsed.Pagination.HasNextPage,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query map[string]string) ([]byte, error) {
	err := c.limiter.Wait(ctx)
	if err != nil {
		return nil, err
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("accept", "application/json").
		SetQueryParams(query).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fetch.ErrUpstreamUnavailable, err)
	}
	if res.StatusCode() == 404 {
		return nil, providers.ErrNotFound
	}
	if res.StatusCode() < 200 || res.StatusCode() >= 300 {
		return nil, fmt.Errorf("%w: status %d from %s", fetch.ErrUpstreamUnavailable, res.StatusCode(), path)
	}
	return res.Body(), nil
}
