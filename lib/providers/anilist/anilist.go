// Package anilist adapts the AniList GraphQL API to the provider
// contract. One POST per query with {query, variables} bodies.
package anilist

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"yorumi-backend/lib/fetch"
	"yorumi-backend/lib/providers"
	"yorumi-backend/lib/telemetry"
)

var tracer = telemetry.Tracer("yorumi.lib.providers.anilist")

const defaultEndpoint = "https://graphql.anilist.co"

type Client struct {
	http     *resty.Client
	endpoint string
}

type ClientOptions struct {
	// Endpoint overrides the live GraphQL endpoint, used by tests.
	Endpoint string
}

func NewClient(opts ClientOptions) *Client {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Client{
		http: fetch.NewRestyClient(fetch.ClientOptions{
			TracerName: "yorumi.lib.providers.anilist.http",
		}),
		endpoint: endpoint,
	}
}

func (c *Client) graphqlQuery(ctx context.Context, name, query string, variables map[string]any, output any) error {
	ctx, span := tracer.Start(ctx, fmt.Sprintf("graphql:%s", name))
	defer span.End()

	serialized, err := json.Marshal(variables)
	if err == nil {
		span.SetAttributes(attribute.String("variables", string(serialized)))
	}

	body, err := json.Marshal(map[string]any{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to serialize query")
		return err
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("content-type", "application/json").
		SetHeader("accept", "application/json").
		SetBody(body).
		Post(c.endpoint)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch")
		return fmt.Errorf("%w: %v", fetch.ErrUpstreamUnavailable, err)
	}
	if res.StatusCode() < 200 || res.StatusCode() >= 300 {
		span.SetStatus(codes.Error, "non-2xx status")
		return fmt.Errorf("%w: status %d from anilist", fetch.ErrUpstreamUnavailable, res.StatusCode())
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	err = json.Unmarshal(res.Body(), &envelope)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse json response")
		return err
	}
	if len(envelope.Errors) > 0 {
		err = fmt.Errorf("anilist: %s", envelope.Errors[0].Message)
		span.RecordError(err)
		span.SetStatus(codes.Error, "graphql error")
		return err
	}

	return json.Unmarshal(envelope.Data, output)
}

const searchAnimeQuery = `
query ($search: String, $page: Int, $perPage: Int) {
  Page(page: $page, perPage: $perPage) {
    pageInfo { currentPage lastPage hasNextPage }
    media(search: $search, type: ANIME, sort: SEARCH_MATCH) {
      id
      idMal
      title { romaji english native }
      status
      description
      genres
      coverImage { large extraLarge }
      siteUrl
    }
  }
}`

// Media is an AniList media entry with both the canonical AniList id
// and the MAL cross-reference id, when AniList knows it.
type Media struct {
	ID       int    `json:"id"`
	IDMal    *int   `json:"idMal"`
	SiteURL  string `json:"siteUrl"`
	Status   string `json:"status"`
	Synopsis string `json:"description"`
	Genres   []string `json:"genres"`
	Title    struct {
		Romaji  string `json:"romaji"`
		English string `json:"english"`
		Native  string `json:"native"`
	} `json:"title"`
	CoverImage struct {
		Large      string `json:"large"`
		ExtraLarge string `json:"extraLarge"`
	} `json:"coverImage"`
}

// DisplayTitle prefers the english title, falling back to romaji.
func (m Media) DisplayTitle() string {
	if m.Title.English != "" {
		return m.Title.English
	}
	return m.Title.Romaji
}

// MalID returns the MAL cross-reference id as a string, "" when
// AniList has no mapping.
func (m Media) MalID() string {
	if m.IDMal == nil {
		return ""
	}
	return strconv.Itoa(*m.IDMal)
}

type PageInfo struct {
	CurrentPage int  `json:"currentPage"`
	LastPage    int  `json:"lastPage"`
	HasNextPage bool `json:"hasNextPage"`
}

type SearchResult struct {
	Media    []Media
	PageInfo PageInfo
}

func (c *Client) SearchAnime(ctx context.Context, search string, page, perPage int) (SearchResult, error) {
	ctx, span := tracer.Start(ctx, "SearchAnime")
	defer span.End()

	var out struct {
		Page struct {
			PageInfo PageInfo `json:"pageInfo"`
			Media    []Media  `json:"media"`
		} `json:"Page"`
	}
	err := c.graphqlQuery(ctx, "SearchAnime", searchAnimeQuery, map[string]any{
		"search":  search,
		"page":    page,
		"perPage": perPage,
	}, &out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return SearchResult{}, err
	}

	return SearchResult{
		Media:    out.Page.Media,
		PageInfo: out.Page.PageInfo,
	}, nil
}

// Record converts a media entry into the normalized summary record.
func (m Media) Record() providers.ContentRecord {
	return providers.ContentRecord{
		ID:           strconv.Itoa(m.ID),
		Title:        m.DisplayTitle(),
		ThumbnailURL: m.CoverImage.Large,
		SourceURL:    m.SiteURL,
		Provider:     providers.AniList,
	}
}

// Detail converts a media entry into the normalized detail record.
func (m Media) Detail() providers.DetailRecord {
	var alts []string
	for _, alt := range []string{m.Title.Romaji, m.Title.English, m.Title.Native} {
		if alt != "" && alt != m.DisplayTitle() {
			alts = append(alts, alt)
		}
	}
	cover := m.CoverImage.ExtraLarge
	if cover == "" {
		cover = m.CoverImage.Large
	}
	return providers.DetailRecord{
		ContentRecord: m.Record(),
		AltTitles:     alts,
		Synopsis:      m.Synopsis,
		Status:        providers.ParseStatus(m.Status),
		Genres:        m.Genres,
		CoverURL:      cover,
	}
}
