// Package overpass implements enrichment.Source against an
// Overpass-API-compatible HTTP endpoint. It performs exactly one HTTP
// call per FetchPOIs invocation and classifies every failure into an
// enrichment.SourceError — retry, backoff, and circuit-breaking all
// live in pkg/enrichment.Worker, not here, so this client must not
// retry on its own.
package overpass

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/leynos/wildside-core/pkg/enrichment"
	"github.com/leynos/wildside-core/pkg/types"
)

// Client calls an Overpass-compatible query endpoint over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

type element struct {
	Type string            `json:"type"`
	ID   uint64            `json:"id"`
	Lon  float64           `json:"lon"`
	Lat  float64           `json:"lat"`
	Tags map[string]string `json:"tags"`
}

type overpassResponse struct {
	Elements []element `json:"elements"`
}

func (c *Client) FetchPOIs(ctx context.Context, req enrichment.FetchRequest) (enrichment.FetchResult, error) {
	query := buildQuery(req)
	endpoint := c.baseURL + "/interpreter"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		bytes.NewBufferString(url.Values{"data": {query}}.Encode()))
	if err != nil {
		return enrichment.FetchResult{}, &enrichment.SourceError{Kind: enrichment.SourceErrorInvalidRequest, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		kind := enrichment.SourceErrorTransport
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = enrichment.SourceErrorTimeout
		}
		return enrichment.FetchResult{}, &enrichment.SourceError{Kind: kind, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return enrichment.FetchResult{}, &enrichment.SourceError{Kind: enrichment.SourceErrorTransport, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return enrichment.FetchResult{}, &enrichment.SourceError{
			Kind: enrichment.SourceErrorRateLimit,
			Err:  fmt.Errorf("overpass: rate limited (%d)", resp.StatusCode),
		}
	case resp.StatusCode >= 500:
		return enrichment.FetchResult{}, &enrichment.SourceError{
			Kind: enrichment.SourceErrorTransport,
			Err:  fmt.Errorf("overpass: server error (%d): %s", resp.StatusCode, body),
		}
	case resp.StatusCode >= 400:
		return enrichment.FetchResult{}, &enrichment.SourceError{
			Kind: enrichment.SourceErrorInvalidRequest,
			Err:  fmt.Errorf("overpass: request rejected (%d): %s", resp.StatusCode, body),
		}
	}

	var parsed overpassResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return enrichment.FetchResult{}, &enrichment.SourceError{Kind: enrichment.SourceErrorTransport, Err: err}
	}

	pois := make([]enrichment.OverpassPoi, 0, len(parsed.Elements))
	for _, el := range parsed.Elements {
		pois = append(pois, enrichment.OverpassPoi{
			ElementType: types.ElementType(el.Type),
			ElementID:   el.ID,
			Lng:         el.Lon,
			Lat:         el.Lat,
			Tags:        el.Tags,
		})
	}

	return enrichment.FetchResult{
		POIs:          pois,
		TransferBytes: int64(len(body)),
		SourceURL:     endpoint,
	}, nil
}

func buildQuery(req enrichment.FetchRequest) string {
	filter := ""
	for k, v := range req.TagFilter {
		filter += fmt.Sprintf("[\"%s\"=\"%s\"]", k, v)
	}
	bbox := fmt.Sprintf("%f,%f,%f,%f", req.Bounds.MinLat, req.Bounds.MinLng, req.Bounds.MaxLat, req.Bounds.MaxLng)
	return fmt.Sprintf("[out:json];(node%s(%s);way%s(%s);relation%s(%s););out body;", filter, bbox, filter, bbox, filter, bbox)
}
