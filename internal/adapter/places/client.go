// Package places implements domain.PlaceFinder against the Google Places
// web service family: nearby search, reverse geocoding, and text search.
package places

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/storm-archive-backfill/internal/domain"
)

const metersPerMile = 1609.344

// Client calls the places API. Every method returns a zero value with a nil
// error when the API simply has no results; errors are reserved for
// transport and protocol failures. Callers treat both as a tier miss.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a places client. baseURL covers the maps API root so
// tests can point all three endpoints at one fake server.
func NewClient(apiKey, baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		logger:     logger,
	}
}

// NearbySearch returns candidates of one category within radiusMiles of the
// coordinate, nearest first as returned by the API.
func (c *Client) NearbySearch(ctx context.Context, lat, lon, radiusMiles float64, category string) ([]domain.PlaceCandidate, error) {
	params := url.Values{
		"location": {fmt.Sprintf("%.6f,%.6f", lat, lon)},
		"radius":   {fmt.Sprintf("%.0f", radiusMiles*metersPerMile)},
		"type":     {category},
		"key":      {c.apiKey},
	}
	resp, err := c.doRequest(ctx, c.baseURL+"/place/nearbysearch/json?"+params.Encode())
	if err != nil {
		return nil, err
	}
	out := make([]domain.PlaceCandidate, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, r.toCandidate())
	}
	return out, nil
}

// ReverseLookup returns the smallest enclosing named locality for the
// coordinate.
func (c *Client) ReverseLookup(ctx context.Context, lat, lon float64) (domain.PlaceCandidate, error) {
	params := url.Values{
		"latlng":      {fmt.Sprintf("%.6f,%.6f", lat, lon)},
		"result_type": {"locality"},
		"key":         {c.apiKey},
	}
	resp, err := c.doRequest(ctx, c.baseURL+"/geocode/json?"+params.Encode())
	if err != nil {
		return domain.PlaceCandidate{}, err
	}
	if len(resp.Results) == 0 {
		return domain.PlaceCandidate{}, nil
	}
	return resp.Results[0].toCandidate(), nil
}

// TextSearch returns the best-match candidate for a free-text query.
func (c *Client) TextSearch(ctx context.Context, query string) (domain.PlaceCandidate, error) {
	params := url.Values{
		"query": {query},
		"key":   {c.apiKey},
	}
	resp, err := c.doRequest(ctx, c.baseURL+"/place/textsearch/json?"+params.Encode())
	if err != nil {
		return domain.PlaceCandidate{}, err
	}
	if len(resp.Results) == 0 {
		return domain.PlaceCandidate{}, nil
	}
	return resp.Results[0].toCandidate(), nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("places request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("places API error: status %d: %s", resp.StatusCode, body)
	}

	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	// ZERO_RESULTS is a normal empty answer, not a failure.
	if decoded.Status != "" && decoded.Status != "OK" && decoded.Status != "ZERO_RESULTS" {
		return nil, fmt.Errorf("places API status %s: %s", decoded.Status, decoded.ErrorMessage)
	}
	return &decoded, nil
}

// Places API response types.

type response struct {
	Results      []result `json:"results"`
	Status       string   `json:"status"`
	ErrorMessage string   `json:"error_message"`
}

type result struct {
	Name             string   `json:"name"`
	FormattedAddress string   `json:"formatted_address"`
	Types            []string `json:"types"`
	Geometry         struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
}

func (r result) toCandidate() domain.PlaceCandidate {
	name := r.Name
	if name == "" {
		name = r.FormattedAddress
	}
	return domain.PlaceCandidate{
		Name:  name,
		Lat:   r.Geometry.Location.Lat,
		Lon:   r.Geometry.Location.Lng,
		Types: r.Types,
	}
}
