// Package iem downloads warning-geometry shapefile archives from the Iowa
// Environmental Mesonet export endpoint.
package iem

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// minArchiveBytes rejects suspiciously small payloads. The endpoint returns
// short HTML error pages with status 200 when a request is malformed; a real
// archive with even one record is well above this.
const minArchiveBytes = 100

// zipMagic is the local-file-header signature opening every zip archive.
var zipMagic = []byte{'P', 'K', 0x03, 0x04}

var (
	// ErrTooSmall marks a response below the minimum plausible archive size.
	ErrTooSmall = errors.New("response smaller than minimum archive size")

	// ErrNotArchive marks a response without the zip magic bytes.
	ErrNotArchive = errors.New("response is not a zip archive")
)

// Fetcher downloads one compressed shapefile archive per call. Retry policy
// belongs to the caller; the fetcher's job is a single attempt with a
// timeout and malformed-response detection.
type Fetcher struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewFetcher creates an archive fetcher against the given export endpoint.
func NewFetcher(baseURL string, timeout time.Duration, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		logger:     logger,
	}
}

// FetchArchive requests the warning shapefile archive for one office and
// time window. Timestamps are truncated to minute precision in UTC, matching
// the endpoint's expected format.
func (f *Fetcher) FetchArchive(ctx context.Context, region string, start, end time.Time) ([]byte, error) {
	params := url.Values{
		"accept":   {"shapefile"},
		"wfo":      {region},
		"sts":      {start.UTC().Format("2006-01-02T15:04Z")},
		"ets":      {end.UTC().Format("2006-01-02T15:04Z")},
		"limitwfo": {"yes"},
	}
	fullURL := f.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	started := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch archive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("archive endpoint status %d: %s", resp.StatusCode, body)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read archive body: %w", err)
	}

	if len(data) < minArchiveBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooSmall, len(data))
	}
	if !bytes.HasPrefix(data, zipMagic) {
		return nil, ErrNotArchive
	}

	f.logger.Debug("archive downloaded",
		"region", region,
		"bytes", len(data),
		"duration", time.Since(started),
	)
	return data, nil
}
