package enrich_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-archive-backfill/internal/domain"
	"github.com/couchcryptid/storm-archive-backfill/internal/enrich"
	"github.com/couchcryptid/storm-archive-backfill/internal/observability"
)

// --- mocks ---

type fakeFinder struct {
	nearby     map[string][]domain.PlaceCandidate // keyed by category
	nearbyErr  error
	reverse    domain.PlaceCandidate
	reverseErr error
	text       domain.PlaceCandidate
	textErr    error

	nearbyCalls []string
	textQueries []string
}

func (f *fakeFinder) NearbySearch(_ context.Context, _, _, _ float64, category string) ([]domain.PlaceCandidate, error) {
	f.nearbyCalls = append(f.nearbyCalls, category)
	if f.nearbyErr != nil {
		return nil, f.nearbyErr
	}
	return f.nearby[category], nil
}

func (f *fakeFinder) ReverseLookup(_ context.Context, _, _ float64) (domain.PlaceCandidate, error) {
	return f.reverse, f.reverseErr
}

func (f *fakeFinder) TextSearch(_ context.Context, query string) (domain.PlaceCandidate, error) {
	f.textQueries = append(f.textQueries, query)
	return f.text, f.textErr
}

var testCities = []enrich.RefCity{
	{Name: "Oklahoma City", State: "OK", Lat: 35.4676, Lon: -97.5164},
	{Name: "Tulsa", State: "OK", Lat: 36.1540, Lon: -95.9928},
}

func newEnricher(finder domain.PlaceFinder, cities []enrich.RefCity) *enrich.Enricher {
	return enrich.NewEnricher(finder, cities, slog.Default(), observability.NewMetricsForTesting())
}

// A report coordinate south of Oklahoma City.
const (
	reportLat = 35.20
	reportLon = -97.45
)

// --- tests ---

func TestEnrich_PriorityCategoryWins(t *testing.T) {
	finder := &fakeFinder{
		nearby: map[string][]domain.PlaceCandidate{
			"school": {
				{Name: "Far Elementary", Lat: 35.26, Lon: -97.45},
				{Name: "Close Elementary", Lat: 35.21, Lon: -97.45},
			},
			// A hospital is closer overall but schools rank first.
			"hospital": {{Name: "Norman Regional", Lat: 35.201, Lon: -97.45}},
		},
	}

	ctx := newEnricher(finder, testCities).Enrich(context.Background(), reportLat, reportLon)

	require.NotNil(t, ctx.EventLocation)
	assert.Equal(t, "Close Elementary", ctx.EventLocation.Name)
	assert.Less(t, ctx.EventLocation.DistanceMiles, 1.0)
	assert.Contains(t, []string{"north", "south", "east", "west"}, ctx.EventLocation.Direction)
}

func TestEnrich_ReverseLookupFallback(t *testing.T) {
	finder := &fakeFinder{
		reverse: domain.PlaceCandidate{Name: "Noble", Lat: 35.14, Lon: -97.39, Types: []string{"locality"}},
	}

	ctx := newEnricher(finder, testCities).Enrich(context.Background(), reportLat, reportLon)

	require.NotNil(t, ctx.EventLocation)
	assert.Equal(t, "Noble", ctx.EventLocation.Name)
}

func TestEnrich_ReverseLookupRejectsLargeFeatures(t *testing.T) {
	for _, candidate := range []domain.PlaceCandidate{
		{Name: "Wichita Mountains", Lat: 35.19, Lon: -97.44},
		{Name: "Cross Timbers", Lat: 35.19, Lon: -97.44, Types: []string{"natural_feature"}},
	} {
		finder := &fakeFinder{reverse: candidate}
		ctx := newEnricher(finder, testCities).Enrich(context.Background(), reportLat, reportLon)
		assert.Nil(t, ctx.EventLocation, "candidate %q should be rejected", candidate.Name)
	}
}

func TestEnrich_NearbyTierBacksEventLocation(t *testing.T) {
	finder := &fakeFinder{
		reverseErr: errors.New("service unavailable"),
		nearby: map[string][]domain.PlaceCandidate{
			"locality": {{Name: "Hall Park", Lat: 35.22, Lon: -97.42}},
		},
	}

	ctx := newEnricher(finder, testCities).Enrich(context.Background(), reportLat, reportLon)

	require.NotNil(t, ctx.EventLocation)
	assert.Equal(t, "Hall Park", ctx.EventLocation.Name)
	assert.Empty(t, ctx.EventLocation.Direction)
}

func TestEnrich_ReferenceCityRefinement(t *testing.T) {
	finder := &fakeFinder{
		text: domain.PlaceCandidate{Name: "Oklahoma City", Lat: 35.47, Lon: -97.52},
	}

	ctx := newEnricher(finder, testCities).Enrich(context.Background(), reportLat, reportLon)

	require.NotNil(t, ctx.ReferenceCity)
	assert.Equal(t, "Oklahoma City", ctx.ReferenceCity.Name)
	assert.Equal(t, []string{"Oklahoma City, OK"}, finder.textQueries)
	assert.InDelta(t, 19, ctx.ReferenceCity.DistanceMiles, 2)
	assert.NotEmpty(t, ctx.ReferenceCity.Direction)
}

func TestEnrich_ReferenceCityFallsBackToTableCoordinates(t *testing.T) {
	finder := &fakeFinder{textErr: errors.New("quota exceeded")}

	ctx := newEnricher(finder, testCities).Enrich(context.Background(), reportLat, reportLon)

	require.NotNil(t, ctx.ReferenceCity)
	assert.Equal(t, "Oklahoma City", ctx.ReferenceCity.Name)
	assert.Greater(t, ctx.ReferenceCity.DistanceMiles, 0.0)
}

func TestEnrich_NearbyPlacesDedupeSortAndCap(t *testing.T) {
	finder := &fakeFinder{
		nearby: map[string][]domain.PlaceCandidate{
			"locality": {
				{Name: "Noble", Lat: 35.14, Lon: -97.39},
				{Name: "Slaughterville", Lat: 35.08, Lon: -97.33},
			},
			"park": {
				// Duplicate of Noble, farther away; the closer one wins.
				{Name: "Noble", Lat: 35.05, Lon: -97.30},
				{Name: "Lake Thunderbird", Lat: 35.22, Lon: -97.25},
			},
			"point_of_interest": {
				{Name: "Chickasaw National Recreation Area", Lat: 35.18, Lon: -97.40},
				{Name: "Too Far Away", Lat: 36.50, Lon: -97.45},
				{Name: "A", Lat: 35.21, Lon: -97.44}, {Name: "B", Lat: 35.22, Lon: -97.44},
				{Name: "C", Lat: 35.23, Lon: -97.44}, {Name: "D", Lat: 35.24, Lon: -97.44},
				{Name: "E", Lat: 35.25, Lon: -97.44},
			},
		},
	}

	ctx := newEnricher(finder, testCities).Enrich(context.Background(), reportLat, reportLon)

	require.NotEmpty(t, ctx.NearbyPlaces)
	assert.LessOrEqual(t, len(ctx.NearbyPlaces), 6)

	seen := make(map[string]float64)
	for i, p := range ctx.NearbyPlaces {
		if i > 0 {
			assert.GreaterOrEqual(t, p.DistanceMiles, ctx.NearbyPlaces[i-1].DistanceMiles)
		}
		_, dup := seen[p.Name]
		assert.False(t, dup, "duplicate name %q", p.Name)
		seen[p.Name] = p.DistanceMiles
		assert.NotEqual(t, "Chickasaw National Recreation Area", p.Name)
		assert.NotEqual(t, "Too Far Away", p.Name)
		assert.LessOrEqual(t, p.DistanceMiles, 15.0)
	}
	if d, ok := seen["Noble"]; ok {
		assert.Less(t, d, 6.0, "dedupe must keep the closer Noble")
	}
}

func TestEnrich_AllLookupsFailDegradesToTableCity(t *testing.T) {
	finder := &fakeFinder{
		nearbyErr:  errors.New("timeout"),
		reverseErr: errors.New("timeout"),
		textErr:    errors.New("timeout"),
	}

	ctx := newEnricher(finder, testCities).Enrich(context.Background(), reportLat, reportLon)

	assert.Nil(t, ctx.EventLocation)
	assert.Empty(t, ctx.NearbyPlaces)
	require.NotNil(t, ctx.ReferenceCity, "reference city works from the table alone")
	assert.False(t, ctx.Empty())
}

func TestEnrich_NilFinder(t *testing.T) {
	ctx := newEnricher(nil, testCities).Enrich(context.Background(), reportLat, reportLon)

	assert.Nil(t, ctx.EventLocation)
	assert.Empty(t, ctx.NearbyPlaces)
	require.NotNil(t, ctx.ReferenceCity)
}

func TestLoadRefCities(t *testing.T) {
	cities, err := enrich.LoadRefCities()
	require.NoError(t, err)
	require.NotEmpty(t, cities)
	for _, c := range cities {
		assert.NotEmpty(t, c.Name)
		assert.NotZero(t, c.Lat)
		assert.NotZero(t, c.Lon)
	}
}
