// Package enrich resolves storm report coordinates into narrative-ready
// place context and composes the per-report summary paragraph. Place
// resolution runs three independent tiers and tolerates any subset of them
// coming back empty.
package enrich

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/couchcryptid/storm-archive-backfill/internal/domain"
	"github.com/couchcryptid/storm-archive-backfill/internal/observability"
)

const (
	eventRadiusMiles  = 5.0
	nearbyRadiusMiles = 15.0
	maxNearbyPlaces   = 6
)

// priorityCategories is the ordered category list for the event-location
// tier. The first category with any hit wins.
var priorityCategories = []string{
	"school",
	"hospital",
	"fire_station",
	"library",
	"park",
	"city_hall",
	"police",
	"post_office",
	"community_center",
	"university",
}

// nearbyCategories is searched for the other-nearby-places tier.
var nearbyCategories = []string{
	"locality",
	"sublocality",
	"natural_feature",
	"park",
	"point_of_interest",
}

// largeFeatureSubstrings marks names that are poor "located near X" anchors.
// Matched case-insensitively against candidate names.
var largeFeatureSubstrings = []string{
	"national park",
	"national forest",
	"national grassland",
	"national recreation area",
	"mountains",
	"mountain range",
	"wilderness",
	"desert",
	"basin",
	"plateau",
}

// Enricher resolves a report coordinate into up to three tiers of place
// context. Lookup failures degrade to empty tiers, never errors.
type Enricher struct {
	finder  domain.PlaceFinder
	cities  []RefCity
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewEnricher creates an Enricher. finder may be nil when no places API is
// configured; only the reference-city tier works then, from table
// coordinates alone.
func NewEnricher(finder domain.PlaceFinder, cities []RefCity, logger *slog.Logger, metrics *observability.Metrics) *Enricher {
	return &Enricher{finder: finder, cities: cities, logger: logger, metrics: metrics}
}

// Enrich resolves all three tiers for one report coordinate.
func (e *Enricher) Enrich(ctx context.Context, lat, lon float64) domain.ReportLocationContext {
	nearby := e.nearbyPlaces(ctx, lat, lon)
	return domain.ReportLocationContext{
		EventLocation: e.eventLocation(ctx, lat, lon, nearby),
		ReferenceCity: e.referenceCity(ctx, lat, lon),
		NearbyPlaces:  nearby,
	}
}

// eventLocation resolves the closest named place within eventRadiusMiles.
// Priority categories are tried in order; then reverse geocoding; then the
// closest nearby-tier place inside the radius.
func (e *Enricher) eventLocation(ctx context.Context, lat, lon float64, nearby []domain.NearbyPlace) *domain.PlaceRef {
	if e.finder != nil {
		for _, category := range priorityCategories {
			candidates, err := e.finder.NearbySearch(ctx, lat, lon, eventRadiusMiles, category)
			if err != nil {
				e.metrics.PlaceLookups.WithLabelValues("event", "error").Inc()
				e.logger.Warn("priority place search failed", "category", category, "error", err)
				continue
			}
			if ref := closestPlaceRef(lat, lon, candidates, eventRadiusMiles); ref != nil {
				e.metrics.PlaceLookups.WithLabelValues("event", "hit").Inc()
				return ref
			}
		}

		if candidate, err := e.finder.ReverseLookup(ctx, lat, lon); err != nil {
			e.metrics.PlaceLookups.WithLabelValues("event", "error").Inc()
			e.logger.Warn("reverse lookup failed", "error", err)
		} else if candidate.Name != "" && !isLargeGeographicFeature(candidate) && !hasType(candidate, "natural_feature") {
			e.metrics.PlaceLookups.WithLabelValues("event", "hit").Inc()
			return placeRef(lat, lon, candidate)
		}
	}

	for _, p := range nearby {
		if p.DistanceMiles <= eventRadiusMiles {
			e.metrics.PlaceLookups.WithLabelValues("event", "hit").Inc()
			// Nearby places carry no coordinates, so the direction is
			// unknowable here; leave it blank and let the composer
			// omit it.
			return &domain.PlaceRef{Name: p.Name, DistanceMiles: p.DistanceMiles}
		}
	}

	e.metrics.PlaceLookups.WithLabelValues("event", "miss").Inc()
	return nil
}

// referenceCity picks the closest table city, then tries to refine its
// coordinates through text search. Refinement failure falls back to the
// table coordinates instead of failing the tier.
func (e *Enricher) referenceCity(ctx context.Context, lat, lon float64) *domain.PlaceRef {
	if len(e.cities) == 0 {
		e.metrics.PlaceLookups.WithLabelValues("city", "miss").Inc()
		return nil
	}

	best := e.cities[0]
	bestDist := domain.Haversine(lat, lon, best.Lat, best.Lon)
	for _, c := range e.cities[1:] {
		if d := domain.Haversine(lat, lon, c.Lat, c.Lon); d < bestDist {
			best, bestDist = c, d
		}
	}

	cityLat, cityLon := best.Lat, best.Lon
	if e.finder != nil {
		refined, err := e.finder.TextSearch(ctx, best.Name+", "+best.State)
		if err != nil || refined.Name == "" {
			e.logger.Debug("reference city refinement failed, using table coordinates",
				"city", best.Name, "error", err)
		} else {
			cityLat, cityLon = refined.Lat, refined.Lon
		}
	}

	e.metrics.PlaceLookups.WithLabelValues("city", "hit").Inc()
	return &domain.PlaceRef{
		Name:          best.Name,
		DistanceMiles: domain.Haversine(lat, lon, cityLat, cityLon),
		Direction:     domain.CardinalDirection(lat, lon, cityLat, cityLon),
	}
}

// nearbyPlaces searches the lower-priority categories within
// nearbyRadiusMiles, filters large geographic features, deduplicates by name
// keeping the closer entry, and returns at most maxNearbyPlaces sorted by
// distance.
func (e *Enricher) nearbyPlaces(ctx context.Context, lat, lon float64) []domain.NearbyPlace {
	if e.finder == nil {
		return nil
	}

	byName := make(map[string]domain.NearbyPlace)
	for _, category := range nearbyCategories {
		candidates, err := e.finder.NearbySearch(ctx, lat, lon, nearbyRadiusMiles, category)
		if err != nil {
			e.metrics.PlaceLookups.WithLabelValues("nearby", "error").Inc()
			e.logger.Warn("nearby place search failed", "category", category, "error", err)
			continue
		}
		for _, c := range candidates {
			if c.Name == "" || isLargeGeographicFeature(c) {
				continue
			}
			d := domain.Haversine(lat, lon, c.Lat, c.Lon)
			if d > nearbyRadiusMiles {
				continue
			}
			if prev, ok := byName[c.Name]; ok && prev.DistanceMiles <= d {
				continue
			}
			byName[c.Name] = domain.NearbyPlace{Name: c.Name, DistanceMiles: d}
		}
	}

	if len(byName) == 0 {
		e.metrics.PlaceLookups.WithLabelValues("nearby", "miss").Inc()
		return nil
	}

	places := make([]domain.NearbyPlace, 0, len(byName))
	for _, p := range byName {
		places = append(places, p)
	}
	sort.Slice(places, func(i, j int) bool { return places[i].DistanceMiles < places[j].DistanceMiles })
	if len(places) > maxNearbyPlaces {
		places = places[:maxNearbyPlaces]
	}
	e.metrics.PlaceLookups.WithLabelValues("nearby", "hit").Inc()
	return places
}

// closestPlaceRef returns the closest candidate within radius, or nil.
func closestPlaceRef(lat, lon float64, candidates []domain.PlaceCandidate, radius float64) *domain.PlaceRef {
	var best *domain.PlaceRef
	for _, c := range candidates {
		if c.Name == "" || isLargeGeographicFeature(c) {
			continue
		}
		d := domain.Haversine(lat, lon, c.Lat, c.Lon)
		if d > radius {
			continue
		}
		if best == nil || d < best.DistanceMiles {
			best = placeRef(lat, lon, c)
		}
	}
	return best
}

func placeRef(lat, lon float64, c domain.PlaceCandidate) *domain.PlaceRef {
	return &domain.PlaceRef{
		Name:          c.Name,
		DistanceMiles: domain.Haversine(lat, lon, c.Lat, c.Lon),
		Direction:     domain.CardinalDirection(lat, lon, c.Lat, c.Lon),
	}
}

// isLargeGeographicFeature rejects candidates named like sprawling features
// rather than point-like anchors.
func isLargeGeographicFeature(c domain.PlaceCandidate) bool {
	name := strings.ToLower(c.Name)
	for _, sub := range largeFeatureSubstrings {
		if strings.Contains(name, sub) {
			return true
		}
	}
	return false
}

// hasType reports whether a candidate carries the given provider type tag.
func hasType(c domain.PlaceCandidate, tag string) bool {
	for _, t := range c.Types {
		if t == tag {
			return true
		}
	}
	return false
}
