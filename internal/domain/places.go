package domain

import "context"

// PlaceCandidate is one result from a place lookup.
type PlaceCandidate struct {
	Name  string
	Lat   float64
	Lon   float64
	Types []string // provider type tags, e.g. "locality", "natural_feature"
}

// PlaceFinder is the port for the external places/geocoding service. All
// three call shapes are individually degradable: an error or empty result
// means "no result for this tier", never a batch failure.
type PlaceFinder interface {
	// NearbySearch returns candidates of one category within radiusMiles
	// of the coordinate.
	NearbySearch(ctx context.Context, lat, lon, radiusMiles float64, category string) ([]PlaceCandidate, error)

	// ReverseLookup returns the smallest enclosing named locality for the
	// coordinate.
	ReverseLookup(ctx context.Context, lat, lon float64) (PlaceCandidate, error)

	// TextSearch returns the best-match candidate for a free-text query.
	TextSearch(ctx context.Context, query string) (PlaceCandidate, error)
}
