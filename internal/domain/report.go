package domain

import "time"

// StormReport is one observed severe weather report awaiting enrichment.
type StormReport struct {
	ID        string    `json:"id"`
	EventType string    `json:"type"` // "hail", "wind", or "tornado"
	Magnitude string    `json:"magnitude"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Time      time.Time `json:"time"`
	County    string    `json:"county,omitempty"`
	State     string    `json:"state,omitempty"`
	Comments  string    `json:"comments,omitempty"`
}

// PlaceRef is a resolved place with distance and cardinal direction back to
// the report coordinate.
type PlaceRef struct {
	Name          string  `json:"name"`
	DistanceMiles float64 `json:"distance_miles"`
	Direction     string  `json:"direction"`
}

// NearbyPlace is a lower-tier nearby point of interest (no direction).
type NearbyPlace struct {
	Name          string  `json:"name"`
	DistanceMiles float64 `json:"distance_miles"`
}

// ReportLocationContext holds the 3-tier enrichment result for one report.
// Every field is independently optional: any tier may come back empty and the
// narrative degrades accordingly.
type ReportLocationContext struct {
	EventLocation *PlaceRef     `json:"event_location,omitempty"`
	ReferenceCity *PlaceRef     `json:"reference_city,omitempty"`
	NearbyPlaces  []NearbyPlace `json:"nearby_places,omitempty"`
}

// Empty reports whether no tier produced a result.
func (c ReportLocationContext) Empty() bool {
	return c.EventLocation == nil && c.ReferenceCity == nil && len(c.NearbyPlaces) == 0
}
