package domain

import "math"

// earthRadiusMiles matches the value used throughout the upstream dataset so
// distances agree with previously published enrichment text.
const earthRadiusMiles = 3959.87433

// Haversine returns the great-circle distance in miles between two
// latitude/longitude pairs.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMiles * c
}

// CardinalDirection returns the direction from a source coordinate back to a
// place, restricted to the four cardinal points. Whichever axis has the
// larger absolute delta wins; diagonals are never produced.
func CardinalDirection(srcLat, srcLon, placeLat, placeLon float64) string {
	dLat := math.Abs(srcLat - placeLat)
	dLon := math.Abs(srcLon - placeLon)

	if dLat >= dLon {
		if srcLat > placeLat {
			return "north"
		}
		return "south"
	}
	if srcLon > placeLon {
		return "east"
	}
	return "west"
}
