package domain

import (
	"errors"
	"fmt"
)

// Shapefile shape type codes for the polygon family. Other shape types
// (points, polylines, multipatches) are rejected rather than coerced.
const (
	ShapeTypePolygon  = 5
	ShapeTypePolygonZ = 15
	ShapeTypePolygonM = 25
)

// ErrNotPolygon is returned for shape types outside the polygon family.
var ErrNotPolygon = errors.New("shape type is not a polygon")

// Point is a WGS-84 coordinate. Shapefiles store X=longitude, Y=latitude.
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Geometry is a canonical polygon or multipolygon. Each element of Rings is
// one closed ring treated as a standalone polygon: the flat shapefile part
// encoding does not say whether a ring is an interior hole or a disjoint
// outer ring, so no hole inference is attempted.
type Geometry struct {
	Kind  string    `json:"kind"` // "Polygon" or "MultiPolygon"
	Rings [][]Point `json:"rings"`
}

const (
	KindPolygon      = "Polygon"
	KindMultiPolygon = "MultiPolygon"
)

// ReconstructGeometry converts a flat point list plus part start offsets into
// a canonical Geometry. Rings with fewer than 3 points are dropped; unclosed
// rings are closed by appending their first point. Returns nil (with an
// error) when no usable ring remains; callers treat that as a record-level
// failure, not a batch failure.
func ReconstructGeometry(shapeType int, points []Point, parts []int) (*Geometry, error) {
	switch shapeType {
	case ShapeTypePolygon, ShapeTypePolygonZ, ShapeTypePolygonM:
	default:
		return nil, fmt.Errorf("%w: type %d", ErrNotPolygon, shapeType)
	}
	if len(points) == 0 {
		return nil, errors.New("empty point list")
	}

	var rings [][]Point
	if len(parts) <= 1 {
		if ring, ok := closeRing(points); ok {
			rings = append(rings, ring)
		}
	} else {
		for i, start := range parts {
			end := len(points)
			if i+1 < len(parts) {
				end = parts[i+1]
			}
			if start < 0 || start > end || end > len(points) {
				return nil, fmt.Errorf("part offset %d out of range [%d,%d]", start, 0, len(points))
			}
			if ring, ok := closeRing(points[start:end]); ok {
				rings = append(rings, ring)
			}
		}
	}

	if len(rings) == 0 {
		return nil, errors.New("no ring with at least 3 points")
	}
	if len(rings) == 1 {
		return &Geometry{Kind: KindPolygon, Rings: rings}, nil
	}
	return &Geometry{Kind: KindMultiPolygon, Rings: rings}, nil
}

// closeRing copies raw into a closed ring (first point == last point).
// Rings with fewer than 3 distinct input points are rejected.
func closeRing(raw []Point) ([]Point, bool) {
	if len(raw) < 3 {
		return nil, false
	}
	ring := make([]Point, len(raw), len(raw)+1)
	copy(ring, raw)
	if ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	// A "triangle" that was already closed is really a 2-point segment.
	if len(ring) < 4 {
		return nil, false
	}
	return ring, true
}

// Centroid returns the vertex average across all rings, which is accurate
// enough for proximity filtering against point reports. The closing vertex
// of each ring is excluded so it is not counted twice.
func (g *Geometry) Centroid() (Point, bool) {
	if g == nil || len(g.Rings) == 0 {
		return Point{}, false
	}
	var sumLat, sumLon float64
	n := 0
	for _, ring := range g.Rings {
		for i, p := range ring {
			if i == len(ring)-1 && p == ring[0] {
				continue
			}
			sumLat += p.Lat
			sumLon += p.Lon
			n++
		}
	}
	if n == 0 {
		return Point{}, false
	}
	return Point{Lat: sumLat / float64(n), Lon: sumLon / float64(n)}, true
}
