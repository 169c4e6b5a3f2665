// Package geo holds the geometry primitives used by geofencing.
//
// Coordinates are treated as planar (longitude as x, latitude as y). This is a
// small-area approximation with no geodesic correction; it is accurate enough
// for zones a few kilometres across and breaks down for large or polar polygons.
package geo

import (
	"math"
	"time"

	dErrors "terraguard/pkg/domain-errors"
)

const earthRadiusMeters = 6371000

// epsilon bounds the collinearity test used for the on-edge policy.
const epsilon = 1e-12

// Point is a WGS84 coordinate pair in degrees.
type Point struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// Validate checks the point is finite and within WGS84 ranges.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.IsNaN(p.Lon) || math.IsInf(p.Lon, 0) {
		return dErrors.New(dErrors.CodeInvalidInput, "coordinates must be finite numbers")
	}
	if p.Lat < -90 || p.Lat > 90 {
		return dErrors.New(dErrors.CodeInvalidInput, "latitude must be between -90 and 90")
	}
	if p.Lon < -180 || p.Lon > 180 {
		return dErrors.New(dErrors.CodeInvalidInput, "longitude must be between -180 and 180")
	}
	return nil
}

// Position is an immutable timestamped sample.
type Position struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// At builds a Position.
func At(lat, lon float64, ts time.Time) Position {
	return Position{Latitude: lat, Longitude: lon, Timestamp: ts}
}

// Point drops the timestamp.
func (p Position) Point() Point {
	return Point{Lat: p.Latitude, Lon: p.Longitude}
}

// Contains reports whether p lies inside the closed polygon described by
// boundary, using the even-odd rule. The first and last vertices are implicitly
// connected. Points exactly on an edge or a vertex are inside.
func Contains(boundary []Point, p Point) (bool, error) {
	n := len(boundary)
	if n < 3 {
		return false, dErrors.New(dErrors.CodeInvalidZone, "zone boundary needs at least 3 vertices")
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := boundary[i], boundary[j]
		if onSegment(p, a, b) {
			return true, nil
		}
		if (a.Lat > p.Lat) != (b.Lat > p.Lat) {
			xCross := (b.Lon-a.Lon)*(p.Lat-a.Lat)/(b.Lat-a.Lat) + a.Lon
			if p.Lon < xCross {
				inside = !inside
			}
		}
	}
	return inside, nil
}

// ValidatePolygon checks that boundary is a simple polygon: at least three
// finite vertices and no two non-adjacent edges touching or crossing.
func ValidatePolygon(boundary []Point) error {
	n := len(boundary)
	if n < 3 {
		return dErrors.New(dErrors.CodeInvalidZone, "zone boundary needs at least 3 vertices")
	}
	for _, v := range boundary {
		if err := v.Validate(); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidZone, "zone boundary has an invalid vertex")
		}
	}
	for i := 0; i < n; i++ {
		a1, a2 := boundary[i], boundary[(i+1)%n]
		if a1 == a2 {
			return dErrors.New(dErrors.CodeInvalidZone, "zone boundary has a zero-length edge")
		}
		for j := i + 1; j < n; j++ {
			// edges sharing a vertex are adjacent
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			b1, b2 := boundary[j], boundary[(j+1)%n]
			if segmentsIntersect(a1, a2, b1, b2) {
				return dErrors.New(dErrors.CodeInvalidZone, "zone boundary is self-intersecting")
			}
		}
	}
	return nil
}

// TrimClosingVertex drops a trailing vertex that repeats the first one, so
// boundaries written as explicitly closed rings are accepted.
func TrimClosingVertex(boundary []Point) []Point {
	if n := len(boundary); n > 1 && boundary[0] == boundary[n-1] {
		return boundary[:n-1]
	}
	return boundary
}

// Distance returns the great-circle distance between a and b in metres.
func Distance(a, b Point) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

func cross(o, a, b Point) float64 {
	return (a.Lon-o.Lon)*(b.Lat-o.Lat) - (a.Lat-o.Lat)*(b.Lon-o.Lon)
}

func onSegment(p, a, b Point) bool {
	if math.Abs(cross(a, b, p)) > epsilon {
		return false
	}
	return p.Lon >= math.Min(a.Lon, b.Lon)-epsilon && p.Lon <= math.Max(a.Lon, b.Lon)+epsilon &&
		p.Lat >= math.Min(a.Lat, b.Lat)-epsilon && p.Lat <= math.Max(a.Lat, b.Lat)+epsilon
}

func segmentsIntersect(p1, p2, q1, q2 Point) bool {
	d1 := cross(q1, q2, p1)
	d2 := cross(q1, q2, p2)
	d3 := cross(p1, p2, q1)
	d4 := cross(p1, p2, q2)
	if ((d1 > epsilon && d2 < -epsilon) || (d1 < -epsilon && d2 > epsilon)) &&
		((d3 > epsilon && d4 < -epsilon) || (d3 < -epsilon && d4 > epsilon)) {
		return true
	}
	return onSegment(p1, q1, q2) || onSegment(p2, q1, q2) || onSegment(q1, p1, p2) || onSegment(q2, p1, p2)
}
