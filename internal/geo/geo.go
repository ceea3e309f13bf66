// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

// Package geo provides pure distance and containment primitives used by
// every evaluator in the pipeline. All functions are deterministic and
// allocation-free.
package geo

import "math"

const earthRadiusMeters = 6371000.0

// CoordinateEpsilon is the threshold for considering two coordinates equal.
// DETERMINISM: 1e-7 degrees is roughly 1.1cm at the equator, well below GPS
// accuracy but large enough to absorb float representation error. Used for
// duplicate-ping detection and boundary classification.
const CoordinateEpsilon = 1e-7

// HaversineMeters calculates the great-circle distance between two points
// using the Haversine formula. Returns distance in meters.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180.0
	lon1Rad := lon1 * math.Pi / 180.0
	lat2Rad := lat2 * math.Pi / 180.0
	lon2Rad := lon2 * math.Pi / 180.0

	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// SameCoordinate reports whether two coordinate pairs are equal within
// CoordinateEpsilon on both axes.
func SameCoordinate(lat1, lon1, lat2, lon2 float64) bool {
	return math.Abs(lat1-lat2) < CoordinateEpsilon &&
		math.Abs(lon1-lon2) < CoordinateEpsilon
}

// CircleContains reports whether a point lies inside or on the boundary of
// a circle. A point at exactly radius meters from the center is inside.
func CircleContains(lat, lon, centerLat, centerLon, radiusMeters float64) bool {
	return HaversineMeters(lat, lon, centerLat, centerLon) <= radiusMeters
}

// Point is a polygon vertex in degrees.
type Point struct {
	Lat float64
	Lon float64
}

// PolygonContains reports whether a point lies inside a polygon using ray
// casting. Points on an edge or vertex count as inside.
//
// DETERMINISM: boundary membership is resolved before the crossing count so
// that a point exactly on an edge never depends on floating-point crossing
// parity.
func PolygonContains(lat, lon float64, vertices []Point) bool {
	n := len(vertices)
	if n < 3 {
		return false
	}

	for i := 0; i < n; i++ {
		j := (i + 1) % n
		if onSegment(lat, lon, vertices[i], vertices[j]) {
			return true
		}
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		vi, vj := vertices[i], vertices[j]
		if (vi.Lat > lat) != (vj.Lat > lat) {
			xCross := (vj.Lon-vi.Lon)*(lat-vi.Lat)/(vj.Lat-vi.Lat) + vi.Lon
			if lon < xCross {
				inside = !inside
			}
		}
	}
	return inside
}

// onSegment reports whether (lat, lon) lies on the segment a-b within
// CoordinateEpsilon.
func onSegment(lat, lon float64, a, b Point) bool {
	cross := (b.Lat-a.Lat)*(lon-a.Lon) - (b.Lon-a.Lon)*(lat-a.Lat)
	if math.Abs(cross) > CoordinateEpsilon {
		return false
	}
	if lat < math.Min(a.Lat, b.Lat)-CoordinateEpsilon || lat > math.Max(a.Lat, b.Lat)+CoordinateEpsilon {
		return false
	}
	if lon < math.Min(a.Lon, b.Lon)-CoordinateEpsilon || lon > math.Max(a.Lon, b.Lon)+CoordinateEpsilon {
		return false
	}
	return true
}

// DistinctVertices counts vertices that differ from their predecessor by
// more than CoordinateEpsilon. Used for polygon shape validation.
func DistinctVertices(vertices []Point) int {
	distinct := 0
	for i, v := range vertices {
		dup := false
		for j := 0; j < i; j++ {
			if SameCoordinate(v.Lat, v.Lon, vertices[j].Lat, vertices[j].Lon) {
				dup = true
				break
			}
		}
		if !dup {
			distinct++
		}
	}
	return distinct
}

// ValidLatitude reports whether lat is within [-90, 90].
func ValidLatitude(lat float64) bool {
	return lat >= -90 && lat <= 90
}

// ValidLongitude reports whether lon is within [-180, 180].
func ValidLongitude(lon float64) bool {
	return lon >= -180 && lon <= 180
}
