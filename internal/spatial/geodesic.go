package spatial

import (
	"math"

	"github.com/golang/geo/s2"
	"github.com/twpayne/go-geom"
)

// EarthRadiusMeters is the IUGG mean Earth radius.
const EarthRadiusMeters = 6371008.8

// GeodesicArea returns the spherical area in square metres of a lon/lat
// multipolygon. It is independent of any planar projection and is used to
// sanity-check projected areas.
func GeodesicArea(mp *geom.MultiPolygon) float64 {
	if mp == nil {
		return 0
	}
	var total float64
	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		for j := 0; j < poly.NumLinearRings(); j++ {
			a := loopArea(cleanRing(poly.LinearRing(j).Coords()))
			if j == 0 {
				total += a
			} else {
				total -= a
			}
		}
	}
	return total * EarthRadiusMeters * EarthRadiusMeters
}

// loopArea returns the steradian area enclosed by ring regardless of its
// orientation.
func loopArea(ring []pt) float64 {
	if len(ring) < 3 {
		return 0
	}
	points := make([]s2.Point, len(ring))
	for i, p := range ring {
		points[i] = s2.PointFromLatLng(s2.LatLngFromDegrees(p.y, p.x))
	}
	a := s2.LoopFromPoints(points).Area()
	if a > 2*math.Pi {
		a = 4*math.Pi - a
	}
	return a
}

// AreaDistortion compares the planar area of a projected shape with the
// geodesic area of its lon/lat source and returns planar/geodesic. It returns
// 1 when the geodesic area is zero.
func AreaDistortion(lonLat *geom.MultiPolygon, projected *Shape) float64 {
	g := GeodesicArea(lonLat)
	if g <= 0 {
		return 1
	}
	return projected.Area() / g
}
