// Package spatial implements the planar geometry the crosswalk engine needs:
// equal-area projection of NAD83 lon/lat polygons, polygon area, and the area
// of the intersection of two polygons.
package spatial

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// GRS80 ellipsoid (NAD83).
const (
	grs80A = 6378137.0
	grs80F = 1 / 298.257222101
)

// Albers is an ellipsoidal Albers equal-area conic projection.
type Albers struct {
	a, e, e2 float64
	n        float64
	c        float64
	rho0     float64
	lon0     float64
}

// ConusAlbers is EPSG:5070 (NAD83 / Conus Albers).
var ConusAlbers = NewAlbers(29.5, 45.5, 23.0, -96.0)

// NewAlbers builds a GRS80 Albers projection from standard parallels lat1 and
// lat2, latitude of origin lat0 and central meridian lon0 (all in degrees).
func NewAlbers(lat1, lat2, lat0, lon0 float64) *Albers {
	e2 := 2*grs80F - grs80F*grs80F
	p := &Albers{a: grs80A, e2: e2, e: math.Sqrt(e2), lon0: radians(lon0)}

	phi1, phi2, phi0 := radians(lat1), radians(lat2), radians(lat0)
	m1, m2 := p.m(phi1), p.m(phi2)
	q0, q1, q2 := p.q(phi0), p.q(phi1), p.q(phi2)

	if math.Abs(phi1-phi2) < 1e-12 {
		p.n = math.Sin(phi1)
	} else {
		p.n = (m1*m1 - m2*m2) / (q2 - q1)
	}
	p.c = m1*m1 + p.n*q1
	p.rho0 = p.a * math.Sqrt(p.c-p.n*q0) / p.n
	return p
}

func (p *Albers) m(phi float64) float64 {
	s := math.Sin(phi)
	return math.Cos(phi) / math.Sqrt(1-p.e2*s*s)
}

func (p *Albers) q(phi float64) float64 {
	s := math.Sin(phi)
	return (1 - p.e2) * (s/(1-p.e2*s*s) - (1/(2*p.e))*math.Log((1-p.e*s)/(1+p.e*s)))
}

// Forward projects a lon/lat pair in degrees to planar metres.
func (p *Albers) Forward(lon, lat float64) (x, y float64) {
	rho := p.a * math.Sqrt(p.c-p.n*p.q(radians(lat))) / p.n
	theta := p.n * (radians(lon) - p.lon0)
	return rho * math.Sin(theta), p.rho0 - rho*math.Cos(theta)
}

// ProjectMultiPolygon returns a copy of mp in projected XY coordinates. It
// fails when a coordinate is outside the geographic lon/lat range, which
// indicates the input was already projected.
func (p *Albers) ProjectMultiPolygon(mp *geom.MultiPolygon) (*geom.MultiPolygon, error) {
	if mp == nil {
		return nil, eris.New("spatial: nil multipolygon")
	}
	stride := mp.Stride()
	src := mp.FlatCoords()
	flat := make([]float64, 0, len(src)/stride*2)
	for i := 0; i+1 < len(src); i += stride {
		lon, lat := src[i], src[i+1]
		if !validLonLat(lon, lat) {
			return nil, eris.Errorf("spatial: coordinate (%g, %g) is not geographic lon/lat", lon, lat)
		}
		x, y := p.Forward(lon, lat)
		flat = append(flat, x, y)
	}

	srcEndss := mp.Endss()
	endss := make([][]int, len(srcEndss))
	for i, ends := range srcEndss {
		endss[i] = make([]int, len(ends))
		for j, end := range ends {
			endss[i][j] = end / stride * 2
		}
	}
	return geom.NewMultiPolygonFlat(geom.XY, flat, endss), nil
}

func validLonLat(lon, lat float64) bool {
	if math.IsNaN(lon) || math.IsNaN(lat) {
		return false
	}
	return lon >= -180 && lon <= 180 && lat >= -90 && lat <= 90
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
