package tiger

import (
	"math"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"
)

// SRID of TIGER/Line geometries (NAD83 geographic).
const SRID = 4269

type ring struct {
	coords []geom.Coord
	area   float64 // signed shoelace area, negative = clockwise
}

// PolygonToMultiPolygon converts a shapefile polygon to a multipolygon.
// Shapefiles store outer rings clockwise and holes counter-clockwise as a flat
// list of parts; each hole is attached to the smallest outer ring that
// contains it. Returns nil when no usable ring remains.
func PolygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	var outers, holes []ring
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if start < 0 || end > int32(len(p.Points)) || end-start < 4 {
			zap.L().Debug("tiger: skipping degenerate ring", zap.Int32("part", i))
			continue
		}
		coords := make([]geom.Coord, 0, end-start)
		for j := start; j < end; j++ {
			coords = append(coords, geom.Coord{p.Points[j].X, p.Points[j].Y})
		}
		r := ring{coords: coords, area: signedArea(coords)}
		if r.area < 0 {
			outers = append(outers, r)
		} else {
			holes = append(holes, r)
		}
	}

	// A file with every ring counter-clockwise has no holes, only
	// mis-oriented outers.
	if len(outers) == 0 {
		outers, holes = holes, nil
	}
	if len(outers) == 0 {
		return nil
	}

	nested := make([][][]geom.Coord, len(outers))
	for i, o := range outers {
		nested[i] = [][]geom.Coord{o.coords}
	}
	for _, h := range holes {
		best := -1
		for i, o := range outers {
			if !ringContains(o.coords, h.coords[0]) {
				continue
			}
			if best < 0 || math.Abs(o.area) < math.Abs(outers[best].area) {
				best = i
			}
		}
		if best < 0 {
			zap.L().Debug("tiger: dropping hole outside every outer ring")
			continue
		}
		nested[best] = append(nested[best], h.coords)
	}

	mp, err := geom.NewMultiPolygon(geom.XY).SetCoords(nested)
	if err != nil {
		zap.L().Debug("tiger: malformed polygon", zap.Error(err))
		return nil
	}
	return mp.SetSRID(SRID)
}

// MergeMultiPolygons appends the polygons of b to a. Either may be nil.
func MergeMultiPolygons(a, b *geom.MultiPolygon) *geom.MultiPolygon {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	for i := 0; i < b.NumPolygons(); i++ {
		if err := a.Push(b.Polygon(i)); err != nil {
			zap.L().Debug("tiger: skipping malformed polygon part", zap.Int("part", i), zap.Error(err))
		}
	}
	return a
}

// EncodeWKB converts a multipolygon to little-endian EWKB carrying its SRID.
// Returns nil, nil for a nil geometry.
func EncodeWKB(mp *geom.MultiPolygon) ([]byte, error) {
	if mp == nil {
		return nil, nil
	}
	if mp.SRID() == 0 {
		mp = geom.NewMultiPolygonFlat(mp.Layout(), mp.FlatCoords(), mp.Endss()).SetSRID(SRID)
	}
	data, err := ewkb.Marshal(mp, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "tiger: encode WKB")
	}
	return data, nil
}

// DecodeWKB parses WKB or EWKB holding a polygon or multipolygon.
func DecodeWKB(data []byte) (*geom.MultiPolygon, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "tiger: decode WKB")
	}
	switch t := g.(type) {
	case *geom.MultiPolygon:
		return t, nil
	case *geom.Polygon:
		mp := geom.NewMultiPolygon(t.Layout()).SetSRID(t.SRID())
		if err := mp.Push(t); err != nil {
			return nil, eris.Wrap(err, "tiger: decode WKB")
		}
		return mp, nil
	}
	return nil, eris.Errorf("tiger: decode WKB: unsupported geometry %T", g)
}

func signedArea(coords []geom.Coord) float64 {
	var sum float64
	for i := 0; i+1 < len(coords); i++ {
		sum += coords[i][0]*coords[i+1][1] - coords[i+1][0]*coords[i][1]
	}
	return sum / 2
}

// ringContains reports whether pt lies inside the ring (even-odd rule).
func ringContains(coords []geom.Coord, pt geom.Coord) bool {
	in := false
	x, y := pt[0], pt[1]
	for i, j := 0, len(coords)-1; i < len(coords); j, i = i, i+1 {
		xi, yi := coords[i][0], coords[i][1]
		xj, yj := coords[j][0], coords[j][1]
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			in = !in
		}
	}
	return in
}
