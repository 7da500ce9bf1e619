package crosswalk

import (
	"sort"

	"github.com/twpayne/go-geom"
)

// band returns a lon/lat rectangle spanning x0..x1, in hundredths of a degree
// east of -77, and one hundredth of a degree north of 38.8. Extra vertices are
// placed at each cut on both horizontal edges so that neighbouring bands share
// vertices exactly.
func band(x0, x1 float64, cuts ...float64) *geom.MultiPolygon {
	xs := []float64{x0}
	sorted := append([]float64(nil), cuts...)
	sort.Float64s(sorted)
	for _, c := range sorted {
		if c > x0 && c < x1 {
			xs = append(xs, c)
		}
	}
	xs = append(xs, x1)

	lon := func(x float64) float64 { return -77 + x*0.01 }
	const south, north = 38.8, 38.81

	ring := make([]geom.Coord, 0, 2*len(xs)+1)
	for _, x := range xs {
		ring = append(ring, geom.Coord{lon(x), south})
	}
	for i := len(xs) - 1; i >= 0; i-- {
		ring = append(ring, geom.Coord{lon(xs[i]), north})
	}
	ring = append(ring, ring[0])
	return geom.NewMultiPolygon(geom.XY).MustSetCoords([][][]geom.Coord{{ring}})
}

func unit(code string, mp *geom.MultiPolygon) Unit { return Unit{Code: code, Geom: mp} }

func set(level Level, units ...Unit) PolygonSet { return PolygonSet{Level: level, Units: units} }

func weightOf(t WeightTable, source, zcta string) (float64, bool) {
	for _, r := range t.Rows {
		if r.Source == source && r.ZCTA == zcta {
			return r.Weight, true
		}
	}
	return 0, false
}

func countyTable(rows ...Row) *Table {
	return &Table{
		KeyColumn:    "county",
		DimColumns:   []string{"year"},
		ValueColumns: []string{"population"},
		Rows:         rows,
	}
}
