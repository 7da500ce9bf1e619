package spatial

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func rect(minX, minY, maxX, maxY float64) [][]geom.Coord {
	return [][]geom.Coord{{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}}
}

func multi(polys ...[][]geom.Coord) *geom.MultiPolygon {
	return geom.NewMultiPolygon(geom.XY).MustSetCoords(polys)
}

func shape(polys ...[][]geom.Coord) *Shape {
	return NewShape(multi(polys...))
}

func TestAlbers_Origin(t *testing.T) {
	x, y := ConusAlbers.Forward(-96, 23)
	assert.InDelta(t, 0, x, 1e-6)
	assert.InDelta(t, 0, y, 1e-6)
}

func TestAlbers_KnownPoint(t *testing.T) {
	// Washington, DC in EPSG:5070 is roughly (1.62e6, 1.92e6).
	x, y := ConusAlbers.Forward(-77.0365, 38.8977)
	assert.InDelta(t, 1.62e6, x, 2e4)
	assert.InDelta(t, 1.92e6, y, 2e4)
}

func TestAlbers_PreservesArea(t *testing.T) {
	lonLat := multi(rect(-77.1, 38.8, -76.9, 39.0))
	projected, err := ConusAlbers.ProjectMultiPolygon(lonLat)
	require.NoError(t, err)

	ratio := AreaDistortion(lonLat, NewShape(projected))
	assert.InDelta(t, 1.0, ratio, 0.01)
}

func TestAlbers_RejectsProjectedInput(t *testing.T) {
	_, err := ConusAlbers.ProjectMultiPolygon(multi(rect(1.6e6, 1.9e6, 1.7e6, 2.0e6)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not geographic")
}

func TestAlbers_NilInput(t *testing.T) {
	_, err := ConusAlbers.ProjectMultiPolygon(nil)
	require.Error(t, err)
}

func TestShape_AreaIgnoresOrientation(t *testing.T) {
	cw := [][]geom.Coord{{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}}
	assert.InDelta(t, 100, shape(cw).Area(), 1e-9)
	assert.InDelta(t, 100, shape(rect(0, 0, 10, 10)).Area(), 1e-9)
}

func TestShape_HoleSubtracted(t *testing.T) {
	withHole := [][]geom.Coord{
		{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
		{{4, 4}, {6, 4}, {6, 6}, {4, 6}, {4, 4}},
	}
	s := shape(withHole)
	assert.InDelta(t, 96, s.Area(), 1e-9)
	assert.False(t, s.Contains(5, 5, 0))
	assert.True(t, s.Contains(1, 1, 0))
}

func TestShape_DegenerateRingsIgnored(t *testing.T) {
	s := shape([][]geom.Coord{{{0, 0}, {1, 1}, {0, 0}}})
	assert.True(t, s.Empty())
	assert.Zero(t, s.Area())
	assert.False(t, s.Contains(0, 0, 1))
}

func TestShape_ContainsBoundary(t *testing.T) {
	s := shape(rect(0, 0, 10, 10))
	assert.True(t, s.Contains(10, 5, 1e-9))
	assert.True(t, s.Contains(5, 5, 0))
	assert.False(t, s.Contains(11, 5, 1e-9))
	assert.False(t, s.Contains(5, -3, 1e-9))
}

func TestShape_ContainsIslandInHole(t *testing.T) {
	s := shape([][]geom.Coord{
		{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
		{{2, 2}, {8, 2}, {8, 8}, {2, 8}, {2, 2}},
	}, rect(4, 4, 6, 6))
	assert.True(t, s.Contains(1, 1, 0))
	assert.False(t, s.Contains(3, 3, 0))
	assert.True(t, s.Contains(5, 5, 0))
	assert.True(t, s.Contains(4, 5, 0), "island edge")
}

func TestRayCrosses(t *testing.T) {
	tests := []struct {
		name string
		p    pt
		e    seg
		want bool
	}{
		{"edge to the right", pt{0, 5}, seg{pt{3, 0}, pt{3, 10}}, true},
		{"downward edge", pt{0, 5}, seg{pt{3, 10}, pt{3, 0}}, true},
		{"edge to the left", pt{5, 5}, seg{pt{3, 0}, pt{3, 10}}, false},
		{"edge above", pt{0, 5}, seg{pt{3, 6}, pt{3, 10}}, false},
		{"lower endpoint at ray", pt{0, 5}, seg{pt{3, 5}, pt{3, 10}}, true},
		{"upper endpoint at ray", pt{0, 5}, seg{pt{3, 0}, pt{3, 5}}, false},
		{"horizontal", pt{0, 5}, seg{pt{3, 5}, pt{8, 5}}, false},
		{"slanted", pt{4, 5}, seg{pt{0, 0}, pt{10, 10}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rayCrosses(tt.p, tt.e))
		})
	}
}

func TestProperCrossing(t *testing.T) {
	x, ok := properCrossing(seg{pt{0, 0}, pt{10, 10}}, seg{pt{0, 10}, pt{10, 0}}, 1e-3)
	require.True(t, ok)
	assert.InDelta(t, 5, x.x, 1e-9)
	assert.InDelta(t, 5, x.y, 1e-9)

	_, ok = properCrossing(seg{pt{0, 0}, pt{10, 0}}, seg{pt{5, 0}, pt{5, 10}}, 1e-3)
	assert.False(t, ok, "touching at an endpoint")

	_, ok = properCrossing(seg{pt{0, 0}, pt{10, 0}}, seg{pt{2, 0}, pt{8, 0}}, 1e-3)
	assert.False(t, ok, "collinear")

	_, ok = properCrossing(seg{pt{0, 0}, pt{10, 0}}, seg{pt{0, 1}, pt{10, 1}}, 1e-3)
	assert.False(t, ok, "parallel")

	_, ok = properCrossing(seg{pt{0, 0}, pt{10, 10}}, seg{pt{0, 0.0005}, pt{10, 0.0005}}, 1e-3)
	assert.False(t, ok, "within eps of an endpoint")
}

func TestIntersectionArea(t *testing.T) {
	lShape := [][]geom.Coord{{{0, 0}, {10, 0}, {10, 4}, {4, 4}, {4, 10}, {0, 10}, {0, 0}}}
	withHole := [][]geom.Coord{
		{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
		{{2, 2}, {8, 2}, {8, 8}, {2, 8}, {2, 2}},
	}

	tests := []struct {
		name string
		a, b *Shape
		want float64
	}{
		{"partial overlap", shape(rect(0, 0, 10, 10)), shape(rect(5, 5, 15, 15)), 25},
		{"identical", shape(rect(0, 0, 10, 10)), shape(rect(0, 0, 10, 10)), 100},
		{"contained", shape(rect(0, 0, 10, 10)), shape(rect(2, 2, 4, 4)), 4},
		{"disjoint", shape(rect(0, 0, 10, 10)), shape(rect(20, 20, 30, 30)), 0},
		{"adjacent shares edge", shape(rect(0, 0, 10, 10)), shape(rect(10, 0, 20, 10)), 0},
		{"corner touch", shape(rect(0, 0, 10, 10)), shape(rect(10, 10, 20, 20)), 0},
		{"collinear partial edge", shape(rect(0, 0, 10, 10)), shape(rect(0, 5, 10, 20)), 50},
		{"t-junction vertex", shape(rect(0, 0, 10, 10)), shape(rect(3, 0, 7, 5)), 20},
		{"non-convex", shape(lShape), shape(rect(2, 2, 8, 8)), 20},
		{"hole", shape(withHole), shape(rect(0, 0, 10, 10)), 64},
		{"square in hole", shape(withHole), shape(rect(3, 3, 7, 7)), 0},
		{"multipolygon", shape(rect(0, 0, 2, 2), rect(8, 8, 10, 10)), shape(rect(0, 0, 10, 10)), 8},
		{"nil", nil, shape(rect(0, 0, 1, 1)), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IntersectionArea(tt.a, tt.b, DefaultSnapTolerance)
			assert.InDelta(t, tt.want, got, 1e-6)
			if tt.a != nil && tt.b != nil {
				assert.InDelta(t, tt.want, IntersectionArea(tt.b, tt.a, DefaultSnapTolerance), 1e-6, "symmetric")
			}
		})
	}
}

func TestIntersectionArea_NearlyCoincidentBoundary(t *testing.T) {
	// The right square's shared edge is off by less than the snap tolerance.
	a := shape(rect(0, 0, 10, 10))
	b := shape([][]geom.Coord{{{10.0004, 0}, {20, 0}, {20, 10}, {10.0004, 10}, {10.0004, 0}}})
	assert.InDelta(t, 0, IntersectionArea(a, b, DefaultSnapTolerance), 1e-2)
}

func TestIntersectionArea_PartitionSumsToWhole(t *testing.T) {
	// Four quadrants with an extra vertex on each shared edge partition the square.
	county := shape(rect(0, 0, 100, 100))
	quads := []*Shape{
		shape([][]geom.Coord{{{0, 0}, {50, 0}, {50, 25}, {50, 50}, {0, 50}, {0, 0}}}),
		shape(rect(50, 0, 100, 50)),
		shape([][]geom.Coord{{{0, 50}, {25, 50}, {50, 50}, {50, 100}, {0, 100}, {0, 50}}}),
		shape(rect(50, 50, 100, 100)),
	}
	var sum float64
	for _, q := range quads {
		got := IntersectionArea(county, q, DefaultSnapTolerance)
		assert.InDelta(t, 2500, got, 1e-6)
		sum += got
	}
	assert.InDelta(t, county.Area(), sum, 1e-6)
}

func TestIntersectionArea_ProjectedPolygons(t *testing.T) {
	left, err := ConusAlbers.ProjectMultiPolygon(multi(rect(-77.1, 38.8, -77.0, 38.9)))
	require.NoError(t, err)
	whole, err := ConusAlbers.ProjectMultiPolygon(multi(rect(-77.1, 38.8, -76.9, 38.9)))
	require.NoError(t, err)

	ls, ws := NewShape(left), NewShape(whole)
	got := IntersectionArea(ls, ws, DefaultSnapTolerance)
	// Parallels are arcs in Albers, so the shared vertex on the long southern
	// edge sits a few metres off the straight chord.
	assert.InDelta(t, 1, got/ls.Area(), 1e-3)
	assert.InDelta(t, 0.5, got/ws.Area(), 0.01)
}

func TestGeodesicArea_OrientationIndependent(t *testing.T) {
	ccw := multi(rect(-77.1, 38.8, -77.0, 38.9))
	cw := multi([][]geom.Coord{{{-77.1, 38.8}, {-77.1, 38.9}, {-77.0, 38.9}, {-77.0, 38.8}, {-77.1, 38.8}}})
	a, b := GeodesicArea(ccw), GeodesicArea(cw)
	assert.Greater(t, a, 0.0)
	assert.InDelta(t, a, b, a*1e-9)
	// A 0.1 x 0.1 degree cell at 38.85N is roughly 96 km².
	assert.InDelta(t, 96e6, a, 3e6)
}

func TestAreaDistortion_ZeroArea(t *testing.T) {
	assert.Equal(t, 1.0, AreaDistortion(nil, NewShape(nil)))
	assert.False(t, math.IsNaN(AreaDistortion(multi(rect(0, 0, 0, 0)), NewShape(nil))))
}
