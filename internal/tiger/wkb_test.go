package tiger

import (
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
)

func TestPolygonToMultiPolygon_NestsHoles(t *testing.T) {
	// Two islands; the hole sits inside the second, larger one.
	p := polygon(
		rect(0, 0, 1, 1, true),
		rect(10, 10, 20, 20, true),
		rect(12, 12, 14, 14, false),
	)

	mp := PolygonToMultiPolygon(p)
	require.NotNil(t, mp)
	assert.Equal(t, SRID, mp.SRID())
	require.Equal(t, 2, mp.NumPolygons())
	assert.Equal(t, 1, mp.Polygon(0).NumLinearRings())
	assert.Equal(t, 2, mp.Polygon(1).NumLinearRings())
	assert.Equal(t, 12.0, mp.Polygon(1).LinearRing(1).Coord(0).Y())
}

func TestPolygonToMultiPolygon_HoleGoesToSmallestContainer(t *testing.T) {
	// An island inside a lake inside a larger island: the inner outer ring
	// is the tightest container of the second hole.
	p := polygon(
		rect(0, 0, 100, 100, true),
		rect(10, 10, 90, 90, false),
		rect(20, 20, 80, 80, true),
		rect(40, 40, 60, 60, false),
	)

	mp := PolygonToMultiPolygon(p)
	require.NotNil(t, mp)
	require.Equal(t, 2, mp.NumPolygons())
	assert.Equal(t, 2, mp.Polygon(0).NumLinearRings())
	assert.Equal(t, 2, mp.Polygon(1).NumLinearRings())
	assert.Equal(t, 10.0, mp.Polygon(0).LinearRing(1).Coord(0).X())
	assert.Equal(t, 40.0, mp.Polygon(1).LinearRing(1).Coord(0).X())
}

func TestPolygonToMultiPolygon_CounterClockwiseOnly(t *testing.T) {
	p := polygon(rect(0, 0, 1, 1, false), rect(5, 5, 6, 6, false))

	mp := PolygonToMultiPolygon(p)
	require.NotNil(t, mp)
	assert.Equal(t, 2, mp.NumPolygons())
}

func TestPolygonToMultiPolygon_Degenerate(t *testing.T) {
	assert.Nil(t, PolygonToMultiPolygon(nil))
	assert.Nil(t, PolygonToMultiPolygon(&shp.Polygon{}))
	assert.Nil(t, PolygonToMultiPolygon(polygon([]shp.Point{{X: 0, Y: 0}, {X: 1, Y: 1}})))
}

func TestEncodeDecodeWKB(t *testing.T) {
	mp := PolygonToMultiPolygon(polygon(rect(-77, 38, -76, 39, true)))
	data, err := EncodeWKB(mp)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	got, err := DecodeWKB(data)
	require.NoError(t, err)
	assert.Equal(t, SRID, got.SRID())
	assert.Equal(t, mp.FlatCoords(), got.FlatCoords())

	none, err := EncodeWKB(nil)
	assert.NoError(t, err)
	assert.Nil(t, none)
}

func TestDecodeWKB_PlainPolygon(t *testing.T) {
	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}})
	data, err := wkb.Marshal(poly, wkb.NDR)
	require.NoError(t, err)

	got, err := DecodeWKB(data)
	require.NoError(t, err)
	assert.Equal(t, 1, got.NumPolygons())

	pt, err := wkb.Marshal(geom.NewPointFlat(geom.XY, []float64{1, 2}), wkb.NDR)
	require.NoError(t, err)
	_, err = DecodeWKB(pt)
	assert.Error(t, err)

	_, err = DecodeWKB([]byte{0x01})
	assert.Error(t, err)
}

func TestMergeMultiPolygons(t *testing.T) {
	a := PolygonToMultiPolygon(polygon(rect(0, 0, 1, 1, true)))
	b := PolygonToMultiPolygon(polygon(rect(2, 2, 3, 3, true)))

	assert.Same(t, b, MergeMultiPolygons(nil, b))
	assert.Same(t, a, MergeMultiPolygons(a, nil))
	merged := MergeMultiPolygons(a, b)
	assert.Equal(t, 2, merged.NumPolygons())
}
