package crosswalk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func TestAreaWeights_EvenSplit(t *testing.T) {
	targets := set(LevelZCTA, unit("20001", band(0, 5)), unit("20002", band(5, 10)))
	sources := set(LevelCounty, unit("11001", band(0, 10, 5)))

	wt, diags, err := NewComputer().AreaWeights(targets, sources)
	require.NoError(t, err)
	assert.Empty(t, diags)
	require.Len(t, wt.Rows, 2)
	assert.Equal(t, LevelCounty, wt.Level)

	assert.Equal(t, "11001", wt.Rows[0].Source)
	assert.Equal(t, "20001", wt.Rows[0].ZCTA)
	assert.InDelta(t, 0.5, wt.Rows[0].Weight, 1e-9)
	assert.Equal(t, "20002", wt.Rows[1].ZCTA)
	assert.InDelta(t, 0.5, wt.Rows[1].Weight, 1e-9)
}

func TestAreaWeights_StraddlingTarget(t *testing.T) {
	targets := set(LevelZCTA,
		unit("00001", band(0, 3)),
		unit("00002", band(3, 7, 5)),
		unit("00003", band(7, 10)),
	)
	sources := set(LevelCounty,
		unit("24001", band(0, 5, 3)),
		unit("24003", band(5, 10, 7)),
	)

	wt, _, err := NewComputer().AreaWeights(targets, sources)
	require.NoError(t, err)
	require.Len(t, wt.Rows, 4)

	for _, tc := range []struct {
		source, zcta string
		want         float64
	}{
		{"24001", "00001", 0.6},
		{"24001", "00002", 0.4},
		{"24003", "00002", 0.4},
		{"24003", "00003", 0.6},
	} {
		got, ok := weightOf(wt, tc.source, tc.zcta)
		require.True(t, ok, "%s->%s", tc.source, tc.zcta)
		assert.InDelta(t, tc.want, got, 1e-6, "%s->%s", tc.source, tc.zcta)
	}
	assert.NoError(t, Validate(wt))
}

func TestAreaWeights_DisjointSourceDropped(t *testing.T) {
	far := geom.NewMultiPolygon(geom.XY).MustSetCoords([][][]geom.Coord{{{
		{-100, 40}, {-99.9, 40}, {-99.9, 40.1}, {-100, 40.1}, {-100, 40},
	}}})
	targets := set(LevelZCTA, unit("20001", band(0, 5)))
	sources := set(LevelCounty, unit("11001", band(0, 5)), unit("31001", far))

	wt, diags, err := NewComputer().AreaWeights(targets, sources)
	require.NoError(t, err)
	assert.Equal(t, []string{"11001"}, wt.Sources())
	assert.Equal(t, []string{"31001"}, diags.Codes(KindMissingOverlap))
}

func TestAreaWeights_TargetWithoutSource(t *testing.T) {
	targets := set(LevelZCTA, unit("20001", band(0, 5)), unit("20009", band(20, 25)))
	sources := set(LevelCounty, unit("11001", band(0, 5)))

	wt, diags, err := NewComputer().AreaWeights(targets, sources)
	require.NoError(t, err)
	require.Len(t, wt.Rows, 1)
	assert.Equal(t, 1.0, wt.Rows[0].Weight)
	assert.Equal(t, []string{"20009"}, diags.Codes(KindMissingOverlap))
}

func TestAreaWeights_AdjacentTargetHasNoRow(t *testing.T) {
	targets := set(LevelZCTA, unit("20001", band(0, 5)), unit("20002", band(5, 10)))
	sources := set(LevelCounty, unit("11001", band(0, 5)))

	wt, _, err := NewComputer().AreaWeights(targets, sources)
	require.NoError(t, err)
	_, ok := weightOf(wt, "11001", "20002")
	assert.False(t, ok)
}

func TestAreaWeights_NegligibleOverlapDiscarded(t *testing.T) {
	targets := set(LevelZCTA, unit("20001", band(0, 5)), unit("20002", band(5, 10)))
	sources := set(LevelCounty, unit("11001", band(0, 5)))

	wt, _, err := NewComputer(WithMinOverlapArea(1e12)).AreaWeights(targets, sources)
	require.NoError(t, err)
	assert.Empty(t, wt.Rows)
}

func TestAreaWeights_RejectsProjectedInput(t *testing.T) {
	projected := geom.NewMultiPolygon(geom.XY).MustSetCoords([][][]geom.Coord{{{
		{1.6e6, 1.9e6}, {1.7e6, 1.9e6}, {1.7e6, 2.0e6}, {1.6e6, 2.0e6}, {1.6e6, 1.9e6},
	}}})
	targets := set(LevelZCTA, unit("20001", band(0, 5)))
	sources := set(LevelCounty, unit("11001", projected))

	_, _, err := NewComputer().AreaWeights(targets, sources)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not geographic")
}

func TestAreaWeights_DuplicateCode(t *testing.T) {
	targets := set(LevelZCTA, unit("20001", band(0, 5)), unit("20001", band(5, 10)))
	sources := set(LevelCounty, unit("11001", band(0, 10)))

	_, _, err := NewComputer().AreaWeights(targets, sources)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel(" Tract ")
	require.NoError(t, err)
	assert.Equal(t, LevelTract, l)
	assert.Equal(t, 11, l.CodeWidth())

	_, err = ParseLevel("block")
	assert.Error(t, err)
}

func TestPolygonSet_Validate(t *testing.T) {
	assert.Error(t, set(LevelZCTA, Unit{Code: "", Geom: band(0, 1)}).Validate())
	assert.Error(t, set(LevelZCTA, Unit{Code: "20001"}).Validate())
	assert.NoError(t, set(LevelZCTA, unit("20001", band(0, 1))).Validate())
}
