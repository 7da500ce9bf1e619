package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
	"github.com/sells-group/crosswalk-cli/internal/store"
)

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyFail, p)

	p, err = ParsePolicy(" ALL ")
	require.NoError(t, err)
	assert.Equal(t, PolicyAll, p)

	_, err = ParsePolicy("some")
	assert.Error(t, err)
}

func TestTargetSources_Narrows(t *testing.T) {
	prov := newFakeProvider()
	tgt, err := prov.LoadTargetPolygons(context.Background(), targets)
	require.NoError(t, err)

	got, err := TargetSources(context.Background(), prov, crosswalk.NewComputer(), tgt, crosswalk.LevelCounty, []string{"11", "24"}, PolicyFail)
	require.NoError(t, err)
	assert.Empty(t, got.Diagnostics, "24031 is dropped, not reported")
	assert.False(t, got.Fallback)
	assert.Equal(t, []string{"11001"}, got.Sources.Codes())
	assert.Equal(t, []string{"11", "24"}, prov.regions)

	require.Len(t, got.Weights.Rows, 2)
	assert.Equal(t, []string{"11001"}, got.Weights.Sources())
	assert.InDelta(t, 0.5, got.Weights.Rows[0].Weight, 1e-6)
	assert.InDelta(t, 0.5, got.Weights.Rows[1].Weight, 1e-6)
}

func TestTargetSources_KeepsTargetFindings(t *testing.T) {
	prov := newFakeProvider()
	prov.zctas = append(prov.zctas, crosswalk.Unit{Code: "20010", Geom: band(40, 45)})
	tgt, err := prov.LoadTargetPolygons(context.Background(), []string{"20001", "20002", "20010"})
	require.NoError(t, err)

	got, err := TargetSources(context.Background(), prov, crosswalk.NewComputer(), tgt, crosswalk.LevelCounty, nil, PolicyFail)
	require.NoError(t, err)
	assert.Equal(t, []string{"20010"}, got.Diagnostics.Codes(crosswalk.KindMissingOverlap))
}

func TestTargetSources_Fallback(t *testing.T) {
	prov := newFakeProvider()
	prov.sources[crosswalk.LevelCounty] = prov.sources[crosswalk.LevelCounty][1:]
	tgt, err := prov.LoadTargetPolygons(context.Background(), targets)
	require.NoError(t, err)

	_, err = TargetSources(context.Background(), prov, crosswalk.NewComputer(), tgt, crosswalk.LevelCounty, nil, PolicyFail)
	assert.ErrorContains(t, err, "no county overlaps")

	got, err := TargetSources(context.Background(), prov, crosswalk.NewComputer(), tgt, crosswalk.LevelCounty, nil, PolicyAll)
	require.NoError(t, err)
	assert.True(t, got.Fallback)
	assert.Empty(t, got.Weights.Rows)
	assert.Equal(t, []string{"24031"}, got.Sources.Codes())
	assert.Equal(t, 1, got.Diagnostics.Count(crosswalk.KindFallbackAllSources))
}

func TestTargetSources_LoadError(t *testing.T) {
	prov := newFakeProvider()
	prov.err = errors.New("boom")
	_, err := TargetSources(context.Background(), prov, crosswalk.NewComputer(), crosswalk.PolygonSet{}, crosswalk.LevelCounty, nil, PolicyAll)
	assert.ErrorContains(t, err, "boom")
}

func TestResolver_StaleMissThenHit(t *testing.T) {
	ctx := context.Background()
	prov := newFakeProvider()
	cache := newCache(t)
	r := NewResolver(cache, prov, crosswalk.NewComputer(), []string{"11"})

	ids, diags, err := r.Resolve(ctx, targets)
	require.NoError(t, err)
	assert.Equal(t, targets, diags.Codes(crosswalk.KindStaleCacheMiss))
	assert.Equal(t, "11001", ids.County["20001"])
	assert.Equal(t, "11", ids.State["20002"])
	assert.Equal(t, 1, prov.sourceCalls)

	ids, diags, err = r.Resolve(ctx, []string{"20002", "20001"})
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Equal(t, "11001", ids.County["20002"])
	assert.Equal(t, 1, prov.sourceCalls)
}

func TestResolver_ZCTAWithoutCountyIsRemembered(t *testing.T) {
	ctx := context.Background()
	prov := newFakeProvider()
	prov.zctas = append(prov.zctas, crosswalk.Unit{Code: "20010", Geom: band(40, 45)})
	cache := newCache(t)
	r := NewResolver(cache, prov, crosswalk.NewComputer(), nil)
	all := []string{"20001", "20002", "20010"}

	ids, diags, err := r.Resolve(ctx, all)
	require.NoError(t, err)
	assert.Equal(t, []string{"20010"}, diags.Codes(crosswalk.KindMissingOverlap))
	_, ok := ids.County["20010"]
	assert.False(t, ok)

	_, diags, err = r.Resolve(ctx, all)
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Equal(t, 1, prov.sourceCalls)

	entry, err := cache.LoadGeoIDs(ctx, store.SetHash(all))
	require.NoError(t, err)
	assert.Empty(t, entry.Absent(all))
}

func TestRunner_WeightsAndRun(t *testing.T) {
	ctx := context.Background()
	prov := newFakeProvider()
	runner := NewRunner(prov, crosswalk.NewComputer(), NewResolver(newCache(t), prov, crosswalk.NewComputer(), nil), RunnerOptions{
		Targets:     targets,
		Concurrency: 2,
	})

	area, diags, err := runner.Weights(ctx, crosswalk.LevelCounty, nil)
	require.NoError(t, err)
	assert.Empty(t, diags)
	require.Len(t, area.Rows, 2)
	assert.InDelta(t, 0.5, area.Rows[0].Weight, 1e-6)

	refined, _, err := runner.Weights(ctx, crosswalk.LevelCounty, map[string]float64{"20001": 800, "20002": 200})
	require.NoError(t, err)
	assert.InDelta(t, 0.8, refined.Rows[0].Weight, 1e-6)

	src := &crosswalk.Table{
		KeyColumn:    "county",
		DimColumns:   []string{"year"},
		ValueColumns: []string{"population", "households"},
		Rows:         []crosswalk.Row{{Key: "11001", Dims: []string{"2020"}, Values: []float64{1000, 400}}},
	}
	batch, err := runner.Run(ctx, []Job{
		{Name: "area", Source: src, Weights: area, ValueColumns: []string{"population"}},
		{Name: "refined", Source: src, Weights: refined},
	})
	require.NoError(t, err)
	require.Len(t, batch.Results, 2)

	a := batch.Results[0]
	assert.Equal(t, "area", a.Name)
	assert.Equal(t, []string{"population"}, a.Table.ValueColumns)
	assert.InDelta(t, 500, a.Table.Rows[0].Values[0], 1e-6)
	assert.InDelta(t, 500, a.Table.Rows[1].Values[0], 1e-6)
	require.Len(t, a.Rows, 2)
	assert.Equal(t, "11001", a.Rows[0].County)
	assert.Equal(t, "11", a.Rows[0].State)

	r := batch.Results[1]
	assert.InDelta(t, 800, r.Table.Rows[0].Values[0], 1e-6)
	assert.InDelta(t, 80, r.Table.Rows[1].Values[1], 1e-6)

	assert.Equal(t, 2, batch.Diagnostics.Count(crosswalk.KindStaleCacheMiss))
}

func TestRunner_ValidationErrorAbortsBatch(t *testing.T) {
	runner := NewRunner(newFakeProvider(), crosswalk.NewComputer(), nil, RunnerOptions{Targets: targets})
	src := &crosswalk.Table{KeyColumn: "county", ValueColumns: []string{"v"}, Rows: []crosswalk.Row{{Key: "11001", Values: []float64{1}}}}
	good := crosswalk.WeightTable{Level: crosswalk.LevelCounty, Rows: []crosswalk.Weight{{Source: "11001", ZCTA: "20001", Weight: 1}}}
	bad := crosswalk.WeightTable{Level: crosswalk.LevelCounty, Rows: []crosswalk.Weight{{Source: "11001", ZCTA: "20001", Weight: 0.4}}}

	_, err := runner.Run(context.Background(), []Job{
		{Name: "good", Source: src, Weights: good},
		{Name: "bad", Source: src, Weights: bad},
	})
	var ve *crosswalk.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, err.Error(), "bad")
}

func TestRunner_FiltersToTargetsAndDerives(t *testing.T) {
	runner := NewRunner(newFakeProvider(), crosswalk.NewComputer(), nil, RunnerOptions{Targets: []string{"20001"}})
	src := &crosswalk.Table{KeyColumn: "county", ValueColumns: []string{"v"}, Rows: []crosswalk.Row{{Key: "11001", Values: []float64{10}}}}
	wt := crosswalk.WeightTable{Level: crosswalk.LevelCounty, Rows: []crosswalk.Weight{
		{Source: "11001", ZCTA: "20001", Weight: 0.5},
		{Source: "11001", ZCTA: "20099", Weight: 0.5},
	}}
	derived := false
	batch, err := runner.Run(context.Background(), []Job{{
		Name: "x", Source: src, Weights: wt,
		Derive: func(tbl *crosswalk.Table) error {
			derived = true
			assert.Equal(t, []string{"20001"}, tbl.Keys())
			return nil
		},
	}})
	require.NoError(t, err)
	assert.True(t, derived)
	assert.Equal(t, []string{"20001"}, batch.Results[0].Table.Keys())
	assert.Empty(t, batch.Results[0].Rows[0].County)

	require.Len(t, batch.Diagnostics, 1)
	d := batch.Diagnostics[0]
	assert.Equal(t, crosswalk.KindNonTargetZCTA, d.Kind)
	assert.Equal(t, crosswalk.LevelZCTA, d.Level)
	assert.Equal(t, "20099", d.Code)
	assert.Contains(t, d.Detail, "job x")
}

func TestSmokeCheck(t *testing.T) {
	tbl := &crosswalk.Table{KeyColumn: crosswalk.KeyZCTA, Rows: []crosswalk.Row{{Key: "20001"}}}
	diags, err := SmokeCheck("acs5", tbl, []string{"20001", "20002"})
	require.NoError(t, err)
	assert.Equal(t, []string{"20002"}, diags.Codes(crosswalk.KindMissingTarget))

	_, err = SmokeCheck("acs5", &crosswalk.Table{KeyColumn: crosswalk.KeyZCTA}, nil)
	assert.ErrorContains(t, err, "empty")
	_, err = SmokeCheck("acs5", &crosswalk.Table{KeyColumn: "county", Rows: tbl.Rows}, nil)
	assert.ErrorContains(t, err, "keyed by county")
}

func TestReport(t *testing.T) {
	r := NewReport("", "weights", 2)
	assert.Len(t, r.RunID, 36)

	r.AddTable("acs5", &crosswalk.Table{KeyColumn: crosswalk.KeyZCTA, DimColumns: []string{"year"}, ValueColumns: []string{"v"}, Rows: make([]crosswalk.Row, 3)})
	r.AddTable("none", nil)
	var d crosswalk.Diagnostics
	d.Add(crosswalk.KindMissingTarget, crosswalk.LevelZCTA, "20002", "absent")
	d.Add(crosswalk.KindMissingTarget, crosswalk.LevelZCTA, "20003", "absent")
	r.AddDiagnostics(d)

	b, err := r.Finish()
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "weights", decoded["command"])
	assert.Equal(t, map[string]any{"missing_target": float64(2)}, decoded["diagnostic_counts"])
	assert.Len(t, decoded["tables"], 1)
	assert.False(t, r.FinishedAt.IsZero())

	assert.Equal(t, "fixed", NewReport("fixed", "x", 0).RunID)
}
