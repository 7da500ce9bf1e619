package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
	"github.com/sells-group/crosswalk-cli/internal/store"
	"github.com/sells-group/crosswalk-cli/pkg/census"
)

// band is a lon/lat rectangle from x0 to x1 hundredths of a degree east of
// -77 and one hundredth of a degree tall, with shared vertices at cuts.
func band(x0, x1 float64, cuts ...float64) *geom.MultiPolygon {
	xs := []float64{x0}
	for _, c := range cuts {
		if c > x0 && c < x1 {
			xs = append(xs, c)
		}
	}
	xs = append(xs, x1)
	sort.Float64s(xs)

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

// fakeProvider serves fixed polygons: ZCTAs 20001 and 20002 side by side,
// county 11001 covering both and county 24031 far to the east.
type fakeProvider struct {
	mu          sync.Mutex
	targetCalls int
	sourceCalls int
	regions     []string
	zctas       []crosswalk.Unit
	sources     map[crosswalk.Level][]crosswalk.Unit
	err         error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		zctas: []crosswalk.Unit{
			{Code: "20001", Geom: band(0, 5)},
			{Code: "20002", Geom: band(5, 10)},
		},
		sources: map[crosswalk.Level][]crosswalk.Unit{
			crosswalk.LevelCounty: {
				{Code: "11001", Geom: band(0, 10, 5)},
				{Code: "24031", Geom: band(20, 25)},
			},
		},
	}
}

func (p *fakeProvider) LoadTargetPolygons(_ context.Context, codes []string) (crosswalk.PolygonSet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.targetCalls++
	want := make(map[string]bool, len(codes))
	for _, c := range codes {
		want[c] = true
	}
	set := crosswalk.PolygonSet{Level: crosswalk.LevelZCTA}
	for _, u := range p.zctas {
		if want[u.Code] {
			set.Units = append(set.Units, u)
		}
	}
	return set, nil
}

func (p *fakeProvider) LoadSourcePolygons(_ context.Context, level crosswalk.Level, regions []string) (crosswalk.PolygonSet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sourceCalls++
	p.regions = regions
	if p.err != nil {
		return crosswalk.PolygonSet{}, p.err
	}
	return crosswalk.PolygonSet{Level: level, Units: p.sources[level]}, nil
}

func newCache(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var targets = []string{"20001", "20002"}

// fakeCensus answers data queries with fixed values: population 800 and 200
// for the two ZCTAs, 1000 for county 11001 and 10 (ZCTA) or 100 (county)
// for every other variable.
type fakeCensus struct {
	mu      sync.Mutex
	queries []census.Query
	years   map[string][]int
}

func (f *fakeCensus) DatasetExists(_ context.Context, year int, dataset string) (bool, error) {
	for _, y := range f.years[dataset] {
		if y == year {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCensus) GroupLabels(_ context.Context, _ int, _, group string) (map[string]string, error) {
	if group != "B19131" {
		return nil, nil
	}
	return map[string]string{
		"B19131_007E": "Estimate!!Total:!!With own children of the householder under 18 years:!!$150,000 to $199,999",
		"B19131_008E": "Estimate!!Total:!!With own children of the householder under 18 years:!!$200,000 or more",
	}, nil
}

func (f *fakeCensus) Get(_ context.Context, q census.Query) ([][]string, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()

	geo, codes, ok := strings.Cut(q.For, ":")
	if !ok {
		return nil, fmt.Errorf("bad for clause %q", q.For)
	}
	header := append([]string{"NAME"}, q.Variables...)
	switch geo {
	case "county":
		header = append(header, "state", "county")
	default:
		header = append(header, geo)
	}
	out := [][]string{header}
	for _, code := range strings.Split(codes, ",") {
		row := []string{"unit " + code}
		for _, v := range q.Variables {
			row = append(row, f.value(geo, code, v))
		}
		if geo == "county" {
			row = append(row, strings.TrimPrefix(q.In, "state:"), code)
		} else {
			row = append(row, code)
		}
		out = append(out, row)
	}
	return out, nil
}

func (f *fakeCensus) value(geo, code, variable string) string {
	if variable == "B01001_001E" {
		switch {
		case geo == "county":
			return "1000"
		case code == "20001":
			return "800"
		default:
			return "200"
		}
	}
	if geo == "county" {
		return "100"
	}
	return "10"
}
