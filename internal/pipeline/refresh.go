package pipeline

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crosswalk-cli/internal/acs"
	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
	"github.com/sells-group/crosswalk-cli/internal/workbook"
	"github.com/sells-group/crosswalk-cli/pkg/census"
)

// Dataset names of the refresh.
const (
	DatasetACS5 = "acs5"
	DatasetACS1 = "acs1"

	subjectSuffix = "/subject"
)

// Table names produced by a refresh.
const (
	TableACS5Native    = "acs5_zcta"
	TableACS1Allocated = "acs1_allocated"
)

// latestLookback is how many years before CurrentYear are searched for the
// newest published 5-year vintage.
const latestLookback = 5

// RefreshOptions bounds the vintages a refresh pulls.
type RefreshOptions struct {
	StartYear int
	// EndYear of 0 means the newest published 5-year vintage.
	EndYear int
	// CurrentYear starts the newest-vintage search; zero means this year.
	CurrentYear int
}

// Refresher pulls ACS 5-year estimates natively by ZCTA and ACS 1-year
// county estimates allocated onto ZCTAs with population-refined weights.
type Refresher struct {
	census   census.Client
	vintages *acs.Vintages
	runner   *Runner
	opts     RefreshOptions
}

// NewRefresher creates a refresher.
func NewRefresher(c census.Client, v *acs.Vintages, runner *Runner, opts RefreshOptions) *Refresher {
	return &Refresher{census: c, vintages: v, runner: runner, opts: opts}
}

// endYear returns the configured end year, or the newest published 5-year
// vintage when none is set.
func (r *Refresher) endYear(ctx context.Context) (int, error) {
	if r.opts.EndYear != 0 {
		return r.opts.EndYear, nil
	}
	current := r.opts.CurrentYear
	if current == 0 {
		current = time.Now().Year()
	}
	y, err := census.LatestYear(ctx, r.census, DatasetACS5, current, latestLookback)
	if err != nil {
		return 0, eris.Wrap(err, "pipeline: resolve end year")
	}
	zap.L().With(zap.String("component", "refresh")).Info("pipeline: newest acs5 vintage", zap.Int("year", y))
	return y, nil
}

// RefreshResult holds the produced tables and every diagnostic.
type RefreshResult struct {
	Native      *crosswalk.Table
	Allocated   *crosswalk.Table
	Weights     crosswalk.WeightTable
	GeoIDs      crosswalk.GeoIDs
	Diagnostics crosswalk.Diagnostics
}

// Refresh runs the whole pull. The 1-year series is skipped with a warning
// when no 1-year vintage is published in range.
func (r *Refresher) Refresh(ctx context.Context) (*RefreshResult, error) {
	log := zap.L().With(zap.String("component", "refresh"))
	targets := r.runner.Targets()
	res := &RefreshResult{GeoIDs: crosswalk.NewGeoIDs()}

	if r.runner.resolver != nil {
		ids, diags, err := r.runner.resolver.Resolve(ctx, targets)
		if err != nil {
			return nil, err
		}
		res.GeoIDs = ids
		res.Diagnostics = append(res.Diagnostics, diags...)
	}

	end, err := r.endYear(ctx)
	if err != nil {
		return nil, err
	}
	years5, err := census.AvailableYears(ctx, r.census, DatasetACS5, r.opts.StartYear, end)
	if err != nil {
		return nil, err
	}
	if len(years5) == 0 {
		return nil, eris.Errorf("pipeline: no %s vintage between %d and %d", DatasetACS5, r.opts.StartYear, end)
	}
	log.Info("pipeline: acs5 vintages", zap.Ints("years", years5))

	var native []*crosswalk.Table
	for _, y := range years5 {
		t, err := r.pullYear(ctx, y, DatasetACS5, func(ctx context.Context, vars []string, ds string) ([][]string, error) {
			return census.FetchZCTAs(ctx, r.census, y, ds, vars, targets, res.GeoIDs.State)
		}, acs.ParseZCTAResponse)
		if err != nil {
			return nil, err
		}
		native = append(native, t)
	}
	res.Native, err = acs.Concat(native...)
	if err != nil {
		return nil, err
	}
	res.Native = res.Native.Filter(targets)
	if err := acs.AddChooserRate(res.Native); err != nil {
		return nil, err
	}

	latest := strconv.Itoa(years5[len(years5)-1])
	pop, err := acs.Population(res.Native, acs.FieldPopulation, latest)
	if err != nil {
		return nil, err
	}
	wt, diags, err := r.runner.Weights(ctx, crosswalk.LevelCounty, pop)
	if err != nil {
		return nil, err
	}
	res.Weights = wt
	res.Diagnostics = append(res.Diagnostics, diags...)

	years1, err := census.AvailableYears(ctx, r.census, DatasetACS1, r.opts.StartYear, end)
	if err != nil {
		return nil, err
	}
	counties := wt.Sources()
	sort.Strings(counties)
	var county []*crosswalk.Table
	for _, y := range years1 {
		t, err := r.pullYear(ctx, y, DatasetACS1, func(ctx context.Context, vars []string, ds string) ([][]string, error) {
			return census.FetchCounties(ctx, r.census, y, ds, vars, counties)
		}, acs.ParseCountyResponse)
		if err != nil {
			return nil, err
		}
		if len(t.Rows) == 0 {
			log.Warn("pipeline: no acs1 rows, skipping year", zap.Int("year", y))
			continue
		}
		county = append(county, t)
	}

	if len(county) == 0 {
		log.Warn("pipeline: no acs1 vintage in range, allocated series skipped")
	} else {
		src, err := acs.Concat(county...)
		if err != nil {
			return nil, err
		}
		batch, err := r.runner.Run(ctx, []Job{{
			Name:    TableACS1Allocated,
			Source:  src,
			Weights: wt,
			Derive:  acs.AddChooserRate,
		}})
		if err != nil {
			return nil, err
		}
		res.Allocated = batch.Results[0].Table
		res.Diagnostics = append(res.Diagnostics, batch.Diagnostics...)
	}

	for _, tbl := range []struct {
		name string
		t    *crosswalk.Table
	}{{TableACS5Native, res.Native}, {TableACS1Allocated, res.Allocated}} {
		if tbl.t == nil {
			continue
		}
		name := tbl.name
		d, err := SmokeCheck(name, tbl.t, targets)
		if err != nil {
			return nil, err
		}
		if len(d) > 0 {
			log.Warn("pipeline: table misses targets", zap.String("table", name), zap.Strings("zctas", d.Codes(crosswalk.KindMissingTarget)))
		}
		res.Diagnostics = append(res.Diagnostics, d...)
	}
	return res, nil
}

type fetchFunc func(ctx context.Context, vars []string, dataset string) ([][]string, error)

type parseFunc func(year int, resp [][]string, m acs.Mapping) (*crosswalk.Table, error)

// pullYear fetches the detail dataset, with label-matched income fields
// added, and joins the subject dataset when a mapping exists for it.
func (r *Refresher) pullYear(ctx context.Context, year int, dataset string, fetch fetchFunc, parse parseFunc) (*crosswalk.Table, error) {
	m, err := r.vintages.Resolve(dataset, year)
	if err != nil {
		return nil, err
	}
	labels, err := r.census.GroupLabels(ctx, year, dataset, acs.IncomeGroup)
	if err != nil {
		return nil, err
	}
	for field, vars := range acs.IncomeFields(labels) {
		m = m.With(field, vars)
	}

	resp, err := fetch(ctx, m.Variables(), dataset)
	if err != nil {
		return nil, err
	}
	t, err := parse(year, resp, m)
	if err != nil {
		return nil, err
	}

	sm, err := r.vintages.Resolve(dataset+subjectSuffix, year)
	if err != nil {
		zap.L().Debug("pipeline: no subject mapping", zap.String("dataset", dataset), zap.Int("year", year))
		return t, nil
	}
	sresp, err := fetch(ctx, sm.Variables(), sm.Dataset)
	if err != nil {
		return nil, err
	}
	st, err := parse(year, sresp, sm)
	if err != nil {
		return nil, err
	}
	return acs.Join(t, st)
}

// Sheets lays the result out for the workbook.
func (res *RefreshResult) Sheets() []workbook.Sheet {
	var out []workbook.Sheet
	if res.Native != nil {
		out = append(out, workbook.Sheet{
			Name:         TableACS5Native,
			Table:        res.Native,
			GeoIDs:       &res.GeoIDs,
			Source:       "Census ACS 5-year",
			Method:       "native_zcta",
			Limitations:  "ACS 5-year estimates are rolling averages; small-area estimates can lag current conditions.",
			Descriptions: acs.Descriptions,
		})
	}
	if res.Allocated != nil {
		out = append(out, workbook.Sheet{
			Name:         TableACS1Allocated,
			Table:        res.Allocated,
			GeoIDs:       &res.GeoIDs,
			Source:       "Census ACS 1-year",
			Method:       "county_population_weighted",
			Limitations:  "County estimates spread onto ZCTAs by population share; counties below 65,000 residents are not published.",
			Descriptions: acs.Descriptions,
		})
	}
	return out
}
