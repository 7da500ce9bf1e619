package zcta

import (
	"math"
	"sort"
	"time"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
)

// Point is one event record, located either by ZIP or by coordinates.
type Point struct {
	ZIP   string // used when non-empty; coordinates are ignored then
	Lon   float64
	Lat   float64
	At    time.Time
	Value float64 // summed into the value column; NaN is skipped
}

// Method values describing how points were assigned.
const (
	MethodNativeZIP = "native_zip"
	MethodPoint     = "point_in_polygon"
)

// AggregateResult holds per-(zcta, month) counts.
type AggregateResult struct {
	Table     *crosswalk.Table
	Unplaced  int // points with neither a ZIP nor a containing ZCTA, or no date
	Untracked int // points placed outside the target set
}

// Aggregate counts points per target ZCTA and calendar month. The table has
// dimension "period" (YYYY-MM) and values "record_count" plus valueColumn
// when non-empty. loc may be nil when every point carries a ZIP.
func Aggregate(points []Point, loc *Locator, targets []string, overrides map[string]string, valueColumn string) AggregateResult {
	want := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		want[t] = struct{}{}
	}

	type cell struct {
		count, sum float64
		hasSum     bool
	}
	cells := make(map[[2]string]*cell)
	var res AggregateResult

	for _, p := range points {
		if p.At.IsZero() {
			res.Unplaced++
			continue
		}
		var code string
		if p.ZIP != "" {
			code = ToZCTA(p.ZIP, overrides)
		} else if loc != nil {
			c, ok := loc.Locate(p.Lon, p.Lat)
			if !ok {
				res.Unplaced++
				continue
			}
			code = c
		} else {
			res.Unplaced++
			continue
		}
		if _, ok := want[code]; !ok {
			res.Untracked++
			continue
		}
		key := [2]string{code, p.At.UTC().Format("2006-01")}
		c := cells[key]
		if c == nil {
			c = &cell{}
			cells[key] = c
		}
		c.count++
		if !math.IsNaN(p.Value) {
			c.sum += p.Value
			c.hasSum = true
		}
	}

	values := []string{"record_count"}
	if valueColumn != "" {
		values = append(values, valueColumn)
	}
	tbl := &crosswalk.Table{KeyColumn: crosswalk.KeyZCTA, DimColumns: []string{"period"}, ValueColumns: values}
	keys := make([][2]string, 0, len(cells))
	for k := range cells {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
	for _, k := range keys {
		c := cells[k]
		row := crosswalk.Row{Key: k[0], Dims: []string{k[1]}, Values: []float64{c.count}}
		if valueColumn != "" {
			v := math.NaN()
			if c.hasSum {
				v = c.sum
			}
			row.Values = append(row.Values, v)
		}
		tbl.Rows = append(tbl.Rows, row)
	}
	res.Table = tbl
	return res
}
