package crosswalk

import (
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// Allocate redistributes the requested value columns of a source-keyed table
// onto ZCTAs. Each source row is multiplied by every weight of its key and the
// products are summed per ZCTA and dimension tuple. Weights are validated
// first. Source keys absent from the weights are dropped and reported as
// MissingOverlap diagnostics. An empty valueColumns allocates every value
// column. Output rows are sorted by ZCTA then dimensions, and NaN inputs
// contribute nothing; a cell with no valid contribution stays NaN.
func Allocate(src *Table, weights WeightTable, valueColumns []string) (*Table, Diagnostics, error) {
	if src == nil {
		return nil, nil, eris.New("crosswalk: nil source table")
	}
	if err := Validate(weights); err != nil {
		return nil, nil, err
	}
	if err := src.Validate(); err != nil {
		return nil, nil, err
	}

	if len(valueColumns) == 0 {
		valueColumns = src.ValueColumns
	}
	cols := make([]int, len(valueColumns))
	for i, name := range valueColumns {
		idx := src.ValueIndex(name)
		if idx < 0 {
			return nil, nil, eris.Errorf("crosswalk: value column %q not in source table", name)
		}
		cols[i] = idx
	}

	bySource := weights.BySource()

	type cell struct {
		zcta  string
		dims  []string
		sums  []float64
		valid []bool
	}
	cells := make(map[string]*cell)
	missing := make(map[string]struct{})

	for _, r := range src.Rows {
		ws, ok := bySource[r.Key]
		if !ok {
			missing[r.Key] = struct{}{}
			continue
		}
		dimKey := strings.Join(r.Dims, "\x1f")
		for _, w := range ws {
			k := w.ZCTA + "\x1e" + dimKey
			c, ok := cells[k]
			if !ok {
				c = &cell{
					zcta:  w.ZCTA,
					dims:  r.Dims,
					sums:  make([]float64, len(cols)),
					valid: make([]bool, len(cols)),
				}
				cells[k] = c
			}
			for j, idx := range cols {
				v := r.Values[idx]
				if math.IsNaN(v) {
					continue
				}
				c.sums[j] += v * w.Weight
				c.valid[j] = true
			}
		}
	}

	out := &Table{
		KeyColumn:    KeyZCTA,
		DimColumns:   append([]string(nil), src.DimColumns...),
		ValueColumns: append([]string(nil), valueColumns...),
		Rows:         make([]Row, 0, len(cells)),
	}
	for _, c := range cells {
		vals := make([]float64, len(cols))
		for j := range vals {
			if c.valid[j] {
				vals[j] = c.sums[j]
			} else {
				vals[j] = math.NaN()
			}
		}
		out.Rows = append(out.Rows, Row{Key: c.zcta, Dims: append([]string(nil), c.dims...), Values: vals})
	}
	sort.Slice(out.Rows, func(i, j int) bool { return lessRow(out.Rows[i], out.Rows[j]) })

	var diags Diagnostics
	codes := make([]string, 0, len(missing))
	for k := range missing {
		codes = append(codes, k)
	}
	sort.Strings(codes)
	for _, k := range codes {
		diags.Add(KindMissingOverlap, weights.Level, k, "source unit has no weights; dropped from allocation")
	}
	return out, diags, nil
}

func lessRow(a, b Row) bool {
	if a.Key != b.Key {
		return a.Key < b.Key
	}
	for i := range a.Dims {
		if i >= len(b.Dims) {
			return false
		}
		if a.Dims[i] != b.Dims[i] {
			return a.Dims[i] < b.Dims[i]
		}
	}
	return len(a.Dims) < len(b.Dims)
}
