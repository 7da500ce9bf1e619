package acs

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
)

// Census geography columns.
const (
	ColState  = "state"
	ColCounty = "county"
	ColZCTA   = "zip code tabulation area"
)

// DimYear is the dimension column of parsed tables.
const DimYear = "year"

// KeyCounty is the key column of county tables.
const KeyCounty = "county"

// sentinelFloor is the largest of the Census annotation values
// (-222222222, -333333333, -555555555, -666666666, -888888888, -999999999).
const sentinelFloor = -222222222

// ParseValue converts one Census cell. Empty cells, non-numeric cells and
// annotation sentinels are NaN.
func ParseValue(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || v <= sentinelFloor {
		return math.NaN()
	}
	return v
}

// sumField adds the non-NaN components of a field. A field whose components
// are all NaN is NaN.
func sumField(vals []float64) float64 {
	total, seen := 0.0, false
	for _, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		total += v
		seen = true
	}
	if !seen {
		return math.NaN()
	}
	return total
}

type header map[string]int

func newHeader(row []string) header {
	h := make(header, len(row))
	for i, c := range row {
		h[c] = i
	}
	return h
}

func (h header) require(cols ...string) error {
	var missing []string
	for _, c := range cols {
		if _, ok := h[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return eris.Errorf("acs: response lacks columns %s", strings.Join(missing, ", "))
	}
	return nil
}

// parse builds a table from rows whose first entry is the header. key
// extracts the unit code from a data row.
func parse(year int, resp [][]string, m Mapping, keyColumn string, geoCols []string, key func(h header, row []string) string) (*crosswalk.Table, error) {
	fields := m.FieldNames()
	t := &crosswalk.Table{
		KeyColumn:    keyColumn,
		DimColumns:   []string{DimYear},
		ValueColumns: fields,
	}
	if len(resp) == 0 {
		return t, nil
	}

	h := newHeader(resp[0])
	if err := h.require(geoCols...); err != nil {
		return nil, err
	}
	if err := h.require(m.Variables()...); err != nil {
		return nil, eris.Wrapf(err, "acs: %s %d", m.Dataset, year)
	}

	dim := strconv.Itoa(year)
	seen := make(map[string]struct{}, len(resp)-1)
	for i, row := range resp[1:] {
		if len(row) != len(resp[0]) {
			return nil, eris.Errorf("acs: row %d has %d cells, header has %d", i+1, len(row), len(resp[0]))
		}
		code := key(h, row)
		if _, dup := seen[code]; dup {
			return nil, eris.Errorf("acs: duplicate %s %s in %s %d", keyColumn, code, m.Dataset, year)
		}
		seen[code] = struct{}{}

		values := make([]float64, len(fields))
		for j, f := range fields {
			vars := m.Fields[f]
			comps := make([]float64, len(vars))
			for k, v := range vars {
				comps[k] = ParseValue(row[h[v]])
			}
			values[j] = sumField(comps)
		}
		t.Rows = append(t.Rows, crosswalk.Row{Key: code, Dims: []string{dim}, Values: values})
	}
	sort.SliceStable(t.Rows, func(i, j int) bool { return t.Rows[i].Key < t.Rows[j].Key })
	return t, nil
}

// ParseCountyResponse turns a Census API county response into a table keyed
// by 5-digit county FIPS with a year dimension.
func ParseCountyResponse(year int, resp [][]string, m Mapping) (*crosswalk.Table, error) {
	return parse(year, resp, m, KeyCounty, []string{ColState, ColCounty}, func(h header, row []string) string {
		return leftPad(row[h[ColState]], 2) + leftPad(row[h[ColCounty]], 3)
	})
}

// ParseZCTAResponse turns a Census API ZCTA response into a table keyed by
// ZCTA with a year dimension.
func ParseZCTAResponse(year int, resp [][]string, m Mapping) (*crosswalk.Table, error) {
	return parse(year, resp, m, crosswalk.KeyZCTA, []string{ColZCTA}, func(h header, row []string) string {
		return leftPad(row[h[ColZCTA]], 5)
	})
}

func leftPad(s string, width int) string {
	s = strings.TrimSpace(s)
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
