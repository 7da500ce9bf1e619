// Package crosswalk computes area- and population-based weights between
// source geographic units and target ZCTAs, validates them, and uses them to
// reallocate source-keyed measures onto ZCTAs while preserving totals.
package crosswalk

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Level identifies the geographic granularity of a polygon set.
type Level string

// Supported levels.
const (
	LevelState  Level = "state"
	LevelCounty Level = "county"
	LevelTract  Level = "tract"
	LevelZCTA   Level = "zcta"
)

// CodeWidth returns the number of digits in a unit code at this level, or 0
// for unknown levels.
func (l Level) CodeWidth() int {
	switch l {
	case LevelState:
		return 2
	case LevelCounty, LevelZCTA:
		return 5
	case LevelTract:
		return 11
	}
	return 0
}

// ParseLevel converts a user-supplied level name.
func ParseLevel(s string) (Level, error) {
	switch l := Level(strings.ToLower(strings.TrimSpace(s))); l {
	case LevelState, LevelCounty, LevelTract, LevelZCTA:
		return l, nil
	}
	return "", eris.Errorf("crosswalk: unknown level %q", s)
}

// Unit is one polygon of a polygon set. Geom holds NAD83 lon/lat coordinates.
type Unit struct {
	Code string
	Geom *geom.MultiPolygon
}

// PolygonSet is an ordered collection of units with unique codes.
type PolygonSet struct {
	Level Level
	Units []Unit
}

// Validate checks that every unit has a non-empty unique code and a geometry.
func (s PolygonSet) Validate() error {
	seen := make(map[string]struct{}, len(s.Units))
	for i, u := range s.Units {
		if u.Code == "" {
			return eris.Errorf("crosswalk: %s unit %d has an empty code", s.Level, i)
		}
		if u.Geom == nil {
			return eris.Errorf("crosswalk: %s unit %s has no geometry", s.Level, u.Code)
		}
		if _, dup := seen[u.Code]; dup {
			return eris.Errorf("crosswalk: duplicate %s unit code %s", s.Level, u.Code)
		}
		seen[u.Code] = struct{}{}
	}
	return nil
}

// Codes returns the unit codes in set order.
func (s PolygonSet) Codes() []string {
	codes := make([]string, len(s.Units))
	for i, u := range s.Units {
		codes[i] = u.Code
	}
	return codes
}

// Weight is the share of a source unit assigned to one ZCTA.
type Weight struct {
	Source string  `csv:"source"`
	ZCTA   string  `csv:"zcta5"`
	Weight float64 `csv:"weight"`
}

// WeightTable holds source->ZCTA weights for one source level.
type WeightTable struct {
	Level Level
	Rows  []Weight
}

// Sort orders rows by source code, then ZCTA.
func (w WeightTable) Sort() {
	sort.SliceStable(w.Rows, func(i, j int) bool {
		if w.Rows[i].Source != w.Rows[j].Source {
			return w.Rows[i].Source < w.Rows[j].Source
		}
		return w.Rows[i].ZCTA < w.Rows[j].ZCTA
	})
}

// Sources returns the distinct source codes in row order.
func (w WeightTable) Sources() []string {
	var out []string
	seen := make(map[string]struct{})
	for _, r := range w.Rows {
		if _, ok := seen[r.Source]; ok {
			continue
		}
		seen[r.Source] = struct{}{}
		out = append(out, r.Source)
	}
	return out
}

// BySource groups rows by source code, preserving row order within a group.
func (w WeightTable) BySource() map[string][]Weight {
	out := make(map[string][]Weight)
	for _, r := range w.Rows {
		out[r.Source] = append(out[r.Source], r)
	}
	return out
}

// ZCTAs returns the distinct ZCTA codes in the table, sorted.
func (w WeightTable) ZCTAs() []string {
	seen := make(map[string]struct{})
	for _, r := range w.Rows {
		seen[r.ZCTA] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for z := range seen {
		out = append(out, z)
	}
	sort.Strings(out)
	return out
}

// KeyZCTA is the key column of allocated tables.
const KeyZCTA = "zcta5"

// Table is a keyed measure table. Every row carries one value per dimension
// column and one value per value column. Missing values are NaN.
type Table struct {
	KeyColumn    string
	DimColumns   []string
	ValueColumns []string
	Rows         []Row
}

// Row is one record of a Table.
type Row struct {
	Key    string
	Dims   []string
	Values []float64
}

// ValueIndex returns the position of a value column or -1.
func (t *Table) ValueIndex(name string) int {
	for i, c := range t.ValueColumns {
		if c == name {
			return i
		}
	}
	return -1
}

// Validate checks that every row matches the table's column layout.
func (t *Table) Validate() error {
	for i, r := range t.Rows {
		if len(r.Dims) != len(t.DimColumns) {
			return eris.Errorf("crosswalk: row %d (%s) has %d dimensions, want %d", i, r.Key, len(r.Dims), len(t.DimColumns))
		}
		if len(r.Values) != len(t.ValueColumns) {
			return eris.Errorf("crosswalk: row %d (%s) has %d values, want %d", i, r.Key, len(r.Values), len(t.ValueColumns))
		}
	}
	return nil
}

// Filter returns a copy of t holding only rows whose key is in keys.
func (t *Table) Filter(keys []string) *Table {
	keep := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		keep[k] = struct{}{}
	}
	out := &Table{
		KeyColumn:    t.KeyColumn,
		DimColumns:   append([]string(nil), t.DimColumns...),
		ValueColumns: append([]string(nil), t.ValueColumns...),
	}
	for _, r := range t.Rows {
		if _, ok := keep[r.Key]; ok {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Keys returns the distinct row keys, sorted.
func (t *Table) Keys() []string {
	seen := make(map[string]struct{}, len(t.Rows))
	for _, r := range t.Rows {
		seen[r.Key] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
