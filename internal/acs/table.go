package acs

import (
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
)

// Derived and income field names.
const (
	FieldPublicEnrolled  = "public_enrolled_3_14"
	FieldPrivateEnrolled = "private_enrolled_3_14"
	FieldChooserRate     = "private_chooser_rate_3_14"
	FieldIncome150Plus   = "hhkids_income_150_plus"
	FieldIncome200Plus   = "hhkids_income_200_plus"
	FieldPopulation      = "population_total"
)

// IncomeGroup is the table whose variables are discovered by label.
const IncomeGroup = "B19131"

const childrenLabel = "With own children of the householder under 18 years"

// IncomeFields picks the estimate variables of the household income by
// children table whose labels name households with own children and the top
// two income brackets. labels maps variable code to label. The 150k field
// sums both brackets. Fields with no matching variables are omitted.
func IncomeFields(labels map[string]string) map[string][]string {
	pick := func(bracket string) []string {
		var out []string
		for code, label := range labels {
			if !strings.HasSuffix(code, "E") || !strings.Contains(label, childrenLabel) {
				continue
			}
			if strings.Contains(label, bracket) {
				out = append(out, code)
			}
		}
		sort.Strings(out)
		return out
	}
	v150 := pick("$150,000 to $199,999")
	v200 := pick("$200,000 or more")

	out := make(map[string][]string, 2)
	if len(v150)+len(v200) > 0 {
		out[FieldIncome150Plus] = append(append([]string(nil), v150...), v200...)
	}
	if len(v200) > 0 {
		out[FieldIncome200Plus] = v200
	}
	return out
}

func rowKey(r crosswalk.Row) string {
	return r.Key + "\x00" + strings.Join(r.Dims, "\x00")
}

func sameLayout(a, b *crosswalk.Table) bool {
	if a.KeyColumn != b.KeyColumn || len(a.DimColumns) != len(b.DimColumns) {
		return false
	}
	for i := range a.DimColumns {
		if a.DimColumns[i] != b.DimColumns[i] {
			return false
		}
	}
	return true
}

// Join merges the value columns of b into a, matching rows on key and
// dimensions. Rows present on one side only get NaN for the other side's
// columns. Column names must not collide.
func Join(a, b *crosswalk.Table) (*crosswalk.Table, error) {
	if a == nil || b == nil {
		return nil, eris.New("acs: join of nil table")
	}
	if !sameLayout(a, b) {
		return nil, eris.Errorf("acs: cannot join %s table with %s table", a.KeyColumn, b.KeyColumn)
	}
	for _, c := range b.ValueColumns {
		if a.ValueIndex(c) >= 0 {
			return nil, eris.Errorf("acs: column %s present in both tables", c)
		}
	}

	na, nb := len(a.ValueColumns), len(b.ValueColumns)
	out := &crosswalk.Table{
		KeyColumn:    a.KeyColumn,
		DimColumns:   append([]string(nil), a.DimColumns...),
		ValueColumns: append(append([]string(nil), a.ValueColumns...), b.ValueColumns...),
	}
	index := make(map[string]int, len(a.Rows))
	for _, r := range a.Rows {
		vals := make([]float64, na+nb)
		copy(vals, r.Values)
		for i := na; i < na+nb; i++ {
			vals[i] = math.NaN()
		}
		index[rowKey(r)] = len(out.Rows)
		out.Rows = append(out.Rows, crosswalk.Row{Key: r.Key, Dims: append([]string(nil), r.Dims...), Values: vals})
	}
	for _, r := range b.Rows {
		if i, ok := index[rowKey(r)]; ok {
			copy(out.Rows[i].Values[na:], r.Values)
			continue
		}
		vals := make([]float64, na+nb)
		for i := 0; i < na; i++ {
			vals[i] = math.NaN()
		}
		copy(vals[na:], r.Values)
		out.Rows = append(out.Rows, crosswalk.Row{Key: r.Key, Dims: append([]string(nil), r.Dims...), Values: vals})
	}
	sortRows(out)
	return out, nil
}

// Concat stacks tables that share key and dimension columns, typically one
// per year. Value columns are united by name in first-seen order; a table
// lacking a column gets NaN for it.
func Concat(tables ...*crosswalk.Table) (*crosswalk.Table, error) {
	var out *crosswalk.Table
	for _, t := range tables {
		if t == nil {
			continue
		}
		if out == nil {
			out = &crosswalk.Table{KeyColumn: t.KeyColumn, DimColumns: append([]string(nil), t.DimColumns...)}
		} else if !sameLayout(out, t) {
			return nil, eris.Errorf("acs: cannot concat %s table with %s table", out.KeyColumn, t.KeyColumn)
		}
		for _, c := range t.ValueColumns {
			if out.ValueIndex(c) < 0 {
				out.ValueColumns = append(out.ValueColumns, c)
			}
		}
	}
	if out == nil {
		return nil, eris.New("acs: nothing to concat")
	}

	for _, t := range tables {
		if t == nil {
			continue
		}
		pos := make([]int, len(t.ValueColumns))
		for i, c := range t.ValueColumns {
			pos[i] = out.ValueIndex(c)
		}
		for _, r := range t.Rows {
			vals := make([]float64, len(out.ValueColumns))
			for i := range vals {
				vals[i] = math.NaN()
			}
			for i, v := range r.Values {
				vals[pos[i]] = v
			}
			out.Rows = append(out.Rows, crosswalk.Row{Key: r.Key, Dims: append([]string(nil), r.Dims...), Values: vals})
		}
	}
	sortRows(out)
	return out, nil
}

func sortRows(t *crosswalk.Table) {
	sort.SliceStable(t.Rows, func(i, j int) bool {
		a, b := t.Rows[i], t.Rows[j]
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		for k := range a.Dims {
			if a.Dims[k] != b.Dims[k] {
				return a.Dims[k] < b.Dims[k]
			}
		}
		return false
	})
}

// AddChooserRate appends the private school share of enrolled children aged
// 3 to 14. The rate is NaN when either count is missing or both are zero.
// It must run after allocation since ratios do not allocate.
func AddChooserRate(t *crosswalk.Table) error {
	pub, priv := t.ValueIndex(FieldPublicEnrolled), t.ValueIndex(FieldPrivateEnrolled)
	if pub < 0 || priv < 0 {
		return eris.Errorf("acs: chooser rate needs %s and %s", FieldPublicEnrolled, FieldPrivateEnrolled)
	}
	if t.ValueIndex(FieldChooserRate) >= 0 {
		return eris.Errorf("acs: %s already present", FieldChooserRate)
	}
	t.ValueColumns = append(t.ValueColumns, FieldChooserRate)
	for i := range t.Rows {
		r := &t.Rows[i]
		r.Values = append(r.Values, ratio(r.Values[priv], r.Values[pub]+r.Values[priv]))
	}
	return nil
}

func ratio(num, den float64) float64 {
	if math.IsNaN(num) || math.IsNaN(den) || den == 0 {
		return math.NaN()
	}
	return num / den
}

// Descriptions documents the ACS fields for the data dictionary.
var Descriptions = map[string]string{
	FieldPopulation:       "Total population (B01001_001E)",
	"age0_4":              "Population age 0-4 (male+female)",
	"age5_9":              "Population age 5-9 (male+female)",
	"age10_14":            "Population age 10-14 (male+female)",
	"hh_own_children_u18": "Households with own children under 18",
	FieldIncome150Plus:    "Households with own children under 18 and income >=150k",
	FieldIncome200Plus:    "Households with own children under 18 and income >=200k",
	FieldPublicEnrolled:   "Public school enrollment ages 3-14",
	FieldPrivateEnrolled:  "Private school enrollment ages 3-14",
	FieldChooserRate:      "Private chooser rate ages 3-14",
}

// Population extracts one year of a value column as a ZCTA->count map for
// weight refinement. NaN cells are left out.
func Population(t *crosswalk.Table, column, year string) (map[string]float64, error) {
	col := t.ValueIndex(column)
	if col < 0 {
		return nil, eris.Errorf("acs: population column %s not found", column)
	}
	dim := -1
	for i, d := range t.DimColumns {
		if d == DimYear {
			dim = i
		}
	}
	out := make(map[string]float64)
	for _, r := range t.Rows {
		if dim >= 0 && r.Dims[dim] != year {
			continue
		}
		if v := r.Values[col]; !math.IsNaN(v) {
			out[r.Key] = v
		}
	}
	if len(out) == 0 {
		return nil, eris.Errorf("acs: no %s values for %s", column, year)
	}
	return out, nil
}
