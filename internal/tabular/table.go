package tabular

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
)

// TableSpec maps the columns of a raw file onto a measure table.
type TableSpec struct {
	KeyColumn    string
	KeyWidth     int      // left-pad keys with zeros to this width; 0 leaves them
	DimColumns   []string // carried verbatim
	ValueColumns []string // every remaining column when empty
}

var missingTokens = map[string]struct{}{
	"": {}, "na": {}, "n/a": {}, "nan": {}, "null": {}, "-": {},
}

// ParseNumber converts a cell. Missing-value tokens yield NaN and ok; text
// that is not a number yields ok == false. Thousands separators and a
// trailing percent sign are accepted.
func ParseNumber(s string) (v float64, ok bool) {
	s = strings.TrimSpace(s)
	if _, missing := missingTokens[strings.ToLower(s)]; missing {
		return math.NaN(), true
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSuffix(s, "%")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ParseTable builds a table from rows whose first row is the header.
func ParseTable(rows [][]string, spec TableSpec) (*crosswalk.Table, error) {
	if len(rows) == 0 {
		return nil, eris.New("tabular: no header row")
	}
	idx := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		idx[h] = i
	}
	find := func(name string) (int, error) {
		i, ok := idx[name]
		if !ok {
			return 0, eris.Errorf("tabular: column %q not found", name)
		}
		return i, nil
	}

	keyIdx, err := find(spec.KeyColumn)
	if err != nil {
		return nil, err
	}
	dimIdx := make([]int, len(spec.DimColumns))
	used := map[int]bool{keyIdx: true}
	for i, d := range spec.DimColumns {
		if dimIdx[i], err = find(d); err != nil {
			return nil, err
		}
		used[dimIdx[i]] = true
	}

	valueCols := spec.ValueColumns
	if len(valueCols) == 0 {
		for i, h := range rows[0] {
			if !used[i] && h != "" {
				valueCols = append(valueCols, h)
			}
		}
	}
	valIdx := make([]int, len(valueCols))
	for i, v := range valueCols {
		if valIdx[i], err = find(v); err != nil {
			return nil, err
		}
	}

	t := &crosswalk.Table{
		KeyColumn:    spec.KeyColumn,
		DimColumns:   append([]string(nil), spec.DimColumns...),
		ValueColumns: append([]string(nil), valueCols...),
	}
	cell := func(row []string, i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}
	for n, row := range rows[1:] {
		key := strings.TrimSpace(cell(row, keyIdx))
		if key == "" {
			continue
		}
		if spec.KeyWidth > 0 && len(key) < spec.KeyWidth {
			key = strings.Repeat("0", spec.KeyWidth-len(key)) + key
		}
		r := crosswalk.Row{Key: key, Dims: make([]string, len(dimIdx)), Values: make([]float64, len(valIdx))}
		for i, c := range dimIdx {
			r.Dims[i] = cell(row, c)
		}
		for i, c := range valIdx {
			v, ok := ParseNumber(cell(row, c))
			if !ok {
				return nil, eris.Errorf("tabular: row %d column %s: %q is not a number", n+2, valueCols[i], cell(row, c))
			}
			r.Values[i] = v
		}
		t.Rows = append(t.Rows, r)
	}
	return t, nil
}

// FormatNumber renders a value for output; NaN is empty.
func FormatNumber(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteTable writes t as CSV with a header row.
func WriteTable(w io.Writer, t *crosswalk.Table) error {
	cw := csv.NewWriter(w)
	header := append(append([]string{t.KeyColumn}, t.DimColumns...), t.ValueColumns...)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "tabular: write header")
	}
	for _, r := range t.Rows {
		rec := make([]string, 0, len(header))
		rec = append(rec, r.Key)
		rec = append(rec, r.Dims...)
		for _, v := range r.Values {
			rec = append(rec, FormatNumber(v))
		}
		if err := cw.Write(rec); err != nil {
			return eris.Wrap(err, "tabular: write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "tabular: flush")
}
