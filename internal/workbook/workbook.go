// Package workbook writes allocated tables, their diagnostics and a data
// dictionary into a single Excel workbook.
package workbook

import (
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
)

// Reserved sheet names.
const (
	DiagnosticsSheet = "diagnostics"
	DictionarySheet  = "data_dictionary"
)

const maxSheetName = 31

// Sheet is one table to write.
type Sheet struct {
	Name         string
	Table        *crosswalk.Table
	GeoIDs       *crosswalk.GeoIDs // adds state and county columns when set
	Source       string
	Method       string
	Limitations  string
	Descriptions map[string]string // column -> description
}

// Book is the content of a workbook.
type Book struct {
	RunID       string
	Sheets      []Sheet
	Diagnostics crosswalk.Diagnostics
}

// SheetName makes name valid for Excel: forbidden characters become '_'
// and the result is cut to 31 characters.
func SheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if name == "" {
		name = "sheet"
	}
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	return name
}

// Write saves b to path, replacing any existing file.
func Write(path string, b Book) error {
	f := xlsx.NewFile()
	used := map[string]bool{DiagnosticsSheet: true, DictionarySheet: true}

	var dict [][]string
	for _, s := range b.Sheets {
		if s.Table == nil {
			return eris.Errorf("workbook: sheet %q has no table", s.Name)
		}
		name := SheetName(s.Name)
		if used[name] {
			return eris.Errorf("workbook: duplicate sheet name %q", name)
		}
		used[name] = true

		if err := writeTable(f, name, s); err != nil {
			return err
		}
		for _, col := range s.Table.ValueColumns {
			dict = append(dict, []string{name, col, s.Descriptions[col], s.Source, s.Method, s.Limitations})
		}
	}

	if err := writeDiagnostics(f, b.RunID, b.Diagnostics); err != nil {
		return err
	}
	header := []string{"sheet", "column", "description", "source", "method", "limitations"}
	if err := writeStrings(f, DictionarySheet, header, dict); err != nil {
		return err
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "workbook: save %s", path)
	}
	return nil
}

func writeTable(f *xlsx.File, name string, s Sheet) error {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrapf(err, "workbook: add sheet %s", name)
	}
	t := s.Table

	header := []string{t.KeyColumn}
	if s.GeoIDs != nil {
		header = append(header, "state_fips", "county_fips")
	}
	header = append(header, t.DimColumns...)
	header = append(header, t.ValueColumns...)
	addStringRow(sheet, header)

	for _, r := range t.Rows {
		row := sheet.AddRow()
		row.AddCell().SetString(r.Key)
		if s.GeoIDs != nil {
			state, county := s.GeoIDs.Lookup(r.Key)
			row.AddCell().SetString(state)
			row.AddCell().SetString(county)
		}
		for _, d := range r.Dims {
			row.AddCell().SetString(d)
		}
		for _, v := range r.Values {
			c := row.AddCell()
			if !math.IsNaN(v) {
				c.SetFloat(v)
			}
		}
	}
	fitColumns(sheet, header)
	return nil
}

func writeDiagnostics(f *xlsx.File, runID string, diags crosswalk.Diagnostics) error {
	sorted := append(crosswalk.Diagnostics(nil), diags...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Kind != sorted[j].Kind {
			return sorted[i].Kind < sorted[j].Kind
		}
		return sorted[i].Code < sorted[j].Code
	})
	rows := make([][]string, len(sorted))
	for i, d := range sorted {
		rows[i] = []string{runID, string(d.Kind), string(d.Level), d.Code, d.Detail}
	}
	return writeStrings(f, DiagnosticsSheet, []string{"run_id", "kind", "level", "code", "detail"}, rows)
}

func writeStrings(f *xlsx.File, name string, header []string, rows [][]string) error {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrapf(err, "workbook: add sheet %s", name)
	}
	addStringRow(sheet, header)
	for _, r := range rows {
		addStringRow(sheet, r)
	}
	fitColumns(sheet, header)
	return nil
}

func addStringRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, v := range cells {
		row.AddCell().SetString(v)
	}
}

// fitColumns sizes columns to their content, sampling the first 50 rows,
// between 10 and 45 characters.
func fitColumns(sheet *xlsx.Sheet, header []string) {
	for col := range header {
		width := 0
		for i, row := range sheet.Rows {
			if i >= 50 {
				break
			}
			if col < len(row.Cells) {
				width = max(width, len(row.Cells[col].Value))
			}
		}
		// ColStore columns are 1-based.
		sheet.SetColWidth(col+1, col+1, float64(min(max(10, width+2), 45)))
	}
}
