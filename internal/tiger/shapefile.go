package tiger

import (
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
)

// Record is one boundary polygon read from a TIGER/Line shapefile.
type Record struct {
	Code    string
	StateFP string // empty for national products without a state column (ZCTA)
	ALand   int64
	Geom    *geom.MultiPolygon
}

// ScanShapefile calls fn for every polygon record of a product's shapefile.
// Records without a code or a usable polygon are skipped.
func ScanShapefile(shpPath string, product Product, fn func(Record) error) error {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return eris.Wrapf(err, "tiger: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fieldIdx := make(map[string]int)
	for i, f := range reader.Fields() {
		fieldIdx[strings.ToUpper(strings.TrimRight(f.String(), "\x00"))] = i
	}
	codeIdx := firstField(fieldIdx, product.CodeFields)
	if codeIdx < 0 {
		return eris.Errorf("tiger: %s has none of the code columns %v", shpPath, product.CodeFields)
	}
	landIdx := firstField(fieldIdx, product.LandFields)
	stateIdx := firstField(fieldIdx, []string{"STATEFP", "STATEFP20", "STATEFP10"})

	attr := func(idx int) string {
		if idx < 0 {
			return ""
		}
		return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
	}

	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		code := attr(codeIdx)
		poly, ok := shape.(*shp.Polygon)
		if code == "" || !ok {
			skipped++
			continue
		}
		mp := PolygonToMultiPolygon(poly)
		if mp == nil {
			skipped++
			continue
		}
		rec := Record{Code: code, StateFP: attr(stateIdx), Geom: mp}
		if s := attr(landIdx); s != "" {
			if v, perr := strconv.ParseInt(s, 10, 64); perr == nil {
				rec.ALand = v
			}
		}
		if rec.StateFP == "" && product.Level != crosswalk.LevelZCTA && len(code) >= 2 {
			rec.StateFP = code[:2]
		}
		if err := fn(rec); err != nil {
			return err
		}
	}

	if skipped > 0 {
		zap.L().Debug("tiger: skipped shapefile records",
			zap.String("product", product.Name),
			zap.Int("skipped", skipped),
		)
	}
	return nil
}

// ReadPolygons reads a product's shapefile into a polygon set. keep filters
// records (nil keeps all). Records sharing a code are merged into one unit.
func ReadPolygons(shpPath string, product Product, keep func(Record) bool) (crosswalk.PolygonSet, error) {
	set := crosswalk.PolygonSet{Level: product.Level}
	index := make(map[string]int)
	err := ScanShapefile(shpPath, product, func(r Record) error {
		if keep != nil && !keep(r) {
			return nil
		}
		if i, dup := index[r.Code]; dup {
			set.Units[i].Geom = MergeMultiPolygons(set.Units[i].Geom, r.Geom)
			return nil
		}
		index[r.Code] = len(set.Units)
		set.Units = append(set.Units, crosswalk.Unit{Code: r.Code, Geom: r.Geom})
		return nil
	})
	if err != nil {
		return crosswalk.PolygonSet{}, err
	}
	return set, nil
}

// ParseShapefile reads a shapefile into rows matching Columns for COPY
// loading, with the geometry as EWKB.
func ParseShapefile(shpPath string, product Product, year int) ([][]any, error) {
	var rows [][]any
	err := ScanShapefile(shpPath, product, func(r Record) error {
		wkb, err := EncodeWKB(r.Geom)
		if err != nil {
			return err
		}
		var statefp any
		if r.StateFP != "" {
			statefp = r.StateFP
		}
		rows = append(rows, []any{r.Code, statefp, r.ALand, year, wkb})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func firstField(idx map[string]int, names []string) int {
	for _, n := range names {
		if i, ok := idx[strings.ToUpper(n)]; ok {
			return i
		}
	}
	return -1
}
