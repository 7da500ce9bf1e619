package tabular

import (
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crosswalk-cli/internal/zcta"
)

// PointSpec names the columns of a point-record file. ZIP or both Lon and
// Lat must be set.
type PointSpec struct {
	ZIP        string
	Lon        string
	Lat        string
	Date       string
	Value      string   // optional
	DateLayout []string // tried in order; defaults cover ISO dates and US m/d/y
}

var defaultLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"1/2/2006",
	"01/02/2006",
	"2006-01",
}

// PointsResult holds parsed points and the count of rows left out for an
// unparseable date or coordinate.
type PointsResult struct {
	Points  []zcta.Point
	Skipped int
}

// ParsePoints converts rows (header first) into point records. A row with a
// ZIP keeps it even when its coordinates are missing.
func ParsePoints(rows [][]string, spec PointSpec) (PointsResult, error) {
	var res PointsResult
	if len(rows) == 0 {
		return res, eris.New("tabular: no header row")
	}
	if spec.ZIP == "" && (spec.Lon == "" || spec.Lat == "") {
		return res, eris.New("tabular: points need a zip column or both coordinate columns")
	}
	if spec.Date == "" {
		return res, eris.New("tabular: points need a date column")
	}
	layouts := spec.DateLayout
	if len(layouts) == 0 {
		layouts = defaultLayouts
	}

	idx := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		idx[h] = i
	}
	col := func(name string) (int, error) {
		if name == "" {
			return -1, nil
		}
		i, ok := idx[name]
		if !ok {
			return 0, eris.Errorf("tabular: column %q not found", name)
		}
		return i, nil
	}
	var cols [5]int
	for i, name := range []string{spec.ZIP, spec.Lon, spec.Lat, spec.Date, spec.Value} {
		c, err := col(name)
		if err != nil {
			return res, err
		}
		cols[i] = c
	}
	get := func(row []string, c int) string {
		if c < 0 || c >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[c])
	}

	for _, row := range rows[1:] {
		at, ok := parseDate(get(row, cols[3]), layouts)
		if !ok {
			res.Skipped++
			continue
		}
		p := zcta.Point{ZIP: get(row, cols[0]), At: at, Value: math.NaN()}
		if p.ZIP == "" {
			lon, okLon := ParseNumber(get(row, cols[1]))
			lat, okLat := ParseNumber(get(row, cols[2]))
			if !okLon || !okLat || math.IsNaN(lon) || math.IsNaN(lat) {
				res.Skipped++
				continue
			}
			p.Lon, p.Lat = lon, lat
		}
		if cols[4] >= 0 {
			if v, ok := ParseNumber(get(row, cols[4])); ok {
				p.Value = v
			}
		}
		res.Points = append(res.Points, p)
	}
	return res, nil
}

func parseDate(s string, layouts []string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
