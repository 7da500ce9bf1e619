// Package tiger downloads Census TIGER/Line boundary shapefiles, turns them
// into crosswalk polygon sets, and bulk-loads them into PostGIS.
package tiger

import (
	"fmt"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
)

// Product describes a TIGER/Line boundary product.
type Product struct {
	Name       string          // directory name on the Census server, e.g. "COUNTY"
	Table      string          // file stem, e.g. "county"
	National   bool            // true = single national file, false = per-state
	Level      crosswalk.Level // unit level of the polygons
	CodeFields []string        // attribute columns holding the unit code; first present wins
	LandFields []string        // land area columns in square metres
}

// Boundary products.
var (
	ZCTA520 = Product{
		Name: "ZCTA520", Table: "zcta520", National: true, Level: crosswalk.LevelZCTA,
		CodeFields: []string{"ZCTA5CE20", "GEOID20"},
		LandFields: []string{"ALAND20"},
	}
	ZCTA510 = Product{
		Name: "ZCTA5", Table: "zcta510", National: true, Level: crosswalk.LevelZCTA,
		CodeFields: []string{"ZCTA5CE10", "GEOID10"},
		LandFields: []string{"ALAND10"},
	}
	County = Product{
		Name: "COUNTY", Table: "county", National: true, Level: crosswalk.LevelCounty,
		CodeFields: []string{"GEOID"},
		LandFields: []string{"ALAND"},
	}
	Tract = Product{
		Name: "TRACT", Table: "tract", National: false, Level: crosswalk.LevelTract,
		CodeFields: []string{"GEOID"},
		LandFields: []string{"ALAND"},
	}
)

// Products lists every supported product.
var Products = []Product{ZCTA520, ZCTA510, County, Tract}

// ProductByName looks up a product by its name (case-sensitive).
func ProductByName(name string) (Product, bool) {
	for _, p := range Products {
		if p.Name == name {
			return p, true
		}
	}
	return Product{}, false
}

// ProductFor returns the product holding polygons of a level for a TIGER
// year. ZCTAs switched from 2010 to 2020 tabulation areas in TIGER2020.
func ProductFor(level crosswalk.Level, year int) (Product, error) {
	switch level {
	case crosswalk.LevelZCTA:
		if year >= 2020 {
			return ZCTA520, nil
		}
		return ZCTA510, nil
	case crosswalk.LevelCounty:
		return County, nil
	case crosswalk.LevelTract:
		return Tract, nil
	}
	return Product{}, eris.Errorf("tiger: no boundary product for level %q", level)
}

// FIPSCodes maps state abbreviation to 2-digit FIPS code for all 50 states + DC.
var FIPSCodes = map[string]string{
	"AL": "01", "AK": "02", "AZ": "04", "AR": "05", "CA": "06",
	"CO": "08", "CT": "09", "DE": "10", "DC": "11", "FL": "12",
	"GA": "13", "HI": "15", "ID": "16", "IL": "17", "IN": "18",
	"IA": "19", "KS": "20", "KY": "21", "LA": "22", "ME": "23",
	"MD": "24", "MA": "25", "MI": "26", "MN": "27", "MS": "28",
	"MO": "29", "MT": "30", "NE": "31", "NV": "32", "NH": "33",
	"NJ": "34", "NM": "35", "NY": "36", "NC": "37", "ND": "38",
	"OH": "39", "OK": "40", "OR": "41", "PA": "42", "RI": "44",
	"SC": "45", "SD": "46", "TN": "47", "TX": "48", "UT": "49",
	"VT": "50", "VA": "51", "WA": "53", "WV": "54", "WI": "55",
	"WY": "56",
}

var abbrByFIPS map[string]string

func init() {
	abbrByFIPS = make(map[string]string, len(FIPSCodes))
	for abbr, fips := range FIPSCodes {
		abbrByFIPS[fips] = abbr
	}
}

// AbbrFromFIPS returns the state abbreviation for a FIPS code.
func AbbrFromFIPS(fips string) (string, bool) {
	abbr, ok := abbrByFIPS[fips]
	return abbr, ok
}

// StateFIPS resolves a state given as abbreviation or FIPS code.
func StateFIPS(state string) (string, error) {
	if fips, ok := FIPSCodes[state]; ok {
		return fips, nil
	}
	if _, ok := abbrByFIPS[state]; ok {
		return state, nil
	}
	return "", eris.Errorf("tiger: unknown state %q", state)
}

// StatesFIPS resolves a list of states; an empty list means every state.
func StatesFIPS(states []string) ([]string, error) {
	if len(states) == 0 {
		return AllStateFIPS(), nil
	}
	seen := make(map[string]struct{}, len(states))
	out := make([]string, 0, len(states))
	for _, s := range states {
		fips, err := StateFIPS(s)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[fips]; dup {
			continue
		}
		seen[fips] = struct{}{}
		out = append(out, fips)
	}
	sort.Strings(out)
	return out, nil
}

// AllStateFIPS returns a sorted list of all state FIPS codes.
func AllStateFIPS() []string {
	codes := make([]string, 0, len(FIPSCodes))
	for _, fips := range FIPSCodes {
		codes = append(codes, fips)
	}
	sort.Strings(codes)
	return codes
}

// DownloadURL builds the Census Bureau download URL for a TIGER/Line shapefile
// under baseURL (DefaultBaseURL when empty). National products use
// tl_{year}_us_{table}.zip; per-state use tl_{year}_{fips}_{table}.zip.
func DownloadURL(baseURL string, product Product, year int, stateFIPS string) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	scope := "us"
	if !product.National {
		scope = stateFIPS
	}
	return fmt.Sprintf("%s/TIGER%d/%s/tl_%d_%s_%s.zip", baseURL, year, product.Name, year, scope, product.Table)
}

// DefaultBaseURL is the Census TIGER/Line download root.
const DefaultBaseURL = "https://www2.census.gov/geo/tiger"
