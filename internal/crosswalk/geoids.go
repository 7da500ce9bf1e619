package crosswalk

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// GeoIDs maps ZCTA codes to their predominant state and county FIPS codes.
type GeoIDs struct {
	State  map[string]string
	County map[string]string
}

// NewGeoIDs returns empty maps ready for filling.
func NewGeoIDs() GeoIDs {
	return GeoIDs{State: make(map[string]string), County: make(map[string]string)}
}

// Lookup returns the state and county of a ZCTA; absent values are empty.
func (g GeoIDs) Lookup(zcta string) (state, county string) {
	return g.State[zcta], g.County[zcta]
}

// Missing returns the codes in zctas that have no state or no county entry.
func (g GeoIDs) Missing(zctas []string) []string {
	var out []string
	for _, z := range zctas {
		_, okS := g.State[z]
		_, okC := g.County[z]
		if !okS || !okC {
			out = append(out, z)
		}
	}
	return out
}

// AttachedRow is an allocated row annotated with geo-IDs.
type AttachedRow struct {
	Row
	State  string
	County string
}

// AttachGeoIDs annotates every row of a ZCTA-keyed table with its state and
// county. ZCTAs absent from the maps get empty values.
func AttachGeoIDs(t *Table, ids GeoIDs) []AttachedRow {
	if t == nil {
		return nil
	}
	out := make([]AttachedRow, len(t.Rows))
	for i, r := range t.Rows {
		state, county := ids.Lookup(r.Key)
		out[i] = AttachedRow{Row: r, State: state, County: county}
	}
	return out
}

// GeoIDs assigns every ZCTA the county with which it shares the largest area
// and the state with the largest summed county overlap. Exact ties go to the
// lexicographically smallest code. ZCTAs overlapping no county are absent from
// the result and reported as MissingOverlap diagnostics.
func (c *Computer) GeoIDs(zctas, counties PolygonSet) (GeoIDs, Diagnostics, error) {
	log := zap.L().With(zap.String("component", "crosswalk.geoids"))

	var diags Diagnostics
	zp, err := c.prepare(zctas, &diags)
	if err != nil {
		return GeoIDs{}, nil, eris.Wrap(err, "crosswalk: prepare zctas")
	}
	cp, err := c.prepare(counties, &diags)
	if err != nil {
		return GeoIDs{}, nil, eris.Wrap(err, "crosswalk: prepare counties")
	}
	for _, u := range cp {
		if len(u.code) != LevelCounty.CodeWidth() {
			return GeoIDs{}, nil, eris.Errorf("crosswalk: county code %q is not 5-digit FIPS", u.code)
		}
	}

	ids := NewGeoIDs()
	for _, z := range zp {
		found := c.overlaps(z.shape, cp, c.threshold(z.shape.Area()))
		if len(found) == 0 {
			diags.Add(KindMissingOverlap, LevelZCTA, z.code, "no overlapping county")
			continue
		}
		var byState []overlap
		stateIdx := make(map[string]int)
		for _, o := range found {
			st := o.code[:2]
			if i, ok := stateIdx[st]; ok {
				byState[i].area += o.area
			} else {
				stateIdx[st] = len(byState)
				byState = append(byState, overlap{code: st, area: o.area})
			}
		}
		ids.County[z.code] = dominant(found)
		ids.State[z.code] = dominant(byState)
	}

	log.Debug("geo-ids computed",
		zap.Int("zctas", len(zp)),
		zap.Int("assigned", len(ids.County)),
	)
	return ids, diags, nil
}

// dominant returns the code with the largest area, preferring the smallest
// code on exact ties.
func dominant(cands []overlap) string {
	best := cands[0]
	for _, o := range cands[1:] {
		if o.area > best.area || (o.area == best.area && o.code < best.code) {
			best = o
		}
	}
	return best.code
}
