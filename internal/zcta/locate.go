package zcta

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
	"github.com/sells-group/crosswalk-cli/internal/spatial"
)

// boundaryTolerance in projected metres; points this close to a boundary
// count as inside.
const boundaryTolerance = 0.5

type located struct {
	code  string
	shape *spatial.Shape
}

// Locator assigns lon/lat points to ZCTA polygons.
type Locator struct {
	proj   *spatial.Albers
	shapes []located
}

// NewLocator projects a ZCTA polygon set for point lookups.
func NewLocator(zctas crosswalk.PolygonSet) (*Locator, error) {
	if err := zctas.Validate(); err != nil {
		return nil, err
	}
	l := &Locator{proj: spatial.ConusAlbers}
	for _, u := range zctas.Units {
		mp, err := l.proj.ProjectMultiPolygon(u.Geom)
		if err != nil {
			return nil, eris.Wrapf(err, "zcta: project %s", u.Code)
		}
		l.shapes = append(l.shapes, located{code: u.Code, shape: spatial.NewShape(mp)})
	}
	sort.Slice(l.shapes, func(i, j int) bool { return l.shapes[i].code < l.shapes[j].code })
	return l, nil
}

// Locate returns the ZCTA containing the point. A point on a shared boundary
// goes to the smallest code.
func (l *Locator) Locate(lon, lat float64) (string, bool) {
	if math.IsNaN(lon) || math.IsNaN(lat) || lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return "", false
	}
	x, y := l.proj.Forward(lon, lat)
	for _, s := range l.shapes {
		if s.shape.Contains(x, y, boundaryTolerance) {
			return s.code, true
		}
	}
	return "", false
}
