package crosswalk

import (
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crosswalk-cli/internal/spatial"
)

// Defaults for Computer.
const (
	DefaultMinOverlapArea  = 1.0  // square metres
	DefaultRelativeOverlap = 1e-9 // fraction of the source area
	DefaultMaxDistortion   = 0.02 // |projected/geodesic - 1|
)

// Computer builds weight tables and geo-ID maps by overlaying polygon sets in
// an equal-area projection. A Computer holds only configuration and is safe
// for concurrent use.
type Computer struct {
	proj          *spatial.Albers
	snap          float64
	minArea       float64
	relArea       float64
	maxDistortion float64
}

// Option configures a Computer.
type Option func(*Computer)

// WithProjection overrides the equal-area projection (EPSG:5070 by default).
func WithProjection(p *spatial.Albers) Option {
	return func(c *Computer) { c.proj = p }
}

// WithSnapTolerance sets the vertex snapping distance in projected metres.
func WithSnapTolerance(eps float64) Option {
	return func(c *Computer) { c.snap = eps }
}

// WithMinOverlapArea sets the absolute overlap area, in square metres, at or
// below which an overlap is discarded.
func WithMinOverlapArea(m2 float64) Option {
	return func(c *Computer) { c.minArea = m2 }
}

// WithRelativeOverlap sets the overlap fraction of a source unit's area at or
// below which an overlap is discarded.
func WithRelativeOverlap(f float64) Option {
	return func(c *Computer) { c.relArea = f }
}

// WithMaxDistortion sets the allowed relative difference between projected
// and geodesic unit areas before a diagnostic is raised. Zero disables the
// check.
func WithMaxDistortion(f float64) Option {
	return func(c *Computer) { c.maxDistortion = f }
}

// NewComputer returns a Computer with defaults applied.
func NewComputer(opts ...Option) *Computer {
	c := &Computer{
		proj:          spatial.ConusAlbers,
		snap:          spatial.DefaultSnapTolerance,
		minArea:       DefaultMinOverlapArea,
		relArea:       DefaultRelativeOverlap,
		maxDistortion: DefaultMaxDistortion,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type prepared struct {
	code  string
	shape *spatial.Shape
}

// prepare validates and projects a polygon set.
func (c *Computer) prepare(set PolygonSet, diags *Diagnostics) ([]prepared, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}
	out := make([]prepared, 0, len(set.Units))
	for _, u := range set.Units {
		projected, err := c.proj.ProjectMultiPolygon(u.Geom)
		if err != nil {
			return nil, eris.Wrapf(err, "crosswalk: project %s %s", set.Level, u.Code)
		}
		shape := spatial.NewShape(projected)
		if c.maxDistortion > 0 && !shape.Empty() {
			ratio := spatial.AreaDistortion(u.Geom, shape)
			if math.Abs(ratio-1) > c.maxDistortion {
				diags.Add(KindProjectionDistortion, set.Level, u.Code, "projected/geodesic area ratio %.4f", ratio)
			}
		}
		out = append(out, prepared{code: u.Code, shape: shape})
	}
	return out, nil
}

type overlap struct {
	code string
	area float64
}

// overlaps returns every candidate in cands whose intersection with s exceeds
// threshold, in candidate order.
func (c *Computer) overlaps(s *spatial.Shape, cands []prepared, threshold float64) []overlap {
	if s.Empty() {
		return nil
	}
	box := s.Bounds()
	var out []overlap
	for _, t := range cands {
		if t.shape.Empty() || !box.Intersects(t.shape.Bounds()) {
			continue
		}
		a := spatial.IntersectionArea(s, t.shape, c.snap)
		if a > threshold || math.IsNaN(a) {
			out = append(out, overlap{code: t.code, area: a})
		}
	}
	return out
}

func (c *Computer) threshold(area float64) float64 {
	return math.Max(c.minArea, c.relArea*area)
}

// AreaWeights intersects every source unit with the target ZCTAs and returns,
// per source unit, the fraction of its overlapping area falling in each ZCTA.
// Source units that overlap no target yield no rows and a MissingOverlap
// diagnostic; so do targets that overlap no source.
func (c *Computer) AreaWeights(targets, sources PolygonSet) (WeightTable, Diagnostics, error) {
	log := zap.L().With(
		zap.String("component", "crosswalk.area_weights"),
		zap.String("level", string(sources.Level)),
	)

	var diags Diagnostics
	tp, err := c.prepare(targets, &diags)
	if err != nil {
		return WeightTable{}, nil, eris.Wrap(err, "crosswalk: prepare targets")
	}
	sp, err := c.prepare(sources, &diags)
	if err != nil {
		return WeightTable{}, nil, eris.Wrap(err, "crosswalk: prepare sources")
	}

	table := WeightTable{Level: sources.Level}
	touched := make(map[string]struct{}, len(tp))
	for _, s := range sp {
		found := c.overlaps(s.shape, tp, c.threshold(s.shape.Area()))
		if len(found) == 0 {
			diags.Add(KindMissingOverlap, sources.Level, s.code, "no overlapping target ZCTA")
			continue
		}
		var total float64
		for _, o := range found {
			total += o.area
		}
		for _, o := range found {
			w := math.NaN()
			if total > 0 && !math.IsInf(total, 0) {
				w = o.area / total
			}
			table.Rows = append(table.Rows, Weight{Source: s.code, ZCTA: o.code, Weight: w})
			touched[o.code] = struct{}{}
		}
	}
	for _, t := range tp {
		if _, ok := touched[t.code]; !ok {
			diags.Add(KindMissingOverlap, LevelZCTA, t.code, "no overlapping %s unit", sources.Level)
		}
	}
	table.Sort()

	if err := Validate(table); err != nil {
		return WeightTable{}, diags, err
	}

	log.Debug("area weights computed",
		zap.Int("sources", len(sp)),
		zap.Int("targets", len(tp)),
		zap.Int("rows", len(table.Rows)),
		zap.Int("missing_overlap", diags.Count(KindMissingOverlap)),
	)
	return table, diags, nil
}
