// Package pipeline wires boundary providers, the crosswalk engine, the
// geo-ID cache and Census data into weight building and allocation runs.
package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
)

// BoundaryProvider loads NAD83 lon/lat polygons.
type BoundaryProvider interface {
	LoadTargetPolygons(ctx context.Context, unitCodes []string) (crosswalk.PolygonSet, error)
	LoadSourcePolygons(ctx context.Context, level crosswalk.Level, regionCodes []string) (crosswalk.PolygonSet, error)
}

// FallbackPolicy decides what TargetSources does when narrowing fails.
type FallbackPolicy string

// Fallback policies.
const (
	PolicyFail FallbackPolicy = "fail"
	PolicyAll  FallbackPolicy = "all"
)

// ParsePolicy converts a configured policy name; empty means PolicyFail.
func ParsePolicy(s string) (FallbackPolicy, error) {
	switch p := FallbackPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyFail, nil
	case PolicyFail, PolicyAll:
		return p, nil
	}
	return "", eris.Errorf("pipeline: unknown fallback policy %q", s)
}

// Narrowing is the outcome of TargetSources.
type Narrowing struct {
	Sources crosswalk.PolygonSet
	// Weights are the area weights computed while narrowing. They are empty
	// after a fallback, when Sources holds every loaded unit.
	Weights     crosswalk.WeightTable
	Fallback    bool
	Diagnostics crosswalk.Diagnostics
}

// TargetSources loads the source units of level within regions and keeps
// only those overlapping targets, together with their area weights. When no
// unit overlaps or the overlay fails, PolicyAll returns every loaded unit
// with a FallbackAllSources diagnostic and PolicyFail returns the error.
func TargetSources(
	ctx context.Context,
	provider BoundaryProvider,
	computer *crosswalk.Computer,
	targets crosswalk.PolygonSet,
	level crosswalk.Level,
	regions []string,
	policy FallbackPolicy,
) (Narrowing, error) {
	sources, err := provider.LoadSourcePolygons(ctx, level, regions)
	if err != nil {
		return Narrowing{}, eris.Wrapf(err, "pipeline: load %s polygons", level)
	}

	wt, diags, err := computer.AreaWeights(targets, sources)
	if err == nil && len(wt.Rows) == 0 {
		err = eris.Errorf("pipeline: no %s overlaps the %d target ZCTAs", level, len(targets.Units))
	}
	if err != nil {
		if policy != PolicyAll {
			return Narrowing{}, eris.Wrapf(err, "pipeline: narrow %s sources", level)
		}
		zap.L().With(zap.String("component", "pipeline")).Warn("pipeline: falling back to all source units",
			zap.String("level", string(level)),
			zap.Int("sources", len(sources.Units)),
			zap.Error(err),
		)
		n := Narrowing{Sources: sources, Fallback: true}
		n.Diagnostics.Add(crosswalk.KindFallbackAllSources, level, "*", "%v", err)
		return n, nil
	}

	keep := make(map[string]struct{}, len(wt.Rows))
	for _, c := range wt.Sources() {
		keep[c] = struct{}{}
	}
	n := Narrowing{Sources: crosswalk.PolygonSet{Level: sources.Level}, Weights: wt}
	for _, u := range sources.Units {
		if _, ok := keep[u.Code]; ok {
			n.Sources.Units = append(n.Sources.Units, u)
		}
	}
	// Findings about dropped source units are not reported.
	for _, d := range diags {
		if _, ok := keep[d.Code]; d.Level != level || ok {
			n.Diagnostics = append(n.Diagnostics, d)
		}
	}
	return n, nil
}
