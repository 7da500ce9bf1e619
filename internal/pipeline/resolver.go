package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
	"github.com/sells-group/crosswalk-cli/internal/store"
)

// Resolver serves geo-ID maps from a cache keyed by the target set and
// recomputes them from county polygons when a requested ZCTA is missing.
type Resolver struct {
	cache    store.GeoIDCache
	provider BoundaryProvider
	computer *crosswalk.Computer
	regions  []string
}

// NewResolver creates a resolver. regions limits the counties loaded for a
// recompute; empty loads every state.
func NewResolver(cache store.GeoIDCache, provider BoundaryProvider, computer *crosswalk.Computer, regions []string) *Resolver {
	return &Resolver{cache: cache, provider: provider, computer: computer, regions: regions}
}

// Resolve returns geo-IDs for targets. Every requested ZCTA the cached entry
// was not computed for yields a StaleCacheMiss diagnostic, and the whole
// entry is then recomputed and saved once.
func (r *Resolver) Resolve(ctx context.Context, targets []string) (crosswalk.GeoIDs, crosswalk.Diagnostics, error) {
	log := zap.L().With(zap.String("component", "resolver"))
	hash := store.SetHash(targets)

	entry, err := r.cache.LoadGeoIDs(ctx, hash)
	if err != nil {
		return crosswalk.GeoIDs{}, nil, eris.Wrap(err, "pipeline: load geo-id cache")
	}
	absent := entry.Absent(targets)
	if len(absent) == 0 {
		log.Debug("pipeline: geo-id cache hit", zap.Int("zctas", len(targets)))
		return entry.IDs, nil, nil
	}

	var diags crosswalk.Diagnostics
	for _, z := range absent {
		diags.Add(crosswalk.KindStaleCacheMiss, crosswalk.LevelZCTA, z, "not in cached geo-id map")
	}
	log.Info("pipeline: recomputing geo-ids", zap.Int("missing", len(absent)), zap.Int("zctas", len(targets)))

	zctas, err := r.provider.LoadTargetPolygons(ctx, targets)
	if err != nil {
		return crosswalk.GeoIDs{}, nil, eris.Wrap(err, "pipeline: load target polygons")
	}
	counties, err := r.provider.LoadSourcePolygons(ctx, crosswalk.LevelCounty, r.regions)
	if err != nil {
		return crosswalk.GeoIDs{}, nil, eris.Wrap(err, "pipeline: load county polygons")
	}
	ids, more, err := r.computer.GeoIDs(zctas, counties)
	if err != nil {
		return crosswalk.GeoIDs{}, nil, err
	}
	diags = append(diags, more...)

	if err := r.cache.SaveGeoIDs(ctx, hash, targets, ids); err != nil {
		return crosswalk.GeoIDs{}, nil, eris.Wrap(err, "pipeline: save geo-id cache")
	}
	return ids, diags, nil
}
