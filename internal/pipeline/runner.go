package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
)

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Targets     []string // normalized target ZCTAs
	Regions     []string // states whose source units are loaded; empty = all
	Policy      FallbackPolicy
	Concurrency int
}

// Runner builds weight tables for the configured targets and runs
// allocation jobs against them.
type Runner struct {
	provider BoundaryProvider
	computer *crosswalk.Computer
	resolver *Resolver
	opts     RunnerOptions
}

// NewRunner creates a runner. resolver may be nil when geo-IDs are not
// needed.
func NewRunner(provider BoundaryProvider, computer *crosswalk.Computer, resolver *Resolver, opts RunnerOptions) *Runner {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Policy == "" {
		opts.Policy = PolicyFail
	}
	return &Runner{provider: provider, computer: computer, resolver: resolver, opts: opts}
}

// Targets returns the target ZCTAs.
func (r *Runner) Targets() []string { return r.opts.Targets }

// Weights builds the area weights from level units onto the targets and, when
// population is non-nil, refines them with it.
func (r *Runner) Weights(ctx context.Context, level crosswalk.Level, population map[string]float64) (crosswalk.WeightTable, crosswalk.Diagnostics, error) {
	log := zap.L().With(zap.String("component", "runner"), zap.String("level", string(level)))
	start := time.Now()

	targets, err := r.provider.LoadTargetPolygons(ctx, r.opts.Targets)
	if err != nil {
		return crosswalk.WeightTable{}, nil, eris.Wrap(err, "pipeline: load target polygons")
	}
	narrowed, err := TargetSources(ctx, r.provider, r.computer, targets, level, r.opts.Regions, r.opts.Policy)
	if err != nil {
		return crosswalk.WeightTable{}, nil, err
	}
	wt, diags := narrowed.Weights, narrowed.Diagnostics
	if narrowed.Fallback {
		var more crosswalk.Diagnostics
		wt, more, err = r.computer.AreaWeights(targets, narrowed.Sources)
		if err != nil {
			return crosswalk.WeightTable{}, nil, err
		}
		diags = append(diags, more...)
	}

	if population != nil {
		var more crosswalk.Diagnostics
		wt, more, err = crosswalk.RefineWithPopulation(wt, population)
		if err != nil {
			return crosswalk.WeightTable{}, nil, err
		}
		diags = append(diags, more...)
	}

	log.Info("pipeline: weights built",
		zap.Int("sources", len(narrowed.Sources.Units)),
		zap.Bool("fallback", narrowed.Fallback),
		zap.Int("rows", len(wt.Rows)),
		zap.Bool("population", population != nil),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return wt, diags, nil
}

// Job is one allocation of a source-keyed table.
type Job struct {
	Name         string
	Source       *crosswalk.Table
	Weights      crosswalk.WeightTable
	ValueColumns []string                     // nil allocates every value column
	Derive       func(*crosswalk.Table) error // runs on the allocated table, e.g. ratios
}

// Result is the outcome of one job.
type Result struct {
	Name        string
	Table       *crosswalk.Table
	Rows        []crosswalk.AttachedRow
	Diagnostics crosswalk.Diagnostics
}

// Batch is the outcome of Run.
type Batch struct {
	Results     []Result
	GeoIDs      crosswalk.GeoIDs
	Diagnostics crosswalk.Diagnostics // resolver findings first, then each job's in job order
}

// Run allocates every job in parallel, keeps target rows only and attaches
// geo-IDs. The first failing job cancels the batch and its error is
// returned, so a *crosswalk.ValidationError aborts everything.
func (r *Runner) Run(ctx context.Context, jobs []Job) (*Batch, error) {
	batch := &Batch{GeoIDs: crosswalk.NewGeoIDs(), Results: make([]Result, len(jobs))}
	if r.resolver != nil {
		ids, diags, err := r.resolver.Resolve(ctx, r.opts.Targets)
		if err != nil {
			return nil, err
		}
		batch.GeoIDs = ids
		batch.Diagnostics = append(batch.Diagnostics, diags...)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			res, err := r.runJob(job, batch.GeoIDs)
			if err != nil {
				return eris.Wrapf(err, "pipeline: job %s", job.Name)
			}
			batch.Results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, res := range batch.Results {
		batch.Diagnostics = append(batch.Diagnostics, res.Diagnostics...)
	}
	return batch, nil
}

func (r *Runner) runJob(job Job, ids crosswalk.GeoIDs) (Result, error) {
	allocated, diags, err := crosswalk.Allocate(job.Source, job.Weights, job.ValueColumns)
	if err != nil {
		return Result{}, err
	}
	kept := allocated.Filter(r.opts.Targets)
	if dropped := len(allocated.Rows) - len(kept.Rows); dropped > 0 {
		keep := make(map[string]bool, len(r.opts.Targets))
		for _, z := range r.opts.Targets {
			keep[z] = true
		}
		for _, z := range allocated.Keys() {
			if !keep[z] {
				diags.Add(crosswalk.KindNonTargetZCTA, crosswalk.LevelZCTA, z, "allocated by job %s but not a target; dropped", job.Name)
			}
		}
		zap.L().With(zap.String("component", "pipeline")).Warn("pipeline: dropped non-target zctas",
			zap.String("job", job.Name),
			zap.Int("rows", dropped),
		)
	}
	allocated = kept
	if job.Derive != nil {
		if err := job.Derive(allocated); err != nil {
			return Result{}, err
		}
	}
	return Result{
		Name:        job.Name,
		Table:       allocated,
		Rows:        crosswalk.AttachGeoIDs(allocated, ids),
		Diagnostics: diags,
	}, nil
}
