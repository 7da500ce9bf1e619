package main

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
	"github.com/sells-group/crosswalk-cli/internal/db"
	"github.com/sells-group/crosswalk-cli/internal/fetcher"
	"github.com/sells-group/crosswalk-cli/internal/pipeline"
	"github.com/sells-group/crosswalk-cli/internal/store"
	"github.com/sells-group/crosswalk-cli/internal/tiger"
	"github.com/sells-group/crosswalk-cli/internal/zcta"
	"github.com/sells-group/crosswalk-cli/pkg/census"
)

func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Cache.Driver {
	case "sqlite":
		st, err = store.NewSQLite(cfg.Cache.Path)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Cache.DatabaseURL, cfg.Cache.Pool)
	default:
		return nil, eris.Errorf("unsupported cache driver: %s", cfg.Cache.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

func newFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{HostLimits: fetcher.DefaultHostLimits()})
}

// initProvider returns the configured boundary source and a func releasing it.
func initProvider(ctx context.Context) (pipeline.BoundaryProvider, func(), error) {
	switch cfg.Boundary.Source {
	case "postgis":
		pool, err := db.Open(ctx, cfg.Boundary.DatabaseURL, cfg.Boundary.Pool)
		if err != nil {
			return nil, nil, err
		}
		return tiger.NewPostGISProvider(pool, cfg.Tiger.Year), pool.Close, nil
	case "file", "":
		p := tiger.NewFileProvider(newFetcher(), cfg.Tiger.Year, cfg.Tiger.CacheDir)
		if cfg.Tiger.BaseURL != "" {
			p = p.WithBaseURL(cfg.Tiger.BaseURL)
		}
		return p, func() {}, nil
	}
	return nil, nil, eris.Errorf("unsupported boundary source: %s", cfg.Boundary.Source)
}

func newComputer() *crosswalk.Computer {
	return crosswalk.NewComputer(
		crosswalk.WithMinOverlapArea(cfg.Crosswalk.MinOverlapArea),
		crosswalk.WithRelativeOverlap(cfg.Crosswalk.RelativeOverlap),
		crosswalk.WithSnapTolerance(cfg.Crosswalk.SnapTolerance),
		crosswalk.WithMaxDistortion(cfg.Crosswalk.MaxDistortion),
	)
}

func newCensus() census.Client {
	return census.NewClient(
		census.WithAPIKey(cfg.Census.APIKey),
		census.WithBaseURL(cfg.Census.BaseURL),
		census.WithRateLimit(cfg.Census.RatePerSec),
	)
}

// env bundles everything a crosswalk command needs.
type env struct {
	store    store.Store
	provider pipeline.BoundaryProvider
	computer *crosswalk.Computer
	resolver *pipeline.Resolver
	runner   *pipeline.Runner
	targets  []string
	closers  []func()
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// setup validates the config for mode and opens the store and boundary
// source.
func setup(ctx context.Context, mode string) (*env, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	policy, err := pipeline.ParsePolicy(cfg.Crosswalk.FallbackPolicy)
	if err != nil {
		return nil, err
	}
	states := make([]string, len(cfg.Geography.States))
	for i, s := range cfg.Geography.States {
		states[i] = strings.ToUpper(s)
	}
	regions, err := tiger.StatesFIPS(states)
	if err != nil {
		return nil, err
	}
	targets := zcta.NormalizeTargets(cfg.Geography.TargetZIPs, cfg.Geography.ZIPToZCTAOverrides)
	for _, z := range targets {
		if !zcta.IsZCTA(z) {
			return nil, eris.Errorf("target %q is not a 5-digit ZIP", z)
		}
	}

	e := &env{targets: targets}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	e.store = st
	e.closers = append(e.closers, func() { _ = st.Close() })

	provider, release, err := initProvider(ctx)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.provider = provider
	e.closers = append(e.closers, release)

	e.computer = newComputer()
	e.resolver = pipeline.NewResolver(st, provider, e.computer, regions)
	e.runner = pipeline.NewRunner(provider, e.computer, e.resolver, pipeline.RunnerOptions{
		Targets:     targets,
		Regions:     regions,
		Policy:      policy,
		Concurrency: cfg.Pipeline.Concurrency,
	})
	zap.L().Debug("crosswalk environment ready",
		zap.Int("targets", len(targets)),
		zap.Strings("regions", regions),
		zap.String("boundary", cfg.Boundary.Source),
	)
	return e, nil
}

// track records a run in the store around fn. The report fn fills is saved
// whether or not it fails.
func track(ctx context.Context, st store.Store, command string, targets int, fn func(*pipeline.Report) error) error {
	run, err := st.CreateRun(ctx, command)
	if err != nil {
		return err
	}
	report := pipeline.NewReport(run.ID, command, targets)
	runErr := fn(report)

	status := store.RunStatusComplete
	if runErr != nil {
		status = store.RunStatusFailed
	}
	body, err := report.Finish()
	if err != nil {
		return err
	}
	// The run outcome must be recorded even when ctx was cancelled.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := st.CompleteRun(saveCtx, run.ID, status, body); err != nil {
		zap.L().Error("failed to record run", zap.String("run_id", run.ID), zap.Error(err))
	}
	return runErr
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
