package tiger

import (
	"context"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
	"github.com/sells-group/crosswalk-cli/internal/db"
	"github.com/sells-group/crosswalk-cli/internal/fetcher"
)

// LoadOptions configures a boundary load into PostGIS.
type LoadOptions struct {
	Year        int               // TIGER/Line data year (default 2024)
	States      []string          // states for per-state products; empty = all 50 + DC
	Levels      []crosswalk.Level // levels to load; empty = zcta, county, tract
	TempDir     string            // download directory
	BaseURL     string            // TIGER download root; empty = Census
	Concurrency int               // parallel state downloads (default 3)
	BatchSize   int               // COPY batch size (default 50,000)
	Incremental bool              // skip already-loaded combos
	DryRun      bool              // download and parse without loading
}

// StatusRow represents a row from tiger_data.load_status.
type StatusRow struct {
	StateFIPS  string
	TableName  string
	Year       int
	RowCount   int
	LoadedAt   time.Time
	DurationMs int
}

// Load downloads TIGER/Line boundaries and loads them into PostGIS.
func Load(ctx context.Context, pool db.Pool, f fetcher.Fetcher, opts LoadOptions) error {
	if opts.Year == 0 {
		opts.Year = 2024
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 3
	}
	if opts.TempDir == "" {
		opts.TempDir = filepath.Join("/tmp", "tiger")
	}
	levels := opts.Levels
	if len(levels) == 0 {
		levels = []crosswalk.Level{crosswalk.LevelZCTA, crosswalk.LevelCounty, crosswalk.LevelTract}
	}

	log := zap.L().With(
		zap.String("component", "tiger.loader"),
		zap.Int("year", opts.Year),
	)

	states, err := StatesFIPS(opts.States)
	if err != nil {
		return err
	}

	var national, perState []Product
	for _, level := range levels {
		p, err := ProductFor(level, opts.Year)
		if err != nil {
			return err
		}
		if p.National {
			national = append(national, p)
		} else {
			perState = append(perState, p)
		}
	}

	if !opts.DryRun {
		if err := EnsureSchema(ctx, pool); err != nil {
			return err
		}
	}

	for _, p := range national {
		if err := loadProduct(ctx, pool, f, p, "us", opts); err != nil {
			return eris.Wrapf(err, "tiger: load national product %s", p.Name)
		}
	}
	log.Info("national products loaded", zap.Int("count", len(national)))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for _, fips := range states {
		for _, p := range perState {
			g.Go(func() error {
				return loadProduct(gCtx, pool, f, p, fips, opts)
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("TIGER boundary load complete",
		zap.Int("states", len(states)),
		zap.Int("per_state_products", len(perState)),
	)
	return nil
}

// loadProduct downloads, parses and loads one product for one state ("us" for
// national products).
func loadProduct(ctx context.Context, pool db.Pool, f fetcher.Fetcher, product Product, stateFIPS string, opts LoadOptions) error {
	log := zap.L().With(
		zap.String("component", "tiger.loader"),
		zap.String("product", product.Name),
		zap.String("state", stateFIPS),
	)

	if opts.Incremental && !opts.DryRun {
		loaded, err := isLoaded(ctx, pool, stateFIPS, product.Table, opts.Year)
		if err != nil {
			return err
		}
		if loaded {
			log.Debug("already loaded, skipping")
			return nil
		}
	}

	start := time.Now()

	url := DownloadURL(opts.BaseURL, product, opts.Year, stateFIPS)
	destDir := filepath.Join(opts.TempDir, strconv.Itoa(opts.Year), stateFIPS, product.Table)
	shpPath, err := Download(ctx, f, url, destDir)
	if err != nil {
		return eris.Wrapf(err, "tiger: download %s for %s", product.Name, stateFIPS)
	}

	rows, err := ParseShapefile(shpPath, product, opts.Year)
	if err != nil {
		return eris.Wrapf(err, "tiger: parse %s for %s", product.Name, stateFIPS)
	}
	log.Info("shapefile parsed", zap.Int("rows", len(rows)))

	if opts.DryRun {
		log.Info("dry run, skipping load", zap.Int("rows", len(rows)))
		return nil
	}

	if err := ClearLoaded(ctx, pool, product, opts.Year, stateFIPS); err != nil {
		return err
	}
	loaded, err := BulkLoad(ctx, pool, product, rows, opts.BatchSize)
	if err != nil {
		return err
	}

	duration := time.Since(start)
	if err := recordLoad(ctx, pool, stateFIPS, product.Table, opts.Year, int(loaded), int(duration.Milliseconds())); err != nil {
		log.Warn("failed to record load status", zap.Error(err))
	}

	log.Info("product loaded",
		zap.Int64("rows", loaded),
		zap.Duration("duration", duration),
	)
	return nil
}

// isLoaded checks if a product has already been loaded for a given state/year.
func isLoaded(ctx context.Context, pool db.Pool, stateFIPS, tableName string, year int) (bool, error) {
	var count int
	row := pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM tiger_data.load_status WHERE state_fips = $1 AND table_name = $2 AND year = $3",
		stateFIPS, tableName, year,
	)
	if err := row.Scan(&count); err != nil {
		return false, eris.Wrap(err, "tiger: check load status")
	}
	return count > 0, nil
}

// recordLoad inserts or updates the load_status record for a completed load.
func recordLoad(ctx context.Context, pool db.Pool, stateFIPS, tableName string, year, rowCount, durationMs int) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO tiger_data.load_status (state_fips, table_name, year, row_count, duration_ms)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (state_fips, table_name, year) DO UPDATE SET
			row_count = EXCLUDED.row_count,
			loaded_at = now(),
			duration_ms = EXCLUDED.duration_ms`,
		stateFIPS, tableName, year, rowCount, durationMs,
	)
	if err != nil {
		return eris.Wrap(err, "tiger: record load status")
	}
	return nil
}

// LoadStatus returns current load status from tiger_data.load_status.
func LoadStatus(ctx context.Context, pool db.Pool) ([]StatusRow, error) {
	rows, err := pool.Query(ctx, `
		SELECT state_fips, table_name, year, row_count, loaded_at, COALESCE(duration_ms, 0)
		FROM tiger_data.load_status
		ORDER BY state_fips, table_name`)
	if err != nil {
		return nil, eris.Wrap(err, "tiger: query load status")
	}
	defer rows.Close()

	var status []StatusRow
	for rows.Next() {
		var sr StatusRow
		if err := rows.Scan(&sr.StateFIPS, &sr.TableName, &sr.Year, &sr.RowCount, &sr.LoadedAt, &sr.DurationMs); err != nil {
			return nil, eris.Wrap(err, "tiger: scan load status row")
		}
		status = append(status, sr)
	}
	return status, rows.Err()
}
