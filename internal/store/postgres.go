package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
	"github.com/sells-group/crosswalk-cli/internal/db"
)

// PostgresStore implements Store on a pgx pool, for deployments that keep
// boundaries in PostGIS and want the cache next to them.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres opens a pool and returns a store owning it.
func NewPostgres(ctx context.Context, connString string, cfg *db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Open(ctx, connString, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool; Close leaves it open.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS geoid_cache (
	set_hash  text        NOT NULL,
	kind      text        NOT NULL,
	zcta5     text        NOT NULL,
	unit_code text        NOT NULL DEFAULT '',
	cached_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (set_hash, kind, zcta5)
);

CREATE TABLE IF NOT EXISTS runs (
	id         uuid        PRIMARY KEY,
	command    text        NOT NULL,
	status     text        NOT NULL DEFAULT 'running',
	report     jsonb,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

// Migrate creates the tables when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool when the store owns it.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// LoadGeoIDs returns the cached geo-IDs for a target-set hash.
func (s *PostgresStore) LoadGeoIDs(ctx context.Context, setHash string) (CachedGeoIDs, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT kind, zcta5, unit_code FROM geoid_cache WHERE set_hash = $1`, setHash)
	if err != nil {
		return CachedGeoIDs{}, eris.Wrap(err, "postgres: load geoids")
	}
	defer rows.Close()

	entry := newCachedGeoIDs()
	for rows.Next() {
		var kind, zcta, unit string
		if err := rows.Scan(&kind, &zcta, &unit); err != nil {
			return CachedGeoIDs{}, eris.Wrap(err, "postgres: scan geoid")
		}
		addGeoIDRow(&entry, kind, zcta, unit)
	}
	return entry, eris.Wrap(rows.Err(), "postgres: load geoids iterate")
}

// SaveGeoIDs replaces the entry for setHash in one transaction using COPY.
func (s *PostgresStore) SaveGeoIDs(ctx context.Context, setHash string, zctas []string, ids crosswalk.GeoIDs) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM geoid_cache WHERE set_hash = $1`, setHash); err != nil {
		return eris.Wrap(err, "postgres: clear geoids")
	}

	flat := geoIDRows(zctas, ids)
	rows := make([][]any, len(flat))
	for i, r := range flat {
		rows[i] = []any{setHash, r[0], r[1], r[2]}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"geoid_cache"},
		[]string{"set_hash", "kind", "zcta5", "unit_code"}, pgx.CopyFromRows(rows)); err != nil {
		return eris.Wrap(err, "postgres: copy geoids")
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit geoids")
}

// CreateRun records a new running pipeline run.
func (s *PostgresStore) CreateRun(ctx context.Context, command string) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, command, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, command, string(RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &Run{ID: id, Command: command, Status: RunStatusRunning, CreatedAt: now, UpdatedAt: now}, nil
}

// CompleteRun stores the final status and report of a run.
func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, status RunStatus, report []byte) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, report = $2, updated_at = $3 WHERE id = $4`,
		string(status), report, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

// GetRun returns one run.
func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, command, status, report, created_at, updated_at FROM runs WHERE id = $1`, runID)
	r, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: get run %s: not found", runID)
	}
	return r, err
}

// ListRuns returns the most recent runs first.
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, command, status, report, created_at, updated_at FROM runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanPgRun(row pgx.Row) (*Run, error) {
	var r Run
	var status string
	if err := row.Scan(&r.ID, &r.Command, &status, &r.Report, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan run")
	}
	r.Status = RunStatus(status)
	return &r, nil
}
