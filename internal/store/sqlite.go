package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS geoid_cache (
	set_hash  TEXT NOT NULL,
	kind      TEXT NOT NULL,
	zcta5     TEXT NOT NULL,
	unit_code TEXT NOT NULL DEFAULT '',
	cached_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (set_hash, kind, zcta5)
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	command    TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	report     TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

// Migrate creates the tables when missing.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LoadGeoIDs returns the cached geo-IDs for a target-set hash.
func (s *SQLiteStore) LoadGeoIDs(ctx context.Context, setHash string) (CachedGeoIDs, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, zcta5, unit_code FROM geoid_cache WHERE set_hash = ?`, setHash)
	if err != nil {
		return CachedGeoIDs{}, eris.Wrap(err, "sqlite: load geoids")
	}
	defer rows.Close() //nolint:errcheck

	entry := newCachedGeoIDs()
	for rows.Next() {
		var kind, zcta, unit string
		if err := rows.Scan(&kind, &zcta, &unit); err != nil {
			return CachedGeoIDs{}, eris.Wrap(err, "sqlite: scan geoid")
		}
		addGeoIDRow(&entry, kind, zcta, unit)
	}
	return entry, eris.Wrap(rows.Err(), "sqlite: load geoids iterate")
}

// SaveGeoIDs replaces the entry for setHash in one transaction.
func (s *SQLiteStore) SaveGeoIDs(ctx context.Context, setHash string, zctas []string, ids crosswalk.GeoIDs) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM geoid_cache WHERE set_hash = ?`, setHash); err != nil {
		return eris.Wrap(err, "sqlite: clear geoids")
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO geoid_cache (set_hash, kind, zcta5, unit_code) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare geoid insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, r := range geoIDRows(zctas, ids) {
		if _, err := stmt.ExecContext(ctx, setHash, r[0], r[1], r[2]); err != nil {
			return eris.Wrapf(err, "sqlite: insert geoid %s", r[1])
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit geoids")
}

// CreateRun records a new running pipeline run.
func (s *SQLiteStore) CreateRun(ctx context.Context, command string) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, command, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, command, string(RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &Run{ID: id, Command: command, Status: RunStatusRunning, CreatedAt: now, UpdatedAt: now}, nil
}

// CompleteRun stores the final status and report of a run.
func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, status RunStatus, report []byte) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, report = ?, updated_at = ? WHERE id = ?`,
		string(status), string(report), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

// GetRun returns one run.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, command, status, report, created_at, updated_at FROM runs WHERE id = ?`, runID)
	return scanRun(row)
}

// ListRuns returns the most recent runs first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, command, status, report, created_at, updated_at FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*Run, error) {
	var r Run
	var report sql.NullString
	err := row.Scan(&r.ID, &r.Command, &r.Status, &report, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if report.Valid && report.String != "" {
		r.Report = []byte(report.String)
	}
	return &r, nil
}
