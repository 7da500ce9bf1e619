package tiger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
	"github.com/sells-group/crosswalk-cli/internal/db"
)

// Schema holding loaded boundaries.
const Schema = "tiger_data"

// Columns are the COPY columns of every boundary table, in row order.
var Columns = []string{"code", "statefp", "aland", "vintage", "the_geom"}

// LevelTable returns the boundary table for a level ("county", "tract", "zcta").
// Both ZCTA products load into the same table, told apart by vintage.
func LevelTable(level crosswalk.Level) string {
	return string(level)
}

// EnsureSchema creates the boundary tables, their spatial indexes and the
// load_status bookkeeping table when missing.
func EnsureSchema(ctx context.Context, pool db.Pool) error {
	log := zap.L().With(zap.String("component", "tiger.schema"))

	stmts := []string{
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{Schema}.Sanitize()),
	}
	for _, level := range []crosswalk.Level{crosswalk.LevelZCTA, crosswalk.LevelCounty, crosswalk.LevelTract} {
		table := LevelTable(level)
		quoted := pgx.Identifier{Schema, table}.Sanitize()
		stmts = append(stmts,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				code     text    NOT NULL,
				statefp  text,
				aland    bigint,
				vintage  integer NOT NULL,
				the_geom geometry(MultiPolygon, %d) NOT NULL,
				PRIMARY KEY (code, vintage)
			)`, quoted, SRID),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIST (the_geom)",
				pgx.Identifier{"idx_" + table + "_the_geom"}.Sanitize(), quoted),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (statefp, vintage)",
				pgx.Identifier{"idx_" + table + "_statefp"}.Sanitize(), quoted),
		)
	}
	stmts = append(stmts, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		state_fips  text        NOT NULL,
		table_name  text        NOT NULL,
		year        integer     NOT NULL,
		row_count   integer     NOT NULL,
		loaded_at   timestamptz NOT NULL DEFAULT now(),
		duration_ms integer,
		PRIMARY KEY (state_fips, table_name, year)
	)`, pgx.Identifier{Schema, "load_status"}.Sanitize()))

	for _, sql := range stmts {
		if _, err := pool.Exec(ctx, sql); err != nil {
			return eris.Wrap(err, "tiger: ensure schema")
		}
	}
	log.Debug("schema ready", zap.Int("statements", len(stmts)))
	return nil
}
