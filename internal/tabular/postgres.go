package tabular

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
	"github.com/sells-group/crosswalk-cli/internal/db"
)

// WeightsTable is the PostGIS table weight exports land in.
const WeightsTable = "crosswalk.weights"

var weightColumns = []string{"level", "source", "zcta5", "weight"}

// EnsureWeightsTable creates the export schema and table.
func EnsureWeightsTable(ctx context.Context, pool db.Pool) error {
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS crosswalk`,
		`CREATE TABLE IF NOT EXISTS crosswalk.weights (
			level text NOT NULL,
			source text NOT NULL,
			zcta5 char(5) NOT NULL,
			weight double precision NOT NULL CHECK (weight >= 0 AND weight <= 1),
			updated_at timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (level, source, zcta5)
		)`,
	}
	for _, s := range stmts {
		if _, err := pool.Exec(ctx, s); err != nil {
			return eris.Wrap(err, "tabular: create weights table")
		}
	}
	return nil
}

// ExportWeights validates wt and upserts it. Rows of the same level whose
// (source, zcta5) pair is absent from wt are removed first so each source's
// weights stay a distribution.
func ExportWeights(ctx context.Context, pool db.Pool, wt crosswalk.WeightTable) (int64, error) {
	if err := crosswalk.Validate(wt); err != nil {
		return 0, err
	}
	if len(wt.Rows) == 0 {
		return 0, nil
	}
	sources := wt.Sources()
	if _, err := pool.Exec(ctx,
		`DELETE FROM crosswalk.weights WHERE level = $1 AND source = ANY($2)`,
		string(wt.Level), sources,
	); err != nil {
		return 0, eris.Wrap(err, "tabular: clear exported weights")
	}

	rows := make([][]any, len(wt.Rows))
	for i, r := range wt.Rows {
		rows[i] = []any{string(wt.Level), r.Source, r.ZCTA, r.Weight}
	}
	n, err := db.BulkUpsert(ctx, pool, db.UpsertConfig{
		Table:        WeightsTable,
		Columns:      weightColumns,
		ConflictKeys: []string{"level", "source", "zcta5"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "tabular: export weights")
	}
	return n, nil
}
