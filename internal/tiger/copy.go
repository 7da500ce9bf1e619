package tiger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crosswalk-cli/internal/db"
)

const defaultBatchSize = 50000

// BulkLoad loads parsed rows into the product's boundary table using the COPY
// protocol, batchSize rows at a time (0 = default 50,000).
func BulkLoad(ctx context.Context, pool db.Pool, product Product, rows [][]any, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	table := Schema + "." + LevelTable(product.Level)
	n, err := db.CopyRows(ctx, pool, table, Columns, rows, batchSize)
	if err != nil {
		return n, eris.Wrapf(err, "tiger: load %s", product.Name)
	}
	zap.L().Debug("tiger: rows loaded",
		zap.String("component", "tiger.copy"),
		zap.String("table", table),
		zap.Int64("rows", n),
	)
	return n, nil
}

// ClearLoaded deletes a product's rows for a vintage before reloading. For
// per-state products only the given state's rows go.
func ClearLoaded(ctx context.Context, pool db.Pool, product Product, year int, stateFIPS string) error {
	quoted := pgx.Identifier{Schema, LevelTable(product.Level)}.Sanitize()
	var err error
	if product.National {
		_, err = pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE vintage = $1", quoted), year)
	} else {
		_, err = pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE vintage = $1 AND statefp = $2", quoted), year, stateFIPS)
	}
	if err != nil {
		return eris.Wrapf(err, "tiger: clear %s.%s", Schema, LevelTable(product.Level))
	}
	return nil
}
