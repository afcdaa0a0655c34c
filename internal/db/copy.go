package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const defaultBatchSize = 50000

// CopyFrom bulk-inserts rows into schema.table using the COPY protocol in
// chunks of batchSize rows (0 = 50,000). It returns the rows copied so far
// alongside any error.
func CopyFrom(ctx context.Context, pool Pool, schema, table string, columns []string, rows [][]any, batchSize int) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	ident := pgx.Identifier{table}
	if schema != "" {
		ident = pgx.Identifier{schema, table}
	}
	log := zap.L().With(
		zap.String("component", "db.copy"),
		zap.String("table", ident.Sanitize()),
		zap.Int("total_rows", len(rows)),
	)

	var total int64
	for i := 0; i < len(rows); i += batchSize {
		end := min(i+batchSize, len(rows))
		n, err := pool.CopyFrom(ctx, ident, columns, pgx.CopyFromRows(rows[i:end]))
		if err != nil {
			return total, eris.Wrapf(err, "db: COPY INTO %s (batch %d-%d)", ident.Sanitize(), i, end)
		}
		total += n
		log.Debug("batch copied", zap.Int("batch_start", i), zap.Int("batch_end", end), zap.Int64("rows", n))
	}
	return total, nil
}
