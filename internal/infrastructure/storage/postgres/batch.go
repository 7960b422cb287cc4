package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// CopyRows bulk-inserts rows with the COPY protocol.
// Used for append-only tables where a posting writes many lines at once.
func CopyRows(ctx context.Context, q Querier, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	n, err := q.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy into %s: %w", table, err)
	}
	if n != int64(len(rows)) {
		return fmt.Errorf("copy into %s: wrote %d of %d rows", table, n, len(rows))
	}
	return nil
}

// BatchQuery represents a query in a batch.
type BatchQuery struct {
	SQL  string
	Args []any
	// Expect is the number of rows each statement must touch (0 disables the check)
	Expect int64
}

// ExecBatch executes queries in a single round-trip and verifies affected rows.
func ExecBatch(ctx context.Context, q Querier, queries []BatchQuery) error {
	if len(queries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, bq := range queries {
		batch.Queue(bq.SQL, bq.Args...)
	}

	results := q.SendBatch(ctx, batch)
	defer results.Close()

	for i, bq := range queries {
		tag, err := results.Exec()
		if err != nil {
			return fmt.Errorf("batch query %d failed: %w", i, err)
		}
		if bq.Expect > 0 && tag.RowsAffected() != bq.Expect {
			return errRowsAffected{index: i, want: bq.Expect, got: tag.RowsAffected()}
		}
	}
	return nil
}

type errRowsAffected struct {
	index     int
	want, got int64
}

func (e errRowsAffected) Error() string {
	return fmt.Sprintf("batch query %d affected %d rows, want %d", e.index, e.got, e.want)
}
