package postgres

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/sales-tracker/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// InsertSalesRows bulk loads rows with COPY inside a transaction, so a
// failing chunk leaves no rows behind.
func (s *Store) InsertSalesRows(ctx context.Context, rows []*domain.CanonicalRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("InsertSalesRows: begin: %w", mapError(err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	source := pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		return copyValues(rows[i]), nil
	})

	n, err := tx.CopyFrom(ctx, pgx.Identifier{salesTable}, domain.ColumnNames(), source)
	if err != nil {
		return fmt.Errorf("InsertSalesRows: copy: %w", mapError(err))
	}
	if int(n) != len(rows) {
		return fmt.Errorf("InsertSalesRows: copied %d of %d rows", n, len(rows))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("InsertSalesRows: commit: %w", mapError(err))
	}
	return nil
}

// DeleteRowsByBatch removes every fact row stamped with batchID.
func (s *Store) DeleteRowsByBatch(ctx context.Context, batchID string) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE upload_batch_id = $1`, pgx.Identifier{salesTable}.Sanitize())

	tag, err := s.pool.Exec(ctx, query, batchID)
	if err != nil {
		return 0, fmt.Errorf("DeleteRowsByBatch: batch %s: %w", batchID, mapError(err))
	}
	return tag.RowsAffected(), nil
}

// copyValues converts a row to the binary COPY representation.
func copyValues(row *domain.CanonicalRow) []any {
	values := row.Values()
	for i, v := range values {
		switch tv := v.(type) {
		case civil.Date:
			values[i] = pgDate(tv)
		case decimal.Decimal:
			values[i] = pgNumeric(tv)
		}
	}
	return values
}

func pgDate(d civil.Date) pgtype.Date {
	if !d.IsValid() {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: d.In(time.UTC), Valid: true}
}

func pgNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}
