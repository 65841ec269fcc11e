package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

type NextSequenceValueParams struct {
	Key    string
	Anchor pgtype.Date
}

const nextSequenceValue = `
INSERT INTO sequence_counters (key, value, anchor)
VALUES ($1, 1, $2)
ON CONFLICT (key) DO UPDATE
SET value = sequence_counters.value + 1, updated_at = now()
RETURNING value`

// NextSequenceValue atomically increments (creating on first use) the counter
// for Key and returns the new value. The insert-or-increment is a single
// statement so two first callers can never both create the row.
func (q *Queries) NextSequenceValue(ctx context.Context, arg NextSequenceValueParams) (int64, error) {
	var value int64
	err := q.db.QueryRow(ctx, nextSequenceValue, arg.Key, arg.Anchor).Scan(&value)
	return value, err
}

const purgeExpiredCounters = `DELETE FROM sequence_counters WHERE anchor < $1`

// PurgeExpiredCounters removes counters whose anchor (the last day their
// numbering period is current) fell before the cutoff date.
func (q *Queries) PurgeExpiredCounters(ctx context.Context, cutoff pgtype.Date) (int64, error) {
	tag, err := q.db.Exec(ctx, purgeExpiredCounters, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
