package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/neanvt/restro-pos/internal/database"
)

// ErrAllocatorUnavailable means the counter storage could not perform the
// atomic increment. Callers must propagate it; falling back to a non-atomic
// read-then-write would break the uniqueness guarantee.
var ErrAllocatorUnavailable = errors.New("sequence allocator unavailable")

// CounterStore defines the DB methods the allocator needs.
// Satisfied by *database.Queries.
type CounterStore interface {
	NextSequenceValue(ctx context.Context, arg database.NextSequenceValueParams) (int64, error)
	PurgeExpiredCounters(ctx context.Context, cutoff pgtype.Date) (int64, error)
}

// Allocator hands out strictly increasing integers per scope key, backed by a
// durable upsert-and-increment. Distinct values are guaranteed even under
// concurrent callers; arrival-order grants are not.
type Allocator struct {
	store CounterStore
}

func NewAllocator(store CounterStore) *Allocator {
	return &Allocator{store: store}
}

// Next allocates the next integer for the scope. The error deliberately wraps
// ErrAllocatorUnavailable (not the storage error) so a storage outage can
// never be mistaken for a retryable uniqueness conflict downstream.
func (a *Allocator) Next(ctx context.Context, scope Scope) (int64, error) {
	value, err := a.store.NextSequenceValue(ctx, database.NextSequenceValueParams{
		Key:    scope.Key,
		Anchor: pgtype.Date{Time: scope.Anchor, Valid: true},
	})
	if err != nil {
		return 0, fmt.Errorf("%w: key %s: %v", ErrAllocatorUnavailable, scope.Key, err)
	}
	return value, nil
}
