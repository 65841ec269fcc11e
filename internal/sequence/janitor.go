package sequence

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Janitor deletes counters whose numbering period ended more than the
// retention window ago. Expired counters have no further use: display
// formatting, not the raw record, is what users keep seeing.
type Janitor struct {
	store     CounterStore
	retention time.Duration
}

func NewJanitor(store CounterStore, retention time.Duration) *Janitor {
	return &Janitor{store: store, retention: retention}
}

// Run purges once immediately, then once per interval until ctx is cancelled.
// Intended as a goroutine: go janitor.Run(ctx, 24*time.Hour)
func (j *Janitor) Run(ctx context.Context, interval time.Duration) {
	j.purge(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.purge(ctx)
		}
	}
}

func (j *Janitor) purge(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-j.retention)
	n, err := j.store.PurgeExpiredCounters(ctx, pgtype.Date{Time: cutoff, Valid: true})
	if err != nil {
		log.Printf("ERROR: purge sequence counters: %v", err)
		return
	}
	if n > 0 {
		log.Printf("purged %d expired sequence counters", n)
	}
}
