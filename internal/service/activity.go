package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/neanvt/restro-pos/internal/database"
)

// ActivityStore defines the DB methods needed by the activity recorder.
// Satisfied by *database.Queries.
type ActivityStore interface {
	CreateActivityLog(ctx context.Context, arg database.CreateActivityLogParams) error
}

// ActivityRecorder writes audit entries off the request path. Failures are
// logged and dropped; an audit miss never fails the operation it describes.
type ActivityRecorder struct {
	store ActivityStore
}

// NewActivityRecorder creates a new ActivityRecorder.
func NewActivityRecorder(store ActivityStore) *ActivityRecorder {
	return &ActivityRecorder{store: store}
}

// Record persists an audit entry asynchronously.
func (r *ActivityRecorder) Record(outletID, userID uuid.UUID, action, entityType string, entityID uuid.UUID, detail string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := r.store.CreateActivityLog(ctx, database.CreateActivityLogParams{
			OutletID:   outletID,
			UserID:     userID,
			Action:     action,
			EntityType: entityType,
			EntityID:   pgtype.UUID{Bytes: entityID, Valid: true},
			Detail:     optionalText(detail),
		})
		if err != nil {
			log.Printf("ERROR: record activity %s %s: %v", action, entityID, err)
		}
	}()
}
