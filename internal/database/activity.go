package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type CreateActivityLogParams struct {
	OutletID   uuid.UUID
	UserID     uuid.UUID
	Action     string
	EntityType string
	EntityID   pgtype.UUID
	Detail     pgtype.Text
}

const createActivityLog = `
INSERT INTO activity_logs (outlet_id, user_id, action, entity_type, entity_id, detail)
VALUES ($1, $2, $3, $4, $5, $6)`

func (q *Queries) CreateActivityLog(ctx context.Context, arg CreateActivityLogParams) error {
	_, err := q.db.Exec(ctx, createActivityLog,
		arg.OutletID, arg.UserID, arg.Action, arg.EntityType, arg.EntityID, arg.Detail)
	return err
}
