package database

import (
	"context"

	"github.com/google/uuid"
)

const outletColumns = `id, name, fy_label, timezone, upi_vpa, created_at`

const getOutlet = `SELECT ` + outletColumns + ` FROM outlets WHERE id = $1`

func (q *Queries) GetOutlet(ctx context.Context, id uuid.UUID) (Outlet, error) {
	var o Outlet
	err := q.db.QueryRow(ctx, getOutlet, id).Scan(
		&o.ID, &o.Name, &o.FyLabel, &o.Timezone, &o.UpiVpa, &o.CreatedAt)
	return o, err
}
