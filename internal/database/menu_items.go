package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type GetMenuItemForOrderParams struct {
	ID       uuid.UUID
	OutletID uuid.UUID
}

type GetMenuItemForOrderRow struct {
	ID            uuid.UUID
	OutletID      uuid.UUID
	Name          string
	Price         pgtype.Numeric
	TaxRate       pgtype.Numeric
	TaxApplicable bool
}

const getMenuItemForOrder = `
SELECT id, outlet_id, name, price, tax_rate, tax_applicable
FROM menu_items
WHERE id = $1 AND outlet_id = $2 AND is_active = true`

// GetMenuItemForOrder resolves an active catalog item within the outlet,
// returning the current price/tax snapshot fields.
func (q *Queries) GetMenuItemForOrder(ctx context.Context, arg GetMenuItemForOrderParams) (GetMenuItemForOrderRow, error) {
	var r GetMenuItemForOrderRow
	err := q.db.QueryRow(ctx, getMenuItemForOrder, arg.ID, arg.OutletID).Scan(
		&r.ID, &r.OutletID, &r.Name, &r.Price, &r.TaxRate, &r.TaxApplicable)
	return r, err
}
