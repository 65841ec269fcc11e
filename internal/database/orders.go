package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, outlet_id, order_number, order_date, status, table_label, customer_name, customer_phone, notes, subtotal, tax_total, total_amount, ticket_id, created_by, created_at, updated_at, completed_at`

func scanOrder(row interface{ Scan(dest ...any) error }) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.OutletID, &o.OrderNumber, &o.OrderDate, &o.Status,
		&o.TableLabel, &o.CustomerName, &o.CustomerPhone, &o.Notes,
		&o.Subtotal, &o.TaxTotal, &o.TotalAmount, &o.TicketID,
		&o.CreatedBy, &o.CreatedAt, &o.UpdatedAt, &o.CompletedAt,
	)
	return o, err
}

type CreateOrderParams struct {
	OutletID      uuid.UUID
	OrderNumber   int32
	OrderDate     pgtype.Date
	Status        string
	TableLabel    pgtype.Text
	CustomerName  pgtype.Text
	CustomerPhone pgtype.Text
	Notes         pgtype.Text
	Subtotal      pgtype.Numeric
	TaxTotal      pgtype.Numeric
	TotalAmount   pgtype.Numeric
	CreatedBy     uuid.UUID
}

const createOrder = `
INSERT INTO orders (outlet_id, order_number, order_date, status, table_label, customer_name, customer_phone, notes, subtotal, tax_total, total_amount, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING ` + orderColumns

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.OutletID, arg.OrderNumber, arg.OrderDate, arg.Status,
		arg.TableLabel, arg.CustomerName, arg.CustomerPhone, arg.Notes,
		arg.Subtotal, arg.TaxTotal, arg.TotalAmount, arg.CreatedBy,
	)
	return scanOrder(row)
}

type GetOrderParams struct {
	ID       uuid.UUID
	OutletID uuid.UUID
}

const getOrder = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND outlet_id = $2`

func (q *Queries) GetOrder(ctx context.Context, arg GetOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, arg.ID, arg.OutletID))
}

type GetOrderForUpdateParams struct {
	ID       uuid.UUID
	OutletID uuid.UUID
}

const getOrderForUpdate = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND outlet_id = $2 FOR NO KEY UPDATE`

// GetOrderForUpdate locks the order row for the rest of the transaction,
// serializing concurrent ticket/invoice generation for the same order.
func (q *Queries) GetOrderForUpdate(ctx context.Context, arg GetOrderForUpdateParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, arg.ID, arg.OutletID))
}

type ListOrdersParams struct {
	OutletID  uuid.UUID
	Status    pgtype.Text
	StartDate pgtype.Timestamptz
	EndDate   pgtype.Timestamptz
	Limit     int32
	Offset    int32
}

const listOrders = `
SELECT ` + orderColumns + ` FROM orders
WHERE outlet_id = $1
  AND ($2::text IS NULL OR status = $2)
  AND ($3::timestamptz IS NULL OR created_at >= $3)
  AND ($4::timestamptz IS NULL OR created_at < $4)
ORDER BY created_at DESC
LIMIT $5 OFFSET $6`

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrders,
		arg.OutletID, arg.Status, arg.StartDate, arg.EndDate, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

type UpdateOrderParams struct {
	ID            uuid.UUID
	OutletID      uuid.UUID
	TableLabel    pgtype.Text
	CustomerName  pgtype.Text
	CustomerPhone pgtype.Text
	Notes         pgtype.Text
	Subtotal      pgtype.Numeric
	TaxTotal      pgtype.Numeric
	TotalAmount   pgtype.Numeric
}

const updateOrder = `
UPDATE orders
SET table_label = $3, customer_name = $4, customer_phone = $5, notes = $6,
    subtotal = $7, tax_total = $8, total_amount = $9, updated_at = now()
WHERE id = $1 AND outlet_id = $2 AND status = 'DRAFT'
RETURNING ` + orderColumns

// UpdateOrder rewrites the mutable fields of a DRAFT order. The status guard
// in the WHERE clause makes a concurrent transition surface as no-rows.
func (q *Queries) UpdateOrder(ctx context.Context, arg UpdateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, updateOrder,
		arg.ID, arg.OutletID, arg.TableLabel, arg.CustomerName,
		arg.CustomerPhone, arg.Notes, arg.Subtotal, arg.TaxTotal, arg.TotalAmount)
	return scanOrder(row)
}

type TransitionOrderStatusParams struct {
	ID         uuid.UUID
	OutletID   uuid.UUID
	Status     string
	FromStatus []string
}

const transitionOrderStatus = `
UPDATE orders
SET status = $3, updated_at = now()
WHERE id = $1 AND outlet_id = $2 AND status = ANY($4::text[])
RETURNING ` + orderColumns

// TransitionOrderStatus moves an order to Status only if its current status is
// in FromStatus; otherwise pgx.ErrNoRows is returned.
func (q *Queries) TransitionOrderStatus(ctx context.Context, arg TransitionOrderStatusParams) (Order, error) {
	row := q.db.QueryRow(ctx, transitionOrderStatus, arg.ID, arg.OutletID, arg.Status, arg.FromStatus)
	return scanOrder(row)
}

type LinkOrderTicketParams struct {
	ID       uuid.UUID
	OutletID uuid.UUID
	TicketID pgtype.UUID
}

const linkOrderTicket = `
UPDATE orders
SET ticket_id = $3, status = 'TICKET_GENERATED', updated_at = now()
WHERE id = $1 AND outlet_id = $2 AND status IN ('DRAFT', 'TICKET_GENERATED')
RETURNING ` + orderColumns

func (q *Queries) LinkOrderTicket(ctx context.Context, arg LinkOrderTicketParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, linkOrderTicket, arg.ID, arg.OutletID, arg.TicketID))
}

type CompleteOrderParams struct {
	ID       uuid.UUID
	OutletID uuid.UUID
}

const completeOrder = `
UPDATE orders
SET status = 'COMPLETED', completed_at = now(), updated_at = now()
WHERE id = $1 AND outlet_id = $2 AND status IN ('DRAFT', 'TICKET_GENERATED')
RETURNING ` + orderColumns

func (q *Queries) CompleteOrder(ctx context.Context, arg CompleteOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, completeOrder, arg.ID, arg.OutletID))
}

type DeleteOrderParams struct {
	ID       uuid.UUID
	OutletID uuid.UUID
}

const deleteOrder = `DELETE FROM orders WHERE id = $1 AND outlet_id = $2 AND status IN ('DRAFT', 'HELD')`

// DeleteOrder hard-deletes a DRAFT or HELD order. Returns the number of rows
// removed; 0 means the order was missing or not deletable in its current state.
func (q *Queries) DeleteOrder(ctx context.Context, arg DeleteOrderParams) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteOrder, arg.ID, arg.OutletID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// --- Order items ---

const orderItemColumns = `id, order_id, menu_item_id, name, unit_price, quantity, tax_rate, tax_applicable, subtotal, tax_amount, total_amount, notes`

func scanOrderItem(row interface{ Scan(dest ...any) error }) (OrderItem, error) {
	var i OrderItem
	err := row.Scan(
		&i.ID, &i.OrderID, &i.MenuItemID, &i.Name, &i.UnitPrice, &i.Quantity,
		&i.TaxRate, &i.TaxApplicable, &i.Subtotal, &i.TaxAmount, &i.TotalAmount, &i.Notes,
	)
	return i, err
}

type CreateOrderItemParams struct {
	OrderID       uuid.UUID
	MenuItemID    uuid.UUID
	Name          string
	UnitPrice     pgtype.Numeric
	Quantity      int32
	TaxRate       pgtype.Numeric
	TaxApplicable bool
	Subtotal      pgtype.Numeric
	TaxAmount     pgtype.Numeric
	TotalAmount   pgtype.Numeric
	Notes         pgtype.Text
}

const createOrderItem = `
INSERT INTO order_items (order_id, menu_item_id, name, unit_price, quantity, tax_rate, tax_applicable, subtotal, tax_amount, total_amount, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING ` + orderItemColumns

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID, arg.MenuItemID, arg.Name, arg.UnitPrice, arg.Quantity,
		arg.TaxRate, arg.TaxApplicable, arg.Subtotal, arg.TaxAmount, arg.TotalAmount, arg.Notes)
	return scanOrderItem(row)
}

const listOrderItemsByOrder = `SELECT ` + orderItemColumns + ` FROM order_items WHERE order_id = $1 ORDER BY id`

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderItem
	for rows.Next() {
		i, err := scanOrderItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const deleteOrderItemsByOrder = `DELETE FROM order_items WHERE order_id = $1`

func (q *Queries) DeleteOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteOrderItemsByOrder, orderID)
	return err
}
