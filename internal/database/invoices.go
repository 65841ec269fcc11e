package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const invoiceColumns = `id, outlet_id, order_id, invoice_number, fy_label, subtotal, tax_total, discount_type, discount_value, discount_amount, total_amount, payment_method, payment_status, paid_amount, paid_at, created_by, created_at`

func scanInvoice(row interface{ Scan(dest ...any) error }) (Invoice, error) {
	var v Invoice
	err := row.Scan(
		&v.ID, &v.OutletID, &v.OrderID, &v.InvoiceNumber, &v.FyLabel,
		&v.Subtotal, &v.TaxTotal, &v.DiscountType, &v.DiscountValue,
		&v.DiscountAmount, &v.TotalAmount, &v.PaymentMethod, &v.PaymentStatus,
		&v.PaidAmount, &v.PaidAt, &v.CreatedBy, &v.CreatedAt,
	)
	return v, err
}

type CreateInvoiceParams struct {
	OutletID       uuid.UUID
	OrderID        uuid.UUID
	InvoiceNumber  int32
	FyLabel        string
	Subtotal       pgtype.Numeric
	TaxTotal       pgtype.Numeric
	DiscountType   pgtype.Text
	DiscountValue  pgtype.Numeric
	DiscountAmount pgtype.Numeric
	TotalAmount    pgtype.Numeric
	PaymentMethod  string
	PaymentStatus  string
	PaidAmount     pgtype.Numeric
	CreatedBy      uuid.UUID
}

const createInvoice = `
INSERT INTO invoices (outlet_id, order_id, invoice_number, fy_label, subtotal, tax_total, discount_type, discount_value, discount_amount, total_amount, payment_method, payment_status, paid_amount, paid_at, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), $14)
RETURNING ` + invoiceColumns

func (q *Queries) CreateInvoice(ctx context.Context, arg CreateInvoiceParams) (Invoice, error) {
	row := q.db.QueryRow(ctx, createInvoice,
		arg.OutletID, arg.OrderID, arg.InvoiceNumber, arg.FyLabel,
		arg.Subtotal, arg.TaxTotal, arg.DiscountType, arg.DiscountValue,
		arg.DiscountAmount, arg.TotalAmount, arg.PaymentMethod, arg.PaymentStatus,
		arg.PaidAmount, arg.CreatedBy,
	)
	return scanInvoice(row)
}

type GetInvoiceParams struct {
	ID       uuid.UUID
	OutletID uuid.UUID
}

const getInvoice = `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1 AND outlet_id = $2`

func (q *Queries) GetInvoice(ctx context.Context, arg GetInvoiceParams) (Invoice, error) {
	return scanInvoice(q.db.QueryRow(ctx, getInvoice, arg.ID, arg.OutletID))
}

const getInvoiceByOrder = `SELECT ` + invoiceColumns + ` FROM invoices WHERE order_id = $1`

func (q *Queries) GetInvoiceByOrder(ctx context.Context, orderID uuid.UUID) (Invoice, error) {
	return scanInvoice(q.db.QueryRow(ctx, getInvoiceByOrder, orderID))
}

type ListInvoicesParams struct {
	OutletID  uuid.UUID
	StartDate pgtype.Timestamptz
	EndDate   pgtype.Timestamptz
	Limit     int32
	Offset    int32
}

const listInvoices = `
SELECT ` + invoiceColumns + ` FROM invoices
WHERE outlet_id = $1
  AND ($2::timestamptz IS NULL OR created_at >= $2)
  AND ($3::timestamptz IS NULL OR created_at < $3)
ORDER BY created_at DESC
LIMIT $4 OFFSET $5`

func (q *Queries) ListInvoices(ctx context.Context, arg ListInvoicesParams) ([]Invoice, error) {
	rows, err := q.db.Query(ctx, listInvoices, arg.OutletID, arg.StartDate, arg.EndDate, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Invoice
	for rows.Next() {
		v, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

// --- Invoice items ---

const invoiceItemColumns = `id, invoice_id, menu_item_id, name, unit_price, quantity, tax_rate, tax_applicable, total_amount`

func scanInvoiceItem(row interface{ Scan(dest ...any) error }) (InvoiceItem, error) {
	var i InvoiceItem
	err := row.Scan(&i.ID, &i.InvoiceID, &i.MenuItemID, &i.Name, &i.UnitPrice,
		&i.Quantity, &i.TaxRate, &i.TaxApplicable, &i.TotalAmount)
	return i, err
}

type CreateInvoiceItemParams struct {
	InvoiceID     uuid.UUID
	MenuItemID    uuid.UUID
	Name          string
	UnitPrice     pgtype.Numeric
	Quantity      int32
	TaxRate       pgtype.Numeric
	TaxApplicable bool
	TotalAmount   pgtype.Numeric
}

const createInvoiceItem = `
INSERT INTO invoice_items (invoice_id, menu_item_id, name, unit_price, quantity, tax_rate, tax_applicable, total_amount)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + invoiceItemColumns

func (q *Queries) CreateInvoiceItem(ctx context.Context, arg CreateInvoiceItemParams) (InvoiceItem, error) {
	row := q.db.QueryRow(ctx, createInvoiceItem,
		arg.InvoiceID, arg.MenuItemID, arg.Name, arg.UnitPrice,
		arg.Quantity, arg.TaxRate, arg.TaxApplicable, arg.TotalAmount)
	return scanInvoiceItem(row)
}

const listInvoiceItemsByInvoice = `SELECT ` + invoiceItemColumns + ` FROM invoice_items WHERE invoice_id = $1 ORDER BY id`

func (q *Queries) ListInvoiceItemsByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]InvoiceItem, error) {
	rows, err := q.db.Query(ctx, listInvoiceItemsByInvoice, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []InvoiceItem
	for rows.Next() {
		i, err := scanInvoiceItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
