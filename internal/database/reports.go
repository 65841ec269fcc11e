package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type GetDailySalesParams struct {
	OutletID  uuid.UUID
	StartDate pgtype.Timestamptz
	EndDate   pgtype.Timestamptz
}

type GetDailySalesRow struct {
	SaleDate      pgtype.Date
	InvoiceCount  int64
	GrossSales    pgtype.Numeric
	TotalDiscount pgtype.Numeric
	NetSales      pgtype.Numeric
}

const getDailySales = `
SELECT created_at::date AS sale_date,
       count(*) AS invoice_count,
       COALESCE(sum(subtotal + tax_total), 0) AS gross_sales,
       COALESCE(sum(discount_amount), 0) AS total_discount,
       COALESCE(sum(total_amount), 0) AS net_sales
FROM invoices
WHERE outlet_id = $1
  AND created_at >= $2
  AND created_at < $3
GROUP BY created_at::date
ORDER BY sale_date`

func (q *Queries) GetDailySales(ctx context.Context, arg GetDailySalesParams) ([]GetDailySalesRow, error) {
	rows, err := q.db.Query(ctx, getDailySales, arg.OutletID, arg.StartDate, arg.EndDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GetDailySalesRow
	for rows.Next() {
		var r GetDailySalesRow
		if err := rows.Scan(&r.SaleDate, &r.InvoiceCount, &r.GrossSales, &r.TotalDiscount, &r.NetSales); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

type GetPaymentSummaryParams struct {
	OutletID  uuid.UUID
	StartDate pgtype.Timestamptz
	EndDate   pgtype.Timestamptz
}

type GetPaymentSummaryRow struct {
	PaymentMethod string
	InvoiceCount  int64
	TotalAmount   pgtype.Numeric
}

const getPaymentSummary = `
SELECT payment_method,
       count(*) AS invoice_count,
       COALESCE(sum(total_amount), 0) AS total_amount
FROM invoices
WHERE outlet_id = $1
  AND created_at >= $2
  AND created_at < $3
GROUP BY payment_method
ORDER BY total_amount DESC`

func (q *Queries) GetPaymentSummary(ctx context.Context, arg GetPaymentSummaryParams) ([]GetPaymentSummaryRow, error) {
	rows, err := q.db.Query(ctx, getPaymentSummary, arg.OutletID, arg.StartDate, arg.EndDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GetPaymentSummaryRow
	for rows.Next() {
		var r GetPaymentSummaryRow
		if err := rows.Scan(&r.PaymentMethod, &r.InvoiceCount, &r.TotalAmount); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

type GetItemSalesParams struct {
	OutletID  uuid.UUID
	StartDate pgtype.Timestamptz
	EndDate   pgtype.Timestamptz
	Limit     int32
}

type GetItemSalesRow struct {
	MenuItemID   uuid.UUID
	Name         string
	QuantitySold int64
	TotalRevenue pgtype.Numeric
}

const getItemSales = `
SELECT ii.menu_item_id,
       ii.name,
       COALESCE(sum(ii.quantity), 0) AS quantity_sold,
       COALESCE(sum(ii.total_amount), 0) AS total_revenue
FROM invoice_items ii
JOIN invoices i ON i.id = ii.invoice_id
WHERE i.outlet_id = $1
  AND i.created_at >= $2
  AND i.created_at < $3
GROUP BY ii.menu_item_id, ii.name
ORDER BY quantity_sold DESC
LIMIT $4`

func (q *Queries) GetItemSales(ctx context.Context, arg GetItemSalesParams) ([]GetItemSalesRow, error) {
	rows, err := q.db.Query(ctx, getItemSales, arg.OutletID, arg.StartDate, arg.EndDate, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GetItemSalesRow
	for rows.Next() {
		var r GetItemSalesRow
		if err := rows.Scan(&r.MenuItemID, &r.Name, &r.QuantitySold, &r.TotalRevenue); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}
