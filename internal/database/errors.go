package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Unique constraint names the services key retry/conflict decisions on.
const (
	ConstraintOrderNumber   = "orders_outlet_id_order_date_order_number_key"
	ConstraintTicketNumber  = "tickets_outlet_id_ticket_date_ticket_number_key"
	ConstraintInvoiceNumber = "invoices_outlet_id_fy_label_invoice_number_key"
	ConstraintInvoiceOrder  = "invoices_order_id_key"
)

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation (23505) on the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
	}
	return false
}
