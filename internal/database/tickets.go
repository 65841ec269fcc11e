package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const ticketColumns = `id, outlet_id, order_id, ticket_number, ticket_date, status, created_by, created_at, completed_at`

func scanTicket(row interface{ Scan(dest ...any) error }) (Ticket, error) {
	var t Ticket
	err := row.Scan(
		&t.ID, &t.OutletID, &t.OrderID, &t.TicketNumber, &t.TicketDate,
		&t.Status, &t.CreatedBy, &t.CreatedAt, &t.CompletedAt,
	)
	return t, err
}

type CreateTicketParams struct {
	OutletID     uuid.UUID
	OrderID      uuid.UUID
	TicketNumber int32
	TicketDate   pgtype.Date
	Status       string
	CreatedBy    uuid.UUID
}

const createTicket = `
INSERT INTO tickets (outlet_id, order_id, ticket_number, ticket_date, status, created_by)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + ticketColumns

func (q *Queries) CreateTicket(ctx context.Context, arg CreateTicketParams) (Ticket, error) {
	row := q.db.QueryRow(ctx, createTicket,
		arg.OutletID, arg.OrderID, arg.TicketNumber, arg.TicketDate, arg.Status, arg.CreatedBy)
	return scanTicket(row)
}

type GetTicketParams struct {
	ID       uuid.UUID
	OutletID uuid.UUID
}

const getTicket = `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1 AND outlet_id = $2`

func (q *Queries) GetTicket(ctx context.Context, arg GetTicketParams) (Ticket, error) {
	return scanTicket(q.db.QueryRow(ctx, getTicket, arg.ID, arg.OutletID))
}

type ListTicketsParams struct {
	OutletID uuid.UUID
	Status   pgtype.Text
	Date     pgtype.Date
	Limit    int32
	Offset   int32
}

const listTickets = `
SELECT ` + ticketColumns + ` FROM tickets
WHERE outlet_id = $1
  AND ($2::text IS NULL OR status = $2)
  AND ($3::date IS NULL OR ticket_date = $3)
ORDER BY created_at DESC
LIMIT $4 OFFSET $5`

func (q *Queries) ListTickets(ctx context.Context, arg ListTicketsParams) ([]Ticket, error) {
	rows, err := q.db.Query(ctx, listTickets, arg.OutletID, arg.Status, arg.Date, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

type SetTicketStatusParams struct {
	ID     uuid.UUID
	Status string
}

const setTicketStatus = `
UPDATE tickets
SET status = $2,
    completed_at = CASE WHEN $2 = 'COMPLETED' THEN now() ELSE NULL END
WHERE id = $1
RETURNING ` + ticketColumns

func (q *Queries) SetTicketStatus(ctx context.Context, arg SetTicketStatusParams) (Ticket, error) {
	return scanTicket(q.db.QueryRow(ctx, setTicketStatus, arg.ID, arg.Status))
}

// --- Ticket items ---

const ticketItemColumns = `id, ticket_id, menu_item_id, name, quantity, note, status`

func scanTicketItem(row interface{ Scan(dest ...any) error }) (TicketItem, error) {
	var i TicketItem
	err := row.Scan(&i.ID, &i.TicketID, &i.MenuItemID, &i.Name, &i.Quantity, &i.Note, &i.Status)
	return i, err
}

type CreateTicketItemParams struct {
	TicketID   uuid.UUID
	MenuItemID uuid.UUID
	Name       string
	Quantity   int32
	Note       pgtype.Text
	Status     string
}

const createTicketItem = `
INSERT INTO ticket_items (ticket_id, menu_item_id, name, quantity, note, status)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + ticketItemColumns

func (q *Queries) CreateTicketItem(ctx context.Context, arg CreateTicketItemParams) (TicketItem, error) {
	row := q.db.QueryRow(ctx, createTicketItem,
		arg.TicketID, arg.MenuItemID, arg.Name, arg.Quantity, arg.Note, arg.Status)
	return scanTicketItem(row)
}

const listTicketItemsByTicket = `SELECT ` + ticketItemColumns + ` FROM ticket_items WHERE ticket_id = $1 ORDER BY id`

func (q *Queries) ListTicketItemsByTicket(ctx context.Context, ticketID uuid.UUID) ([]TicketItem, error) {
	rows, err := q.db.Query(ctx, listTicketItemsByTicket, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TicketItem
	for rows.Next() {
		i, err := scanTicketItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type UpdateTicketItemStatusParams struct {
	ID       uuid.UUID
	TicketID uuid.UUID
	Status   string
}

const updateTicketItemStatus = `
UPDATE ticket_items SET status = $3 WHERE id = $1 AND ticket_id = $2
RETURNING ` + ticketItemColumns

func (q *Queries) UpdateTicketItemStatus(ctx context.Context, arg UpdateTicketItemStatusParams) (TicketItem, error) {
	return scanTicketItem(q.db.QueryRow(ctx, updateTicketItemStatus, arg.ID, arg.TicketID, arg.Status))
}

const setAllTicketItemsReady = `UPDATE ticket_items SET status = 'READY' WHERE ticket_id = $1`

func (q *Queries) SetAllTicketItemsReady(ctx context.Context, ticketID uuid.UUID) error {
	_, err := q.db.Exec(ctx, setAllTicketItemsReady, ticketID)
	return err
}
