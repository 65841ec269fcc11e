package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/neanvt/restro-pos/internal/database"
	"github.com/neanvt/restro-pos/internal/enum"
	"github.com/neanvt/restro-pos/internal/retry"
	"github.com/neanvt/restro-pos/internal/sequence"
)

// Errors returned by the ticket service.
var (
	ErrTicketNotFound      = errors.New("ticket not found")
	ErrTicketItemNotFound  = errors.New("ticket item not found")
	ErrInvalidItemStatus   = errors.New("invalid ticket item status")
	ErrInvalidTicketStatus = errors.New("ticket status can only be set to COMPLETED")
	ErrTicketAlreadyExists = errors.New("order already has a ticket")
)

// TicketStore defines the DB methods needed by the ticket service.
// Satisfied by *database.Queries (and its WithTx variant).
type TicketStore interface {
	GetOutlet(ctx context.Context, id uuid.UUID) (database.Outlet, error)
	GetOrderForUpdate(ctx context.Context, arg database.GetOrderForUpdateParams) (database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	CreateTicket(ctx context.Context, arg database.CreateTicketParams) (database.Ticket, error)
	CreateTicketItem(ctx context.Context, arg database.CreateTicketItemParams) (database.TicketItem, error)
	LinkOrderTicket(ctx context.Context, arg database.LinkOrderTicketParams) (database.Order, error)
	GetTicket(ctx context.Context, arg database.GetTicketParams) (database.Ticket, error)
	ListTicketItemsByTicket(ctx context.Context, ticketID uuid.UUID) ([]database.TicketItem, error)
	UpdateTicketItemStatus(ctx context.Context, arg database.UpdateTicketItemStatusParams) (database.TicketItem, error)
	SetTicketStatus(ctx context.Context, arg database.SetTicketStatusParams) (database.Ticket, error)
	SetAllTicketItemsReady(ctx context.Context, ticketID uuid.UUID) error
}

// NewTicketStore creates a TicketStore from a DBTX (pool or tx).
type NewTicketStore func(db database.DBTX) TicketStore

// TicketResult is a kitchen ticket with its snapshot items, the order it was
// cut from, and the printable ticket number.
type TicketResult struct {
	Ticket        database.Ticket
	Items         []database.TicketItem
	Order         database.Order
	DisplayNumber string
}

// TicketService cuts kitchen tickets from orders and tracks their
// preparation progress.
type TicketService struct {
	store    TicketStore
	pool     TxBeginner
	newStore NewTicketStore
	alloc    NumberAllocator
	retry    retry.Policy
	now      func() time.Time
}

// NewTicketService creates a new TicketService.
func NewTicketService(store TicketStore, pool TxBeginner, newStore NewTicketStore, alloc NumberAllocator, policy retry.Policy) *TicketService {
	return &TicketService{
		store:    store,
		pool:     pool,
		newStore: newStore,
		alloc:    alloc,
		retry:    policy,
		now:      time.Now,
	}
}

// Generate cuts a kitchen ticket from the order's current line items. The
// order row is locked for the duration so the item snapshot and the status
// link are consistent. Only a DRAFT order can be ticketed: an order that
// already has a ticket fails with ErrTicketAlreadyExists so a caller retry
// never cuts a duplicate.
func (s *TicketService) Generate(ctx context.Context, orderID, outletID, requestedBy uuid.UUID) (*TicketResult, error) {
	outlet, err := s.store.GetOutlet(ctx, outletID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOutletNotFound
		}
		return nil, fmt.Errorf("get outlet: %w", err)
	}

	return retry.Do(ctx, s.retry, func(ctx context.Context) (*TicketResult, error) {
		return s.generateTx(ctx, orderID, outlet, requestedBy)
	})
}

func (s *TicketService) generateTx(ctx context.Context, orderID uuid.UUID, outlet database.Outlet, requestedBy uuid.UUID) (*TicketResult, error) {
	day := sequence.BusinessDay(s.now(), outlet.Timezone)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, database.GetOrderForUpdateParams{
		ID:       orderID,
		OutletID: outlet.ID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	switch order.Status {
	case enum.OrderStatusDraft:
	case enum.OrderStatusTicketGenerated:
		return nil, ErrTicketAlreadyExists
	default:
		return nil, transitionError(order.Status, enum.OrderStatusTicketGenerated)
	}

	orderItems, err := store.ListOrderItemsByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	if len(orderItems) == 0 {
		return nil, ErrEmptyItems
	}

	// Allocate only after the order has passed its checks, so a rejected
	// request never consumes a ticket number.
	seq, err := s.alloc.Next(ctx, sequence.TicketScope(outlet.ID, day))
	if err != nil {
		return nil, err
	}

	ticket, err := store.CreateTicket(ctx, database.CreateTicketParams{
		OutletID:     outlet.ID,
		OrderID:      order.ID,
		TicketNumber: int32(seq),
		TicketDate:   pgtype.Date{Time: day, Valid: true},
		Status:       enum.TicketStatusPending,
		CreatedBy:    requestedBy,
	})
	if err != nil {
		if database.IsUniqueViolation(err, database.ConstraintTicketNumber) {
			return nil, retry.Conflict(err)
		}
		return nil, fmt.Errorf("create ticket: %w", err)
	}

	items := make([]database.TicketItem, 0, len(orderItems))
	for _, oi := range orderItems {
		item, err := store.CreateTicketItem(ctx, database.CreateTicketItemParams{
			TicketID:   ticket.ID,
			MenuItemID: oi.MenuItemID,
			Name:       oi.Name,
			Quantity:   oi.Quantity,
			Note:       oi.Notes,
			Status:     enum.TicketItemStatusPending,
		})
		if err != nil {
			return nil, fmt.Errorf("create ticket item: %w", err)
		}
		items = append(items, item)
	}

	linked, err := store.LinkOrderTicket(ctx, database.LinkOrderTicketParams{
		ID:       order.ID,
		OutletID: outlet.ID,
		TicketID: pgtype.UUID{Bytes: ticket.ID, Valid: true},
	})
	if err != nil {
		return nil, fmt.Errorf("link order ticket: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &TicketResult{
		Ticket:        ticket,
		Items:         items,
		Order:         linked,
		DisplayNumber: sequence.FormatTicketNumber(ticket.TicketNumber),
	}, nil
}

// Get returns a ticket with its items.
func (s *TicketService) Get(ctx context.Context, ticketID, outletID uuid.UUID) (*TicketResult, error) {
	ticket, err := s.store.GetTicket(ctx, database.GetTicketParams{ID: ticketID, OutletID: outletID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	items, err := s.store.ListTicketItemsByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, fmt.Errorf("list ticket items: %w", err)
	}
	return &TicketResult{
		Ticket:        ticket,
		Items:         items,
		DisplayNumber: sequence.FormatTicketNumber(ticket.TicketNumber),
	}, nil
}

// UpdateItemStatus moves one ticket item through the kitchen flow and rolls
// the change up into the ticket status.
func (s *TicketService) UpdateItemStatus(ctx context.Context, ticketID, outletID, itemID uuid.UUID, status string) (*TicketResult, error) {
	switch status {
	case enum.TicketItemStatusPending, enum.TicketItemStatusPreparing, enum.TicketItemStatusReady:
	default:
		return nil, ErrInvalidItemStatus
	}

	ticket, err := s.store.GetTicket(ctx, database.GetTicketParams{ID: ticketID, OutletID: outletID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("get ticket: %w", err)
	}

	if _, err := s.store.UpdateTicketItemStatus(ctx, database.UpdateTicketItemStatusParams{
		ID:       itemID,
		TicketID: ticket.ID,
		Status:   status,
	}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTicketItemNotFound
		}
		return nil, fmt.Errorf("update ticket item: %w", err)
	}

	items, err := s.store.ListTicketItemsByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, fmt.Errorf("list ticket items: %w", err)
	}

	aggregate := aggregateTicketStatus(items)
	if aggregate != ticket.Status {
		ticket, err = s.store.SetTicketStatus(ctx, database.SetTicketStatusParams{
			ID:     ticket.ID,
			Status: aggregate,
		})
		if err != nil {
			return nil, fmt.Errorf("set ticket status: %w", err)
		}
	}

	return &TicketResult{
		Ticket:        ticket,
		Items:         items,
		DisplayNumber: sequence.FormatTicketNumber(ticket.TicketNumber),
	}, nil
}

// Complete force-finishes a ticket: every item goes READY and the ticket goes
// COMPLETED. This is the only direct ticket status write; intermediate ticket
// states are derived from item progress, never set by hand.
func (s *TicketService) Complete(ctx context.Context, ticketID, outletID uuid.UUID) (*TicketResult, error) {
	ticket, err := s.store.GetTicket(ctx, database.GetTicketParams{ID: ticketID, OutletID: outletID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("get ticket: %w", err)
	}

	if err := s.store.SetAllTicketItemsReady(ctx, ticket.ID); err != nil {
		return nil, fmt.Errorf("set items ready: %w", err)
	}
	ticket, err = s.store.SetTicketStatus(ctx, database.SetTicketStatusParams{
		ID:     ticket.ID,
		Status: enum.TicketStatusCompleted,
	})
	if err != nil {
		return nil, fmt.Errorf("set ticket status: %w", err)
	}

	items, err := s.store.ListTicketItemsByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, fmt.Errorf("list ticket items: %w", err)
	}

	return &TicketResult{
		Ticket:        ticket,
		Items:         items,
		DisplayNumber: sequence.FormatTicketNumber(ticket.TicketNumber),
	}, nil
}

// aggregateTicketStatus derives the ticket status from its items: COMPLETED
// when every item is READY, IN_PROGRESS once any item has moved, PENDING
// otherwise.
func aggregateTicketStatus(items []database.TicketItem) string {
	allReady := len(items) > 0
	anyMoved := false
	for _, it := range items {
		if it.Status != enum.TicketItemStatusReady {
			allReady = false
		}
		if it.Status != enum.TicketItemStatusPending {
			anyMoved = true
		}
	}
	switch {
	case allReady:
		return enum.TicketStatusCompleted
	case anyMoved:
		return enum.TicketStatusInProgress
	default:
		return enum.TicketStatusPending
	}
}
