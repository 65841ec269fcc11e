package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/neanvt/restro-pos/internal/database"
	"github.com/neanvt/restro-pos/internal/enum"
	"github.com/neanvt/restro-pos/internal/retry"
)

func newTestTicketService(store *mockStore, alloc *mockAllocator) (*TicketService, *mockTx) {
	tx := &mockTx{}
	pool := &mockTxBeginner{tx: tx}
	newStore := func(db database.DBTX) TicketStore { return store }
	return NewTicketService(store, pool, newStore, alloc, fastPolicy()), tx
}

// defaultTicketStore wires a DRAFT order with two line items ready to be cut
// into a ticket.
func defaultTicketStore(outletID, orderID uuid.UUID) *mockStore {
	return &mockStore{
		getOutletFn: func(ctx context.Context, id uuid.UUID) (database.Outlet, error) {
			if id == outletID {
				return testOutlet(outletID), nil
			}
			return database.Outlet{}, pgx.ErrNoRows
		},
		getOrderForUpdateFn: func(ctx context.Context, arg database.GetOrderForUpdateParams) (database.Order, error) {
			if arg.ID == orderID && arg.OutletID == outletID {
				return database.Order{ID: orderID, OutletID: outletID, Status: enum.OrderStatusDraft}, nil
			}
			return database.Order{}, pgx.ErrNoRows
		},
		listOrderItemsFn: func(ctx context.Context, id uuid.UUID) ([]database.OrderItem, error) {
			return []database.OrderItem{
				{ID: uuid.New(), OrderID: orderID, MenuItemID: uuid.New(), Name: "Paneer Tikka", Quantity: 2},
				{ID: uuid.New(), OrderID: orderID, MenuItemID: uuid.New(), Name: "Garlic Naan", Quantity: 3},
			}, nil
		},
		createTicketFn: func(ctx context.Context, arg database.CreateTicketParams) (database.Ticket, error) {
			return database.Ticket{
				ID:           uuid.New(),
				OutletID:     arg.OutletID,
				OrderID:      arg.OrderID,
				TicketNumber: arg.TicketNumber,
				TicketDate:   arg.TicketDate,
				Status:       arg.Status,
				CreatedBy:    arg.CreatedBy,
			}, nil
		},
		createTicketItemFn: func(ctx context.Context, arg database.CreateTicketItemParams) (database.TicketItem, error) {
			return database.TicketItem{
				ID:         uuid.New(),
				TicketID:   arg.TicketID,
				MenuItemID: arg.MenuItemID,
				Name:       arg.Name,
				Quantity:   arg.Quantity,
				Note:       arg.Note,
				Status:     arg.Status,
			}, nil
		},
		linkOrderTicketFn: func(ctx context.Context, arg database.LinkOrderTicketParams) (database.Order, error) {
			return database.Order{
				ID: arg.ID, OutletID: arg.OutletID,
				Status: enum.OrderStatusTicketGenerated, TicketID: arg.TicketID,
			}, nil
		},
	}
}

func TestGenerateTicket_Success(t *testing.T) {
	outletID := uuid.New()
	orderID := uuid.New()
	store := defaultTicketStore(outletID, orderID)
	svc, tx := newTestTicketService(store, seqAllocator())

	result, err := svc.Generate(context.Background(), orderID, outletID, uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tx.committed {
		t.Error("transaction was not committed")
	}
	if result.Ticket.Status != enum.TicketStatusPending {
		t.Errorf("ticket status = %s, want PENDING", result.Ticket.Status)
	}
	if len(result.Items) != 2 {
		t.Errorf("ticket items = %d, want 2", len(result.Items))
	}
	for _, it := range result.Items {
		if it.Status != enum.TicketItemStatusPending {
			t.Errorf("item %s status = %s, want PENDING", it.Name, it.Status)
		}
	}
	if result.Order.Status != enum.OrderStatusTicketGenerated {
		t.Errorf("order status = %s, want TICKET_GENERATED", result.Order.Status)
	}
	if !result.Order.TicketID.Valid || uuid.UUID(result.Order.TicketID.Bytes) != result.Ticket.ID {
		t.Error("order does not point at the new ticket")
	}
	if result.DisplayNumber != "001" {
		t.Errorf("display number = %s, want 001", result.DisplayNumber)
	}
}

func TestGenerateTicket_AlreadyTicketedRejected(t *testing.T) {
	outletID := uuid.New()
	orderID := uuid.New()
	store := defaultTicketStore(outletID, orderID)
	store.getOrderForUpdateFn = func(ctx context.Context, arg database.GetOrderForUpdateParams) (database.Order, error) {
		return database.Order{ID: orderID, OutletID: outletID, Status: enum.OrderStatusTicketGenerated}, nil
	}
	alloc := seqAllocator()
	svc, _ := newTestTicketService(store, alloc)

	_, err := svc.Generate(context.Background(), orderID, outletID, uuid.New())
	if !errors.Is(err, ErrTicketAlreadyExists) {
		t.Fatalf("expected ErrTicketAlreadyExists, got: %v", err)
	}
	if alloc.calls != 0 {
		t.Errorf("allocator calls = %d, want 0 for a rejected request", alloc.calls)
	}
}

func TestGenerateTicket_HeldOrderRejected(t *testing.T) {
	outletID := uuid.New()
	orderID := uuid.New()
	store := defaultTicketStore(outletID, orderID)
	store.getOrderForUpdateFn = func(ctx context.Context, arg database.GetOrderForUpdateParams) (database.Order, error) {
		return database.Order{ID: orderID, OutletID: outletID, Status: enum.OrderStatusHeld}, nil
	}
	svc, _ := newTestTicketService(store, seqAllocator())

	_, err := svc.Generate(context.Background(), orderID, outletID, uuid.New())
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got: %v", err)
	}
}

func TestGenerateTicket_OrderNotFound(t *testing.T) {
	outletID := uuid.New()
	store := defaultTicketStore(outletID, uuid.New())
	svc, _ := newTestTicketService(store, seqAllocator())

	_, err := svc.Generate(context.Background(), uuid.New(), outletID, uuid.New())
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got: %v", err)
	}
}

func TestGenerateTicket_RetriesNumberCollision(t *testing.T) {
	outletID := uuid.New()
	orderID := uuid.New()
	store := defaultTicketStore(outletID, orderID)
	alloc := seqAllocator()
	svc, _ := newTestTicketService(store, alloc)

	attempts := 0
	inner := store.createTicketFn
	store.createTicketFn = func(ctx context.Context, arg database.CreateTicketParams) (database.Ticket, error) {
		attempts++
		if attempts == 1 {
			return database.Ticket{}, uniqueViolation(database.ConstraintTicketNumber)
		}
		return inner(ctx, arg)
	}

	result, err := svc.Generate(context.Background(), orderID, outletID, uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alloc.calls != 2 {
		t.Errorf("allocator calls = %d, want 2", alloc.calls)
	}
	if result.Ticket.TicketNumber != 2 {
		t.Errorf("ticket number = %d, want the re-allocated 2", result.Ticket.TicketNumber)
	}
}

func TestGenerateTicket_ExhaustedCollisions(t *testing.T) {
	outletID := uuid.New()
	orderID := uuid.New()
	store := defaultTicketStore(outletID, orderID)
	store.createTicketFn = func(ctx context.Context, arg database.CreateTicketParams) (database.Ticket, error) {
		return database.Ticket{}, uniqueViolation(database.ConstraintTicketNumber)
	}
	svc, _ := newTestTicketService(store, seqAllocator())

	_, err := svc.Generate(context.Background(), orderID, outletID, uuid.New())
	if !errors.Is(err, retry.ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got: %v", err)
	}
}

// =====================
// Item status tests
// =====================

func ticketWithItems(outletID, ticketID uuid.UUID, statuses ...string) *mockStore {
	items := make([]database.TicketItem, len(statuses))
	for i, st := range statuses {
		items[i] = database.TicketItem{ID: uuid.New(), TicketID: ticketID, Status: st}
	}
	return &mockStore{
		getTicketFn: func(ctx context.Context, arg database.GetTicketParams) (database.Ticket, error) {
			if arg.ID == ticketID && arg.OutletID == outletID {
				return database.Ticket{ID: ticketID, OutletID: outletID, TicketNumber: 9, Status: enum.TicketStatusPending}, nil
			}
			return database.Ticket{}, pgx.ErrNoRows
		},
		listTicketItemsFn: func(ctx context.Context, id uuid.UUID) ([]database.TicketItem, error) {
			return items, nil
		},
		updateTicketItemFn: func(ctx context.Context, arg database.UpdateTicketItemStatusParams) (database.TicketItem, error) {
			for i := range items {
				if items[i].ID == arg.ID {
					items[i].Status = arg.Status
					return items[i], nil
				}
			}
			return database.TicketItem{}, pgx.ErrNoRows
		},
		setTicketStatusFn: func(ctx context.Context, arg database.SetTicketStatusParams) (database.Ticket, error) {
			return database.Ticket{ID: ticketID, OutletID: outletID, TicketNumber: 9, Status: arg.Status}, nil
		},
		setAllItemsReadyFn: func(ctx context.Context, id uuid.UUID) error {
			for i := range items {
				items[i].Status = enum.TicketItemStatusReady
			}
			return nil
		},
	}
}

func TestUpdateItemStatus_RollsUpToInProgress(t *testing.T) {
	outletID := uuid.New()
	ticketID := uuid.New()
	store := ticketWithItems(outletID, ticketID, enum.TicketItemStatusPending, enum.TicketItemStatusPending)
	svc, _ := newTestTicketService(store, seqAllocator())

	items, _ := store.listTicketItemsFn(context.Background(), ticketID)
	result, err := svc.UpdateItemStatus(context.Background(), ticketID, outletID, items[0].ID, enum.TicketItemStatusPreparing)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Ticket.Status != enum.TicketStatusInProgress {
		t.Errorf("ticket status = %s, want IN_PROGRESS", result.Ticket.Status)
	}
}

func TestUpdateItemStatus_AllReadyCompletesTicket(t *testing.T) {
	outletID := uuid.New()
	ticketID := uuid.New()
	store := ticketWithItems(outletID, ticketID, enum.TicketItemStatusReady, enum.TicketItemStatusPreparing)
	svc, _ := newTestTicketService(store, seqAllocator())

	items, _ := store.listTicketItemsFn(context.Background(), ticketID)
	result, err := svc.UpdateItemStatus(context.Background(), ticketID, outletID, items[1].ID, enum.TicketItemStatusReady)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Ticket.Status != enum.TicketStatusCompleted {
		t.Errorf("ticket status = %s, want COMPLETED", result.Ticket.Status)
	}
}

func TestUpdateItemStatus_InvalidStatus(t *testing.T) {
	store := ticketWithItems(uuid.New(), uuid.New(), enum.TicketItemStatusPending)
	svc, _ := newTestTicketService(store, seqAllocator())

	_, err := svc.UpdateItemStatus(context.Background(), uuid.New(), uuid.New(), uuid.New(), "DONE")
	if !errors.Is(err, ErrInvalidItemStatus) {
		t.Fatalf("expected ErrInvalidItemStatus, got: %v", err)
	}
}

func TestUpdateItemStatus_ItemNotFound(t *testing.T) {
	outletID := uuid.New()
	ticketID := uuid.New()
	store := ticketWithItems(outletID, ticketID, enum.TicketItemStatusPending)
	svc, _ := newTestTicketService(store, seqAllocator())

	_, err := svc.UpdateItemStatus(context.Background(), ticketID, outletID, uuid.New(), enum.TicketItemStatusReady)
	if !errors.Is(err, ErrTicketItemNotFound) {
		t.Fatalf("expected ErrTicketItemNotFound, got: %v", err)
	}
}

func TestCompleteTicket_ForcesAllItemsReady(t *testing.T) {
	outletID := uuid.New()
	ticketID := uuid.New()
	store := ticketWithItems(outletID, ticketID, enum.TicketItemStatusPending, enum.TicketItemStatusPreparing)
	svc, _ := newTestTicketService(store, seqAllocator())

	result, err := svc.Complete(context.Background(), ticketID, outletID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Ticket.Status != enum.TicketStatusCompleted {
		t.Errorf("ticket status = %s, want COMPLETED", result.Ticket.Status)
	}
	for _, it := range result.Items {
		if it.Status != enum.TicketItemStatusReady {
			t.Errorf("item status = %s, want READY", it.Status)
		}
	}
}

func TestAggregateTicketStatus(t *testing.T) {
	cases := []struct {
		name     string
		statuses []string
		want     string
	}{
		{"all pending", []string{enum.TicketItemStatusPending, enum.TicketItemStatusPending}, enum.TicketStatusPending},
		{"one preparing", []string{enum.TicketItemStatusPreparing, enum.TicketItemStatusPending}, enum.TicketStatusInProgress},
		{"one ready one pending", []string{enum.TicketItemStatusReady, enum.TicketItemStatusPending}, enum.TicketStatusInProgress},
		{"all ready", []string{enum.TicketItemStatusReady, enum.TicketItemStatusReady}, enum.TicketStatusCompleted},
		{"no items", nil, enum.TicketStatusPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			items := make([]database.TicketItem, len(tc.statuses))
			for i, st := range tc.statuses {
				items[i] = database.TicketItem{Status: st}
			}
			if got := aggregateTicketStatus(items); got != tc.want {
				t.Errorf("aggregate = %s, want %s", got, tc.want)
			}
		})
	}
}
