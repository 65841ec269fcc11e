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

// Errors returned by the order service.
var (
	ErrEmptyItems        = errors.New("items are required")
	ErrInvalidQuantity   = errors.New("quantity must be > 0")
	ErrInvalidMenuItemID = errors.New("invalid menu_item_id")
	ErrMenuItemNotFound  = errors.New("menu item not found in outlet")
	ErrOutletNotFound    = errors.New("outlet not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderNotDraft     = errors.New("order can only be updated while draft")
	ErrOrderNotHeld      = errors.New("order is not held")
	ErrOrderNotDeletable = errors.New("only draft or held orders can be deleted")
	ErrOrderConflict     = errors.New("order changed concurrently, please retry")
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// NumberAllocator hands out the next integer in a numbering scope.
// Satisfied by *sequence.Allocator.
type NumberAllocator interface {
	Next(ctx context.Context, scope sequence.Scope) (int64, error)
}

// OrderStore defines the DB methods needed by the order service.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	GetOutlet(ctx context.Context, id uuid.UUID) (database.Outlet, error)
	GetMenuItemForOrder(ctx context.Context, arg database.GetMenuItemForOrderParams) (database.GetMenuItemForOrderRow, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, arg database.GetOrderForUpdateParams) (database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	DeleteOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) error
	UpdateOrder(ctx context.Context, arg database.UpdateOrderParams) (database.Order, error)
	TransitionOrderStatus(ctx context.Context, arg database.TransitionOrderStatusParams) (database.Order, error)
	DeleteOrder(ctx context.Context, arg database.DeleteOrderParams) (int64, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
type NewOrderStore func(db database.DBTX) OrderStore

// OrderLineRequest is a single requested line item.
type OrderLineRequest struct {
	MenuItemID string
	Quantity   int32
	Notes      string
}

// CreateOrderRequest is the validated input for creating an order.
type CreateOrderRequest struct {
	OutletID      uuid.UUID
	CreatedBy     uuid.UUID
	TableLabel    string
	CustomerName  string
	CustomerPhone string
	Notes         string
	Items         []OrderLineRequest
}

// UpdateOrderRequest carries a draft-order update. Nil pointer fields and a
// nil Items slice leave the corresponding data unchanged.
type UpdateOrderRequest struct {
	OrderID       uuid.UUID
	OutletID      uuid.UUID
	TableLabel    *string
	CustomerName  *string
	CustomerPhone *string
	Notes         *string
	Items         []OrderLineRequest
}

// OrderResult is an order with its line items and display number.
type OrderResult struct {
	Order         database.Order
	Items         []database.OrderItem
	DisplayNumber string
}

// OrderService owns order creation and every order status transition.
type OrderService struct {
	store    OrderStore
	pool     TxBeginner
	newStore NewOrderStore
	alloc    NumberAllocator
	retry    retry.Policy
	now      func() time.Time
}

// NewOrderService creates a new OrderService.
func NewOrderService(store OrderStore, pool TxBeginner, newStore NewOrderStore, alloc NumberAllocator, policy retry.Policy) *OrderService {
	return &OrderService{
		store:    store,
		pool:     pool,
		newStore: newStore,
		alloc:    alloc,
		retry:    policy,
		now:      time.Now,
	}
}

// resolvedLine is a catalog-resolved line ready for insertion.
type resolvedLine struct {
	params database.CreateOrderItemParams
	line   Line
}

// Create validates the cart against the catalog, computes totals, allocates a
// day-scoped order number, and persists the order atomically. A uniqueness
// collision on (outlet, date, number) re-runs the whole unit, fresh number
// included, via the retry policy.
func (s *OrderService) Create(ctx context.Context, req CreateOrderRequest) (*OrderResult, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	outlet, err := s.store.GetOutlet(ctx, req.OutletID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOutletNotFound
		}
		return nil, fmt.Errorf("get outlet: %w", err)
	}

	return retry.Do(ctx, s.retry, func(ctx context.Context) (*OrderResult, error) {
		return s.createTx(ctx, req, outlet)
	})
}

func (s *OrderService) createTx(ctx context.Context, req CreateOrderRequest, outlet database.Outlet) (*OrderResult, error) {
	day := sequence.BusinessDay(s.now(), outlet.Timezone)

	// Allocate before opening the entity transaction; a failed persist leaves
	// a hole in the sequence, never a duplicate.
	seq, err := s.alloc.Next(ctx, sequence.OrderScope(outlet.ID, day))
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	resolved, totals, err := s.resolveLines(ctx, store, outlet.ID, req.Items)
	if err != nil {
		return nil, err
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		OutletID:      outlet.ID,
		OrderNumber:   int32(seq),
		OrderDate:     pgtype.Date{Time: day, Valid: true},
		Status:        enum.OrderStatusDraft,
		TableLabel:    optionalText(req.TableLabel),
		CustomerName:  optionalText(req.CustomerName),
		CustomerPhone: optionalText(req.CustomerPhone),
		Notes:         optionalText(req.Notes),
		Subtotal:      decimalToNumeric(totals.Subtotal),
		TaxTotal:      decimalToNumeric(totals.TaxTotal),
		TotalAmount:   decimalToNumeric(totals.Total),
		CreatedBy:     req.CreatedBy,
	})
	if err != nil {
		if database.IsUniqueViolation(err, database.ConstraintOrderNumber) {
			return nil, retry.Conflict(err)
		}
		return nil, fmt.Errorf("create order: %w", err)
	}

	items := make([]database.OrderItem, 0, len(resolved))
	for _, rl := range resolved {
		rl.params.OrderID = order.ID
		item, err := store.CreateOrderItem(ctx, rl.params)
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		items = append(items, item)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &OrderResult{
		Order:         order,
		Items:         items,
		DisplayNumber: sequence.FormatOrderNumber(order.OrderNumber, outlet.FyLabel),
	}, nil
}

// resolveLines validates each requested line against the catalog and computes
// its snapshot and totals.
func (s *OrderService) resolveLines(ctx context.Context, store OrderStore, outletID uuid.UUID, lines []OrderLineRequest) ([]resolvedLine, OrderTotals, error) {
	var resolved []resolvedLine
	var calcLines []Line

	for i, li := range lines {
		if li.Quantity <= 0 {
			return nil, OrderTotals{}, fmt.Errorf("items[%d]: %w", i, ErrInvalidQuantity)
		}
		menuItemID, err := uuid.Parse(li.MenuItemID)
		if err != nil {
			return nil, OrderTotals{}, fmt.Errorf("items[%d]: %w", i, ErrInvalidMenuItemID)
		}
		menuItem, err := store.GetMenuItemForOrder(ctx, database.GetMenuItemForOrderParams{
			ID:       menuItemID,
			OutletID: outletID,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, OrderTotals{}, fmt.Errorf("items[%d]: %w", i, ErrMenuItemNotFound)
			}
			return nil, OrderTotals{}, fmt.Errorf("items[%d]: get menu item: %w", i, err)
		}

		line := Line{
			UnitPrice:     numericToDecimal(menuItem.Price),
			Quantity:      li.Quantity,
			TaxRate:       numericToDecimal(menuItem.TaxRate),
			TaxApplicable: menuItem.TaxApplicable,
		}
		lt := CalcLine(line)

		resolved = append(resolved, resolvedLine{
			params: database.CreateOrderItemParams{
				MenuItemID:    menuItem.ID,
				Name:          menuItem.Name,
				UnitPrice:     menuItem.Price,
				Quantity:      li.Quantity,
				TaxRate:       menuItem.TaxRate,
				TaxApplicable: menuItem.TaxApplicable,
				Subtotal:      decimalToNumeric(lt.Subtotal),
				TaxAmount:     decimalToNumeric(lt.TaxAmount),
				TotalAmount:   decimalToNumeric(lt.Total),
				Notes:         optionalText(li.Notes),
			},
			line: line,
		})
		calcLines = append(calcLines, line)
	}

	return resolved, CalcOrder(calcLines), nil
}

// Update rewrites a DRAFT order's metadata and, when Items is non-nil,
// replaces its line-item set and recomputes totals, all in one transaction.
func (s *OrderService) Update(ctx context.Context, req UpdateOrderRequest) (*OrderResult, error) {
	outlet, err := s.store.GetOutlet(ctx, req.OutletID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOutletNotFound
		}
		return nil, fmt.Errorf("get outlet: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, database.GetOrderForUpdateParams{
		ID:       req.OrderID,
		OutletID: req.OutletID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order.Status != enum.OrderStatusDraft {
		return nil, ErrOrderNotDraft
	}

	subtotal := order.Subtotal
	taxTotal := order.TaxTotal
	total := order.TotalAmount

	var items []database.OrderItem
	if req.Items != nil {
		if len(req.Items) == 0 {
			return nil, ErrEmptyItems
		}
		resolved, totals, err := s.resolveLines(ctx, store, req.OutletID, req.Items)
		if err != nil {
			return nil, err
		}
		if err := store.DeleteOrderItemsByOrder(ctx, order.ID); err != nil {
			return nil, fmt.Errorf("delete order items: %w", err)
		}
		for _, rl := range resolved {
			rl.params.OrderID = order.ID
			item, err := store.CreateOrderItem(ctx, rl.params)
			if err != nil {
				return nil, fmt.Errorf("create order item: %w", err)
			}
			items = append(items, item)
		}
		subtotal = decimalToNumeric(totals.Subtotal)
		taxTotal = decimalToNumeric(totals.TaxTotal)
		total = decimalToNumeric(totals.Total)
	}

	updated, err := store.UpdateOrder(ctx, database.UpdateOrderParams{
		ID:            order.ID,
		OutletID:      req.OutletID,
		TableLabel:    overrideText(order.TableLabel, req.TableLabel),
		CustomerName:  overrideText(order.CustomerName, req.CustomerName),
		CustomerPhone: overrideText(order.CustomerPhone, req.CustomerPhone),
		Notes:         overrideText(order.Notes, req.Notes),
		Subtotal:      subtotal,
		TaxTotal:      taxTotal,
		TotalAmount:   total,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderConflict
		}
		return nil, fmt.Errorf("update order: %w", err)
	}

	if req.Items == nil {
		items, err = store.ListOrderItemsByOrder(ctx, order.ID)
		if err != nil {
			return nil, fmt.Errorf("list order items: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &OrderResult{
		Order:         updated,
		Items:         items,
		DisplayNumber: sequence.FormatOrderNumber(updated.OrderNumber, outlet.FyLabel),
	}, nil
}

// Hold parks a DRAFT or TICKET_GENERATED order.
func (s *OrderService) Hold(ctx context.Context, orderID, outletID uuid.UUID) (database.Order, error) {
	order, err := s.store.TransitionOrderStatus(ctx, database.TransitionOrderStatusParams{
		ID:         orderID,
		OutletID:   outletID,
		Status:     enum.OrderStatusHeld,
		FromStatus: []string{enum.OrderStatusDraft, enum.OrderStatusTicketGenerated},
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, s.explainTransitionFailure(ctx, orderID, outletID, enum.OrderStatusHeld)
		}
		return database.Order{}, fmt.Errorf("hold order: %w", err)
	}
	return order, nil
}

// Resume returns a HELD order to the sub-state it was held from: DRAFT when
// it has no linked ticket, TICKET_GENERATED otherwise.
func (s *OrderService) Resume(ctx context.Context, orderID, outletID uuid.UUID) (database.Order, error) {
	current, err := s.store.GetOrder(ctx, database.GetOrderParams{ID: orderID, OutletID: outletID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}
	if current.Status != enum.OrderStatusHeld {
		return database.Order{}, ErrOrderNotHeld
	}

	target := enum.OrderStatusDraft
	if current.TicketID.Valid {
		target = enum.OrderStatusTicketGenerated
	}

	order, err := s.store.TransitionOrderStatus(ctx, database.TransitionOrderStatusParams{
		ID:         orderID,
		OutletID:   outletID,
		Status:     target,
		FromStatus: []string{enum.OrderStatusHeld},
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderConflict
		}
		return database.Order{}, fmt.Errorf("resume order: %w", err)
	}
	return order, nil
}

// Cancel moves any non-terminal order to CANCELLED.
func (s *OrderService) Cancel(ctx context.Context, orderID, outletID uuid.UUID) (database.Order, error) {
	order, err := s.store.TransitionOrderStatus(ctx, database.TransitionOrderStatusParams{
		ID:       orderID,
		OutletID: outletID,
		Status:   enum.OrderStatusCancelled,
		FromStatus: []string{
			enum.OrderStatusDraft,
			enum.OrderStatusTicketGenerated,
			enum.OrderStatusHeld,
		},
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, s.explainTransitionFailure(ctx, orderID, outletID, enum.OrderStatusCancelled)
		}
		return database.Order{}, fmt.Errorf("cancel order: %w", err)
	}
	return order, nil
}

// Delete hard-deletes a DRAFT or HELD order and its line items.
func (s *OrderService) Delete(ctx context.Context, orderID, outletID uuid.UUID) error {
	rows, err := s.store.DeleteOrder(ctx, database.DeleteOrderParams{ID: orderID, OutletID: outletID})
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if rows == 0 {
		_, err := s.store.GetOrder(ctx, database.GetOrderParams{ID: orderID, OutletID: outletID})
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("get order: %w", err)
		}
		return ErrOrderNotDeletable
	}
	return nil
}

// explainTransitionFailure turns a guarded no-rows update into the precise
// caller-facing error: missing order, illegal transition, or a legal
// transition that lost a race.
func (s *OrderService) explainTransitionFailure(ctx context.Context, orderID, outletID uuid.UUID, target string) error {
	current, err := s.store.GetOrder(ctx, database.GetOrderParams{ID: orderID, OutletID: outletID})
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("get order: %w", err)
	}
	if CanTransition(current.Status, target) {
		return ErrOrderConflict
	}
	return transitionError(current.Status, target)
}

// --- Helpers ---

func optionalText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func overrideText(current pgtype.Text, override *string) pgtype.Text {
	if override == nil {
		return current
	}
	return optionalText(*override)
}
