package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/neanvt/restro-pos/internal/database"
	"github.com/neanvt/restro-pos/internal/enum"
	"github.com/neanvt/restro-pos/internal/retry"
	"github.com/neanvt/restro-pos/internal/sequence"
	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"
)

// Errors returned by the invoice service.
var (
	ErrInvoiceNotFound      = errors.New("invoice not found")
	ErrOrderAlreadyInvoiced = errors.New("order already has an invoice")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrInvalidDiscount      = errors.New("invalid discount")
)

// InvoiceStore defines the DB methods needed by the invoice service.
// Satisfied by *database.Queries (and its WithTx variant).
type InvoiceStore interface {
	GetOutlet(ctx context.Context, id uuid.UUID) (database.Outlet, error)
	GetOrderForUpdate(ctx context.Context, arg database.GetOrderForUpdateParams) (database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	GetInvoiceByOrder(ctx context.Context, orderID uuid.UUID) (database.Invoice, error)
	CreateInvoice(ctx context.Context, arg database.CreateInvoiceParams) (database.Invoice, error)
	CreateInvoiceItem(ctx context.Context, arg database.CreateInvoiceItemParams) (database.InvoiceItem, error)
	CompleteOrder(ctx context.Context, arg database.CompleteOrderParams) (database.Order, error)
	GetInvoice(ctx context.Context, arg database.GetInvoiceParams) (database.Invoice, error)
	ListInvoiceItemsByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]database.InvoiceItem, error)
}

// NewInvoiceStore creates an InvoiceStore from a DBTX (pool or tx).
type NewInvoiceStore func(db database.DBTX) InvoiceStore

// IssueInvoiceRequest is the validated input for issuing an invoice.
// DiscountType is empty for no discount.
type IssueInvoiceRequest struct {
	OrderID       uuid.UUID
	OutletID      uuid.UUID
	IssuedBy      uuid.UUID
	PaymentMethod string
	DiscountType  string
	DiscountValue decimal.Decimal
}

// InvoiceResult is an issued invoice with its snapshot items, the completed
// order, the printable invoice number, and, for UPI payments, a payment QR.
type InvoiceResult struct {
	Invoice       database.Invoice
	Items         []database.InvoiceItem
	Order         database.Order
	DisplayNumber string
	PaymentQR     []byte
}

// InvoiceService issues tax invoices, the terminal step of an order.
type InvoiceService struct {
	store    InvoiceStore
	pool     TxBeginner
	newStore NewInvoiceStore
	alloc    NumberAllocator
	retry    retry.Policy
	now      func() time.Time
}

// NewInvoiceService creates a new InvoiceService.
func NewInvoiceService(store InvoiceStore, pool TxBeginner, newStore NewInvoiceStore, alloc NumberAllocator, policy retry.Policy) *InvoiceService {
	return &InvoiceService{
		store:    store,
		pool:     pool,
		newStore: newStore,
		alloc:    alloc,
		retry:    policy,
		now:      time.Now,
	}
}

// Issue bills an order: applies the discount, allocates a financial-year
// invoice number, snapshots the line items, marks the order COMPLETED, and
// records payment in full, all atomically. Issuing twice for the same order
// fails with ErrOrderAlreadyInvoiced; the unique order index backs the check
// under concurrency.
func (s *InvoiceService) Issue(ctx context.Context, req IssueInvoiceRequest) (*InvoiceResult, error) {
	switch req.PaymentMethod {
	case enum.PaymentMethodCash, enum.PaymentMethodCard, enum.PaymentMethodUPI:
	default:
		return nil, ErrInvalidPaymentMethod
	}
	if err := validateDiscount(req.DiscountType, req.DiscountValue); err != nil {
		return nil, err
	}

	outlet, err := s.store.GetOutlet(ctx, req.OutletID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOutletNotFound
		}
		return nil, fmt.Errorf("get outlet: %w", err)
	}

	if _, err := s.store.GetInvoiceByOrder(ctx, req.OrderID); err == nil {
		return nil, ErrOrderAlreadyInvoiced
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing invoice: %w", err)
	}

	result, err := retry.Do(ctx, s.retry, func(ctx context.Context) (*InvoiceResult, error) {
		return s.issueTx(ctx, req, outlet)
	})
	if err != nil {
		return nil, err
	}

	// The invoice is committed at this point; a QR encoding failure must not
	// make a successful issue look failed.
	if req.PaymentMethod == enum.PaymentMethodUPI && outlet.UpiVpa.Valid {
		qr, err := upiPaymentQR(outlet, result)
		if err != nil {
			log.Printf("ERROR: encode payment qr for invoice %s: %v", result.DisplayNumber, err)
		} else {
			result.PaymentQR = qr
		}
	}
	return result, nil
}

func (s *InvoiceService) issueTx(ctx context.Context, req IssueInvoiceRequest, outlet database.Outlet) (*InvoiceResult, error) {
	fy := sequence.FinancialYearOf(sequence.BusinessDay(s.now(), outlet.Timezone))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, database.GetOrderForUpdateParams{
		ID:       req.OrderID,
		OutletID: outlet.ID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order.Status == enum.OrderStatusCompleted {
		return nil, ErrOrderAlreadyInvoiced
	}
	if !CanTransition(order.Status, enum.OrderStatusCompleted) {
		return nil, transitionError(order.Status, enum.OrderStatusCompleted)
	}

	orderItems, err := store.ListOrderItemsByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	if len(orderItems) == 0 {
		return nil, ErrEmptyItems
	}

	subtotal := numericToDecimal(order.Subtotal)
	taxTotal := numericToDecimal(order.TaxTotal)
	discount := discountAmount(req.DiscountType, req.DiscountValue, subtotal, subtotal.Add(taxTotal))
	total := subtotal.Add(taxTotal).Sub(discount)
	if !discount.IsZero() && !total.IsPositive() {
		return nil, fmt.Errorf("%w: discount covers the entire amount", ErrInvalidDiscount)
	}

	// Allocate only after the order and discount have been validated, so a
	// rejected request never consumes an invoice number.
	seq, err := s.alloc.Next(ctx, sequence.InvoiceScope(outlet.ID, fy))
	if err != nil {
		return nil, err
	}

	invoice, err := store.CreateInvoice(ctx, database.CreateInvoiceParams{
		OutletID:       outlet.ID,
		OrderID:        order.ID,
		InvoiceNumber:  int32(seq),
		FyLabel:        fy.Label(),
		Subtotal:       order.Subtotal,
		TaxTotal:       order.TaxTotal,
		DiscountType:   optionalText(req.DiscountType),
		DiscountValue:  decimalToNumeric(req.DiscountValue),
		DiscountAmount: decimalToNumeric(discount),
		TotalAmount:    decimalToNumeric(total),
		PaymentMethod:  req.PaymentMethod,
		PaymentStatus:  enum.PaymentStatusPaid,
		PaidAmount:     decimalToNumeric(total.Round(2)),
		CreatedBy:      req.IssuedBy,
	})
	if err != nil {
		if database.IsUniqueViolation(err, database.ConstraintInvoiceNumber) {
			return nil, retry.Conflict(err)
		}
		if database.IsUniqueViolation(err, database.ConstraintInvoiceOrder) {
			return nil, ErrOrderAlreadyInvoiced
		}
		return nil, fmt.Errorf("create invoice: %w", err)
	}

	items := make([]database.InvoiceItem, 0, len(orderItems))
	for _, oi := range orderItems {
		item, err := store.CreateInvoiceItem(ctx, database.CreateInvoiceItemParams{
			InvoiceID:     invoice.ID,
			MenuItemID:    oi.MenuItemID,
			Name:          oi.Name,
			UnitPrice:     oi.UnitPrice,
			Quantity:      oi.Quantity,
			TaxRate:       oi.TaxRate,
			TaxApplicable: oi.TaxApplicable,
			TotalAmount:   oi.TotalAmount,
		})
		if err != nil {
			return nil, fmt.Errorf("create invoice item: %w", err)
		}
		items = append(items, item)
	}

	completed, err := store.CompleteOrder(ctx, database.CompleteOrderParams{
		ID:       order.ID,
		OutletID: outlet.ID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderConflict
		}
		return nil, fmt.Errorf("complete order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &InvoiceResult{
		Invoice:       invoice,
		Items:         items,
		Order:         completed,
		DisplayNumber: sequence.FormatInvoiceNumber(invoice.InvoiceNumber, invoice.FyLabel),
	}, nil
}

// Get returns an invoice with its items.
func (s *InvoiceService) Get(ctx context.Context, invoiceID, outletID uuid.UUID) (*InvoiceResult, error) {
	invoice, err := s.store.GetInvoice(ctx, database.GetInvoiceParams{ID: invoiceID, OutletID: outletID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	items, err := s.store.ListInvoiceItemsByInvoice(ctx, invoice.ID)
	if err != nil {
		return nil, fmt.Errorf("list invoice items: %w", err)
	}
	return &InvoiceResult{
		Invoice:       invoice,
		Items:         items,
		DisplayNumber: sequence.FormatInvoiceNumber(invoice.InvoiceNumber, invoice.FyLabel),
	}, nil
}

func validateDiscount(discountType string, value decimal.Decimal) error {
	switch discountType {
	case "":
		if !value.IsZero() {
			return fmt.Errorf("%w: value given without a type", ErrInvalidDiscount)
		}
	case enum.DiscountTypePercentage:
		if value.IsNegative() || value.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("%w: percentage must be between 0 and 100", ErrInvalidDiscount)
		}
	case enum.DiscountTypeFixed:
		if value.IsNegative() {
			return fmt.Errorf("%w: fixed amount must not be negative", ErrInvalidDiscount)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidDiscount, discountType)
	}
	return nil
}

// discountAmount computes the discount: a percentage applies to the subtotal,
// a fixed amount is capped at the pre-discount total.
func discountAmount(discountType string, value, subtotal, preDiscountTotal decimal.Decimal) decimal.Decimal {
	switch discountType {
	case enum.DiscountTypePercentage:
		return subtotal.Mul(value).Div(decimal.NewFromInt(100))
	case enum.DiscountTypeFixed:
		if value.GreaterThan(preDiscountTotal) {
			return preDiscountTotal
		}
		return value
	default:
		return decimal.Zero
	}
}

// upiPaymentQR encodes a upi://pay deep link for the invoice's paid amount.
func upiPaymentQR(outlet database.Outlet, result *InvoiceResult) ([]byte, error) {
	v := url.Values{}
	v.Set("pa", outlet.UpiVpa.String)
	v.Set("pn", outlet.Name)
	v.Set("am", numericToDecimal(result.Invoice.PaidAmount).StringFixed(2))
	v.Set("cu", "INR")
	v.Set("tn", "Invoice "+result.DisplayNumber)
	return qrcode.Encode("upi://pay?"+v.Encode(), qrcode.Medium, 256)
}
