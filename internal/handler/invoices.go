package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/neanvt/restro-pos/internal/database"
	"github.com/neanvt/restro-pos/internal/middleware"
	"github.com/neanvt/restro-pos/internal/printer"
	"github.com/neanvt/restro-pos/internal/sequence"
	"github.com/neanvt/restro-pos/internal/service"
	"github.com/neanvt/restro-pos/internal/ws"
	"github.com/shopspring/decimal"
)

// InvoiceServicer defines the service methods needed by invoice handlers.
// Satisfied by *service.InvoiceService.
type InvoiceServicer interface {
	Issue(ctx context.Context, req service.IssueInvoiceRequest) (*service.InvoiceResult, error)
	Get(ctx context.Context, invoiceID, outletID uuid.UUID) (*service.InvoiceResult, error)
}

// InvoiceReadStore defines the database methods needed by invoice read
// handlers. Satisfied by *database.Queries.
type InvoiceReadStore interface {
	GetOutlet(ctx context.Context, id uuid.UUID) (database.Outlet, error)
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	ListInvoices(ctx context.Context, arg database.ListInvoicesParams) ([]database.Invoice, error)
}

// InvoiceHandler handles invoice endpoints.
type InvoiceHandler struct {
	svc      InvoiceServicer
	store    InvoiceReadStore
	hub      Broadcaster
	activity ActivityRecorder
	spooler  PrintSpooler
}

// NewInvoiceHandler creates a new InvoiceHandler.
func NewInvoiceHandler(svc InvoiceServicer, store InvoiceReadStore, hub Broadcaster, activity ActivityRecorder, spooler PrintSpooler) *InvoiceHandler {
	return &InvoiceHandler{svc: svc, store: store, hub: hub, activity: activity, spooler: spooler}
}

// RegisterOrderRoutes registers the invoice issue endpoint on the order
// subrouter: POST /outlets/{oid}/orders/{id}/invoice
func (h *InvoiceHandler) RegisterOrderRoutes(r chi.Router) {
	r.Post("/{id}/invoice", h.Issue)
}

// RegisterRoutes registers invoice endpoints on the given Chi router.
// Expected to be mounted inside an outlet-scoped subrouter: /outlets/{oid}/invoices
func (h *InvoiceHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/print", h.Print)
}

// --- Request / Response types ---

type issueInvoiceRequest struct {
	PaymentMethod string `json:"payment_method"`
	DiscountType  string `json:"discount_type"`
	DiscountValue string `json:"discount_value"`
}

type invoiceResponse struct {
	ID             uuid.UUID             `json:"id"`
	OutletID       uuid.UUID             `json:"outlet_id"`
	OrderID        uuid.UUID             `json:"order_id"`
	InvoiceNumber  int32                 `json:"invoice_number"`
	DisplayNumber  string                `json:"display_number"`
	FyLabel        string                `json:"fy_label"`
	Subtotal       string                `json:"subtotal"`
	TaxTotal       string                `json:"tax_total"`
	DiscountType   *string               `json:"discount_type"`
	DiscountAmount string                `json:"discount_amount"`
	TotalAmount    string                `json:"total_amount"`
	PaymentMethod  string                `json:"payment_method"`
	PaymentStatus  string                `json:"payment_status"`
	PaidAmount     string                `json:"paid_amount"`
	PaidAt         *time.Time            `json:"paid_at"`
	CreatedBy      uuid.UUID             `json:"created_by"`
	CreatedAt      time.Time             `json:"created_at"`
	PaymentQR      string                `json:"payment_qr,omitempty"`
	Items          []invoiceItemResponse `json:"items,omitempty"`
}

type invoiceItemResponse struct {
	ID          uuid.UUID `json:"id"`
	MenuItemID  uuid.UUID `json:"menu_item_id"`
	Name        string    `json:"name"`
	UnitPrice   string    `json:"unit_price"`
	Quantity    int32     `json:"quantity"`
	TaxRate     string    `json:"tax_rate"`
	TotalAmount string    `json:"total_amount"`
}

type invoiceListResponse struct {
	Invoices []invoiceResponse `json:"invoices"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// --- Handlers ---

// Issue handles POST /outlets/{oid}/orders/{id}/invoice. Bills the order and
// completes it in one step.
func (h *InvoiceHandler) Issue(w http.ResponseWriter, r *http.Request) {
	outletID, orderID, ok := parseOutletAndID(w, r)
	if !ok {
		return
	}
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req issueInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	discountValue := decimal.Zero
	if req.DiscountValue != "" {
		var err error
		discountValue, err = decimal.NewFromString(req.DiscountValue)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid discount_value"})
			return
		}
	}

	result, err := h.svc.Issue(r.Context(), service.IssueInvoiceRequest{
		OrderID:       orderID,
		OutletID:      outletID,
		IssuedBy:      claims.UserID,
		PaymentMethod: req.PaymentMethod,
		DiscountType:  req.DiscountType,
		DiscountValue: discountValue,
	})
	if err != nil {
		respondInvoiceError(w, "issue invoice", err)
		return
	}

	h.activity.Record(outletID, claims.UserID, "invoice.issue", "invoice", result.Invoice.ID, result.DisplayNumber)
	h.broadcastInvoice(outletID, result)
	h.printInvoice(r.Context(), outletID, result)

	writeJSON(w, http.StatusCreated, toInvoiceResponse(result))
}

// List handles GET /outlets/{oid}/invoices.
func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	outletID, err := uuid.Parse(chi.URLParam(r, "oid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outlet ID"})
		return
	}

	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	params := database.ListInvoicesParams{
		OutletID: outletID,
		Limit:    int32(limit),
		Offset:   int32(offset),
	}
	if s := r.URL.Query().Get("start_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid start_date format, use YYYY-MM-DD"})
			return
		}
		params.StartDate = pgtype.Timestamptz{Time: t, Valid: true}
	}
	if s := r.URL.Query().Get("end_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid end_date format, use YYYY-MM-DD"})
			return
		}
		params.EndDate = pgtype.Timestamptz{Time: t.AddDate(0, 0, 1), Valid: true}
	}

	invoices, err := h.store.ListInvoices(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: list invoices: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]invoiceResponse, len(invoices))
	for i, inv := range invoices {
		resp[i] = dbInvoiceToResponse(inv)
	}
	writeJSON(w, http.StatusOK, invoiceListResponse{Invoices: resp, Limit: limit, Offset: offset})
}

// Get handles GET /outlets/{oid}/invoices/{id}.
func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	outletID, invoiceID, ok := parseOutletAndID(w, r)
	if !ok {
		return
	}

	result, err := h.svc.Get(r.Context(), invoiceID, outletID)
	if err != nil {
		respondInvoiceError(w, "get invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceResponse(result))
}

// Print handles POST /outlets/{oid}/invoices/{id}/print. Re-renders the
// invoice and pushes it to the outlet's print spool.
func (h *InvoiceHandler) Print(w http.ResponseWriter, r *http.Request) {
	outletID, invoiceID, ok := parseOutletAndID(w, r)
	if !ok {
		return
	}

	result, err := h.svc.Get(r.Context(), invoiceID, outletID)
	if err != nil {
		respondInvoiceError(w, "print invoice", err)
		return
	}

	h.printInvoice(r.Context(), outletID, result)
	w.WriteHeader(http.StatusAccepted)
}

// --- Helpers ---

func respondInvoiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidPaymentMethod) ||
		errors.Is(err, service.ErrInvalidDiscount) ||
		errors.Is(err, service.ErrEmptyItems):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrInvoiceNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrOrderAlreadyInvoiced):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		respondOrderError(w, op, err)
	}
}

func (h *InvoiceHandler) broadcastInvoice(outletID uuid.UUID, result *service.InvoiceResult) {
	event, err := ws.NewEvent(ws.EventInvoiceIssued, map[string]any{
		"id":             result.Invoice.ID,
		"order_id":       result.Invoice.OrderID,
		"display_number": result.DisplayNumber,
		"total_amount":   numericToString(result.Invoice.TotalAmount),
	})
	if err != nil {
		log.Printf("ERROR: encode %s event: %v", ws.EventInvoiceIssued, err)
		return
	}
	h.hub.BroadcastToOutlet(outletID, event)
}

// printInvoice renders the tax invoice and spools it. The outlet and order
// are fetched here; Get does not carry them.
func (h *InvoiceHandler) printInvoice(ctx context.Context, outletID uuid.UUID, result *service.InvoiceResult) {
	outlet, err := h.store.GetOutlet(ctx, outletID)
	if err != nil {
		log.Printf("ERROR: get outlet for invoice print: %v", err)
		return
	}
	order := result.Order
	if order.ID == uuid.Nil {
		order, err = h.store.GetOrder(ctx, database.GetOrderParams{
			ID:       result.Invoice.OrderID,
			OutletID: outletID,
		})
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			log.Printf("ERROR: get order for invoice print: %v", err)
			return
		}
	}

	content := printer.RenderInvoice(outlet, order, result.Invoice, result.Items, result.DisplayNumber)
	if err := h.spooler.Dispatch(outletID, printer.Job{Kind: "invoice", Content: content}); err != nil {
		log.Printf("ERROR: dispatch invoice print job: %v", err)
	}
}

func toInvoiceResponse(result *service.InvoiceResult) invoiceResponse {
	resp := dbInvoiceToResponse(result.Invoice)
	resp.DisplayNumber = result.DisplayNumber
	if len(result.PaymentQR) > 0 {
		resp.PaymentQR = base64.StdEncoding.EncodeToString(result.PaymentQR)
	}
	resp.Items = make([]invoiceItemResponse, len(result.Items))
	for i, it := range result.Items {
		resp.Items[i] = invoiceItemResponse{
			ID:          it.ID,
			MenuItemID:  it.MenuItemID,
			Name:        it.Name,
			UnitPrice:   numericToString(it.UnitPrice),
			Quantity:    it.Quantity,
			TaxRate:     numericToString(it.TaxRate),
			TotalAmount: numericToString(it.TotalAmount),
		}
	}
	return resp
}

func dbInvoiceToResponse(inv database.Invoice) invoiceResponse {
	resp := invoiceResponse{
		ID:             inv.ID,
		OutletID:       inv.OutletID,
		OrderID:        inv.OrderID,
		InvoiceNumber:  inv.InvoiceNumber,
		DisplayNumber:  sequence.FormatInvoiceNumber(inv.InvoiceNumber, inv.FyLabel),
		FyLabel:        inv.FyLabel,
		Subtotal:       numericToString(inv.Subtotal),
		TaxTotal:       numericToString(inv.TaxTotal),
		DiscountAmount: numericToString(inv.DiscountAmount),
		TotalAmount:    numericToString(inv.TotalAmount),
		PaymentMethod:  inv.PaymentMethod,
		PaymentStatus:  inv.PaymentStatus,
		PaidAmount:     numericToString(inv.PaidAmount),
		CreatedBy:      inv.CreatedBy,
		CreatedAt:      inv.CreatedAt,
	}
	if inv.DiscountType.Valid {
		resp.DiscountType = &inv.DiscountType.String
	}
	if inv.PaidAt.Valid {
		resp.PaidAt = &inv.PaidAt.Time
	}
	return resp
}
