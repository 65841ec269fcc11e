package handler

import (
	"context"
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
	"github.com/neanvt/restro-pos/internal/retry"
	"github.com/neanvt/restro-pos/internal/sequence"
	"github.com/neanvt/restro-pos/internal/service"
	"github.com/neanvt/restro-pos/internal/ws"
	"github.com/shopspring/decimal"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	Create(ctx context.Context, req service.CreateOrderRequest) (*service.OrderResult, error)
	Update(ctx context.Context, req service.UpdateOrderRequest) (*service.OrderResult, error)
	Hold(ctx context.Context, orderID, outletID uuid.UUID) (database.Order, error)
	Resume(ctx context.Context, orderID, outletID uuid.UUID) (database.Order, error)
	Cancel(ctx context.Context, orderID, outletID uuid.UUID) (database.Order, error)
	Delete(ctx context.Context, orderID, outletID uuid.UUID) error
}

// OrderReadStore defines the database methods needed by order read handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type OrderReadStore interface {
	GetOutlet(ctx context.Context, id uuid.UUID) (database.Outlet, error)
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
}

// Broadcaster pushes realtime events into an outlet's room.
// Satisfied by *ws.Hub.
type Broadcaster interface {
	BroadcastToOutlet(outletID uuid.UUID, event ws.Event)
}

// ActivityRecorder writes audit entries off the request path.
// Satisfied by *service.ActivityRecorder.
type ActivityRecorder interface {
	Record(outletID, userID uuid.UUID, action, entityType string, entityID uuid.UUID, detail string)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc      OrderServicer
	store    OrderReadStore
	hub      Broadcaster
	activity ActivityRecorder
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, store OrderReadStore, hub Broadcaster, activity ActivityRecorder) *OrderHandler {
	return &OrderHandler{svc: svc, store: store, hub: hub, activity: activity}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted inside an outlet-scoped subrouter: /outlets/{oid}/orders
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Post("/{id}/hold", h.Hold)
	r.Post("/{id}/resume", h.Resume)
	r.Post("/{id}/cancel", h.Cancel)
	r.Delete("/{id}", h.Delete)
}

// --- Request / Response types ---

type createOrderRequest struct {
	TableLabel    string                   `json:"table_label"`
	CustomerName  string                   `json:"customer_name"`
	CustomerPhone string                   `json:"customer_phone"`
	Notes         string                   `json:"notes"`
	Items         []createOrderItemRequest `json:"items"`
}

type createOrderItemRequest struct {
	MenuItemID string `json:"menu_item_id"`
	Quantity   int32  `json:"quantity"`
	Notes      string `json:"notes"`
}

type updateOrderRequest struct {
	TableLabel    *string                  `json:"table_label"`
	CustomerName  *string                  `json:"customer_name"`
	CustomerPhone *string                  `json:"customer_phone"`
	Notes         *string                  `json:"notes"`
	Items         []createOrderItemRequest `json:"items"`
}

type orderResponse struct {
	ID            uuid.UUID           `json:"id"`
	OutletID      uuid.UUID           `json:"outlet_id"`
	OrderNumber   int32               `json:"order_number"`
	DisplayNumber string              `json:"display_number,omitempty"`
	OrderDate     string              `json:"order_date"`
	Status        string              `json:"status"`
	TableLabel    *string             `json:"table_label"`
	CustomerName  *string             `json:"customer_name"`
	CustomerPhone *string             `json:"customer_phone"`
	Notes         *string             `json:"notes"`
	Subtotal      string              `json:"subtotal"`
	TaxTotal      string              `json:"tax_total"`
	TotalAmount   string              `json:"total_amount"`
	TicketID      *string             `json:"ticket_id"`
	CreatedBy     uuid.UUID           `json:"created_by"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	CompletedAt   *time.Time          `json:"completed_at"`
	Items         []orderItemResponse `json:"items,omitempty"`
}

type orderItemResponse struct {
	ID          uuid.UUID `json:"id"`
	MenuItemID  uuid.UUID `json:"menu_item_id"`
	Name        string    `json:"name"`
	UnitPrice   string    `json:"unit_price"`
	Quantity    int32     `json:"quantity"`
	TaxRate     string    `json:"tax_rate"`
	Subtotal    string    `json:"subtotal"`
	TaxAmount   string    `json:"tax_amount"`
	TotalAmount string    `json:"total_amount"`
	Notes       *string   `json:"notes"`
}

// orderListResponse wraps a list of orders with pagination metadata.
type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// --- Handlers ---

// Create handles POST /outlets/{oid}/orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	outletID, err := uuid.Parse(chi.URLParam(r, "oid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outlet ID"})
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "items are required"})
		return
	}
	for i, item := range req.Items {
		if item.MenuItemID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": formatItemError(i, "menu_item_id is required"),
			})
			return
		}
		if item.Quantity <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": formatItemError(i, "quantity must be > 0"),
			})
			return
		}
	}

	result, err := h.svc.Create(r.Context(), service.CreateOrderRequest{
		OutletID:      outletID,
		CreatedBy:     claims.UserID,
		TableLabel:    req.TableLabel,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Notes:         req.Notes,
		Items:         toServiceLines(req.Items),
	})
	if err != nil {
		respondOrderError(w, "create order", err)
		return
	}

	h.activity.Record(outletID, claims.UserID, "order.create", "order", result.Order.ID, result.DisplayNumber)
	h.broadcastOrder(outletID, ws.EventOrderCreated, result.Order, result.DisplayNumber)

	writeJSON(w, http.StatusCreated, toOrderResponse(result))
}

// List handles GET /outlets/{oid}/orders.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	outletID, err := uuid.Parse(chi.URLParam(r, "oid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outlet ID"})
		return
	}

	// Parse pagination
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

	params := database.ListOrdersParams{
		OutletID: outletID,
		Limit:    int32(limit),
		Offset:   int32(offset),
	}

	if s := r.URL.Query().Get("status"); s != "" {
		params.Status = pgtype.Text{String: s, Valid: true}
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

	orders, err := h.store.ListOrders(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	fyLabel := h.fyLabel(r.Context(), outletID)
	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = dbOrderToResponse(o, fyLabel)
	}

	writeJSON(w, http.StatusOK, orderListResponse{
		Orders: resp,
		Limit:  limit,
		Offset: offset,
	})
}

// Get handles GET /outlets/{oid}/orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	outletID, orderID, ok := parseOutletAndID(w, r)
	if !ok {
		return
	}

	order, err := h.store.GetOrder(r.Context(), database.GetOrderParams{
		ID:       orderID,
		OutletID: outletID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	items, err := h.store.ListOrderItemsByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list order items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := dbOrderToResponse(order, h.fyLabel(r.Context(), outletID))
	resp.Items = make([]orderItemResponse, len(items))
	for i, it := range items {
		resp.Items[i] = dbOrderItemToResponse(it)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Update handles PUT /outlets/{oid}/orders/{id}. Only DRAFT orders accept it.
func (h *OrderHandler) Update(w http.ResponseWriter, r *http.Request) {
	outletID, orderID, ok := parseOutletAndID(w, r)
	if !ok {
		return
	}
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req updateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	svcReq := service.UpdateOrderRequest{
		OrderID:       orderID,
		OutletID:      outletID,
		TableLabel:    req.TableLabel,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Notes:         req.Notes,
	}
	if req.Items != nil {
		svcReq.Items = toServiceLines(req.Items)
	}

	result, err := h.svc.Update(r.Context(), svcReq)
	if err != nil {
		respondOrderError(w, "update order", err)
		return
	}

	h.activity.Record(outletID, claims.UserID, "order.update", "order", result.Order.ID, result.DisplayNumber)
	h.broadcastOrder(outletID, ws.EventOrderUpdated, result.Order, result.DisplayNumber)

	writeJSON(w, http.StatusOK, toOrderResponse(result))
}

// Hold handles POST /outlets/{oid}/orders/{id}/hold.
func (h *OrderHandler) Hold(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "order.hold", h.svc.Hold)
}

// Resume handles POST /outlets/{oid}/orders/{id}/resume.
func (h *OrderHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "order.resume", h.svc.Resume)
}

// Cancel handles POST /outlets/{oid}/orders/{id}/cancel.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "order.cancel", h.svc.Cancel)
}

// Delete handles DELETE /outlets/{oid}/orders/{id}. Draft and held orders only.
func (h *OrderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	outletID, orderID, ok := parseOutletAndID(w, r)
	if !ok {
		return
	}
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	if err := h.svc.Delete(r.Context(), orderID, outletID); err != nil {
		respondOrderError(w, "delete order", err)
		return
	}

	h.activity.Record(outletID, claims.UserID, "order.delete", "order", orderID, "")
	w.WriteHeader(http.StatusNoContent)
}

// transition runs one of the simple status moves and responds with the
// updated order.
func (h *OrderHandler) transition(w http.ResponseWriter, r *http.Request, action string, op func(ctx context.Context, orderID, outletID uuid.UUID) (database.Order, error)) {
	outletID, orderID, ok := parseOutletAndID(w, r)
	if !ok {
		return
	}
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	order, err := op(r.Context(), orderID, outletID)
	if err != nil {
		respondOrderError(w, action, err)
		return
	}

	fyLabel := h.fyLabel(r.Context(), outletID)
	display := sequence.FormatOrderNumber(order.OrderNumber, fyLabel)
	h.activity.Record(outletID, claims.UserID, action, "order", order.ID, order.Status)
	h.broadcastOrder(outletID, ws.EventOrderUpdated, order, display)

	writeJSON(w, http.StatusOK, dbOrderToResponse(order, fyLabel))
}

// --- Helpers ---

func parseOutletAndID(w http.ResponseWriter, r *http.Request) (outletID, id uuid.UUID, ok bool) {
	outletID, err := uuid.Parse(chi.URLParam(r, "oid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outlet ID"})
		return uuid.Nil, uuid.Nil, false
	}
	id, err = uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ID"})
		return uuid.Nil, uuid.Nil, false
	}
	return outletID, id, true
}

func formatItemError(idx int, msg string) string {
	return "items[" + strconv.Itoa(idx) + "]: " + msg
}

func toServiceLines(items []createOrderItemRequest) []service.OrderLineRequest {
	lines := make([]service.OrderLineRequest, len(items))
	for i, it := range items {
		lines[i] = service.OrderLineRequest{
			MenuItemID: it.MenuItemID,
			Quantity:   it.Quantity,
			Notes:      it.Notes,
		}
	}
	return lines
}

// isOrderValidationError checks if the error is a known validation error
// from the service layer that should result in 400 Bad Request.
func isOrderValidationError(err error) bool {
	return errors.Is(err, service.ErrEmptyItems) ||
		errors.Is(err, service.ErrInvalidQuantity) ||
		errors.Is(err, service.ErrInvalidMenuItemID) ||
		errors.Is(err, service.ErrMenuItemNotFound) ||
		errors.Is(err, service.ErrOrderNotHeld)
}

// isOrderConflictError checks for state errors that should result in
// 409 Conflict.
func isOrderConflictError(err error) bool {
	return errors.Is(err, service.ErrInvalidTransition) ||
		errors.Is(err, service.ErrOrderConflict) ||
		errors.Is(err, service.ErrOrderNotDraft) ||
		errors.Is(err, service.ErrOrderNotDeletable)
}

// respondOrderError maps service-layer errors onto HTTP statuses. Unknown
// errors are logged and masked as 500.
func respondOrderError(w http.ResponseWriter, op string, err error) {
	switch {
	case isOrderValidationError(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrOrderNotFound) || errors.Is(err, service.ErrOutletNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case isOrderConflictError(err):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, sequence.ErrAllocatorUnavailable):
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "numbering temporarily unavailable, please retry"})
	case errors.Is(err, retry.ErrRetriesExhausted):
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not allocate a number, please retry"})
	default:
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func (h *OrderHandler) fyLabel(ctx context.Context, outletID uuid.UUID) string {
	outlet, err := h.store.GetOutlet(ctx, outletID)
	if err != nil {
		log.Printf("ERROR: get outlet for display number: %v", err)
		return ""
	}
	return outlet.FyLabel
}

func (h *OrderHandler) broadcastOrder(outletID uuid.UUID, eventType string, order database.Order, display string) {
	event, err := ws.NewEvent(eventType, map[string]any{
		"id":             order.ID,
		"display_number": display,
		"status":         order.Status,
	})
	if err != nil {
		log.Printf("ERROR: encode %s event: %v", eventType, err)
		return
	}
	h.hub.BroadcastToOutlet(outletID, event)
}

func toOrderResponse(result *service.OrderResult) orderResponse {
	resp := dbOrderToResponse(result.Order, "")
	resp.DisplayNumber = result.DisplayNumber
	resp.Items = make([]orderItemResponse, len(result.Items))
	for i, it := range result.Items {
		resp.Items[i] = dbOrderItemToResponse(it)
	}
	return resp
}

// dbOrderToResponse converts a database.Order to an orderResponse. The
// display number is derived when the outlet's FY label is known.
func dbOrderToResponse(o database.Order, fyLabel string) orderResponse {
	resp := orderResponse{
		ID:          o.ID,
		OutletID:    o.OutletID,
		OrderNumber: o.OrderNumber,
		Status:      o.Status,
		Subtotal:    numericToString(o.Subtotal),
		TaxTotal:    numericToString(o.TaxTotal),
		TotalAmount: numericToString(o.TotalAmount),
		CreatedBy:   o.CreatedBy,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
	if fyLabel != "" {
		resp.DisplayNumber = sequence.FormatOrderNumber(o.OrderNumber, fyLabel)
	}
	if o.OrderDate.Valid {
		resp.OrderDate = o.OrderDate.Time.Format("2006-01-02")
	}
	if o.TableLabel.Valid {
		resp.TableLabel = &o.TableLabel.String
	}
	if o.CustomerName.Valid {
		resp.CustomerName = &o.CustomerName.String
	}
	if o.CustomerPhone.Valid {
		resp.CustomerPhone = &o.CustomerPhone.String
	}
	if o.Notes.Valid {
		resp.Notes = &o.Notes.String
	}
	if o.TicketID.Valid {
		s := uuid.UUID(o.TicketID.Bytes).String()
		resp.TicketID = &s
	}
	if o.CompletedAt.Valid {
		resp.CompletedAt = &o.CompletedAt.Time
	}
	return resp
}

func dbOrderItemToResponse(it database.OrderItem) orderItemResponse {
	resp := orderItemResponse{
		ID:          it.ID,
		MenuItemID:  it.MenuItemID,
		Name:        it.Name,
		UnitPrice:   numericToString(it.UnitPrice),
		Quantity:    it.Quantity,
		TaxRate:     numericToString(it.TaxRate),
		Subtotal:    numericToString(it.Subtotal),
		TaxAmount:   numericToString(it.TaxAmount),
		TotalAmount: numericToString(it.TotalAmount),
	}
	if it.Notes.Valid {
		resp.Notes = &it.Notes.String
	}
	return resp
}

// numericToString renders an amount rounded to 2 decimal places for the API.
// This is the display boundary; stored amounts stay unrounded.
func numericToString(n pgtype.Numeric) string {
	if !n.Valid {
		return "0.00"
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return "0.00"
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return "0.00"
	}
	return d.StringFixed(2)
}
