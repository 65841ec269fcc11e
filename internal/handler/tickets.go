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
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/neanvt/restro-pos/internal/database"
	"github.com/neanvt/restro-pos/internal/middleware"
	"github.com/neanvt/restro-pos/internal/printer"
	"github.com/neanvt/restro-pos/internal/sequence"
	"github.com/neanvt/restro-pos/internal/service"
	"github.com/neanvt/restro-pos/internal/ws"
)

// TicketServicer defines the service methods needed by ticket handlers.
// Satisfied by *service.TicketService.
type TicketServicer interface {
	Generate(ctx context.Context, orderID, outletID, requestedBy uuid.UUID) (*service.TicketResult, error)
	Get(ctx context.Context, ticketID, outletID uuid.UUID) (*service.TicketResult, error)
	UpdateItemStatus(ctx context.Context, ticketID, outletID, itemID uuid.UUID, status string) (*service.TicketResult, error)
	Complete(ctx context.Context, ticketID, outletID uuid.UUID) (*service.TicketResult, error)
}

// TicketReadStore defines the database methods needed by ticket list handlers.
// Satisfied by *database.Queries.
type TicketReadStore interface {
	ListTickets(ctx context.Context, arg database.ListTicketsParams) ([]database.Ticket, error)
}

// PrintSpooler dispatches rendered print jobs toward connected terminals.
// Satisfied by *printer.Spooler.
type PrintSpooler interface {
	Dispatch(outletID uuid.UUID, job printer.Job) error
}

// TicketHandler handles kitchen ticket endpoints.
type TicketHandler struct {
	svc      TicketServicer
	store    TicketReadStore
	hub      Broadcaster
	activity ActivityRecorder
	spooler  PrintSpooler
}

// NewTicketHandler creates a new TicketHandler.
func NewTicketHandler(svc TicketServicer, store TicketReadStore, hub Broadcaster, activity ActivityRecorder, spooler PrintSpooler) *TicketHandler {
	return &TicketHandler{svc: svc, store: store, hub: hub, activity: activity, spooler: spooler}
}

// RegisterOrderRoutes registers the ticket generation endpoint on the order
// subrouter: POST /outlets/{oid}/orders/{id}/ticket
func (h *TicketHandler) RegisterOrderRoutes(r chi.Router) {
	r.Post("/{id}/ticket", h.Generate)
}

// RegisterRoutes registers ticket endpoints on the given Chi router.
// Expected to be mounted inside an outlet-scoped subrouter: /outlets/{oid}/tickets
func (h *TicketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}/status", h.UpdateStatus)
	r.Patch("/{id}/items/{itemID}", h.UpdateItemStatus)
	r.Post("/{id}/print", h.Print)
}

// --- Request / Response types ---

type updateTicketStatusRequest struct {
	Status string `json:"status"`
}

type updateTicketItemRequest struct {
	Status string `json:"status"`
}

type ticketResponse struct {
	ID            uuid.UUID            `json:"id"`
	OutletID      uuid.UUID            `json:"outlet_id"`
	OrderID       uuid.UUID            `json:"order_id"`
	TicketNumber  int32                `json:"ticket_number"`
	DisplayNumber string               `json:"display_number"`
	TicketDate    string               `json:"ticket_date"`
	Status        string               `json:"status"`
	CreatedBy     uuid.UUID            `json:"created_by"`
	CreatedAt     time.Time            `json:"created_at"`
	CompletedAt   *time.Time           `json:"completed_at"`
	Items         []ticketItemResponse `json:"items,omitempty"`
}

type ticketItemResponse struct {
	ID         uuid.UUID `json:"id"`
	MenuItemID uuid.UUID `json:"menu_item_id"`
	Name       string    `json:"name"`
	Quantity   int32     `json:"quantity"`
	Note       *string   `json:"note"`
	Status     string    `json:"status"`
}

type ticketListResponse struct {
	Tickets []ticketResponse `json:"tickets"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// --- Handlers ---

// Generate handles POST /outlets/{oid}/orders/{id}/ticket. Creates a kitchen
// ticket from the order's current lines and moves the order to
// TICKET_GENERATED. An order that already has a ticket is rejected with 409.
func (h *TicketHandler) Generate(w http.ResponseWriter, r *http.Request) {
	outletID, orderID, ok := parseOutletAndID(w, r)
	if !ok {
		return
	}
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	result, err := h.svc.Generate(r.Context(), orderID, outletID, claims.UserID)
	if err != nil {
		respondTicketError(w, "generate ticket", err)
		return
	}

	h.activity.Record(outletID, claims.UserID, "ticket.generate", "ticket", result.Ticket.ID, result.DisplayNumber)
	h.broadcastTicket(outletID, ws.EventTicketCreated, result)
	h.printTicket(outletID, result)

	writeJSON(w, http.StatusCreated, toTicketResponse(result))
}

// List handles GET /outlets/{oid}/tickets.
func (h *TicketHandler) List(w http.ResponseWriter, r *http.Request) {
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

	params := database.ListTicketsParams{
		OutletID: outletID,
		Limit:    int32(limit),
		Offset:   int32(offset),
	}
	if s := r.URL.Query().Get("status"); s != "" {
		params.Status = pgtype.Text{String: s, Valid: true}
	}
	if s := r.URL.Query().Get("date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date format, use YYYY-MM-DD"})
			return
		}
		params.Date = pgtype.Date{Time: t, Valid: true}
	}

	tickets, err := h.store.ListTickets(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: list tickets: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]ticketResponse, len(tickets))
	for i, t := range tickets {
		resp[i] = dbTicketToResponse(t)
	}
	writeJSON(w, http.StatusOK, ticketListResponse{Tickets: resp, Limit: limit, Offset: offset})
}

// Get handles GET /outlets/{oid}/tickets/{id}.
func (h *TicketHandler) Get(w http.ResponseWriter, r *http.Request) {
	outletID, ticketID, ok := parseOutletAndID(w, r)
	if !ok {
		return
	}

	result, err := h.svc.Get(r.Context(), ticketID, outletID)
	if err != nil {
		respondTicketError(w, "get ticket", err)
		return
	}
	writeJSON(w, http.StatusOK, toTicketResponse(result))
}

// UpdateStatus handles PATCH /outlets/{oid}/tickets/{id}/status. The only
// status a client may set directly is COMPLETED; everything else rolls up
// from item statuses.
func (h *TicketHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	outletID, ticketID, ok := parseOutletAndID(w, r)
	if !ok {
		return
	}
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req updateTicketStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Status != "COMPLETED" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": service.ErrInvalidTicketStatus.Error()})
		return
	}

	result, err := h.svc.Complete(r.Context(), ticketID, outletID)
	if err != nil {
		respondTicketError(w, "complete ticket", err)
		return
	}

	h.activity.Record(outletID, claims.UserID, "ticket.complete", "ticket", result.Ticket.ID, result.DisplayNumber)
	h.broadcastTicket(outletID, ws.EventTicketUpdated, result)

	writeJSON(w, http.StatusOK, toTicketResponse(result))
}

// UpdateItemStatus handles PATCH /outlets/{oid}/tickets/{id}/items/{itemID}.
func (h *TicketHandler) UpdateItemStatus(w http.ResponseWriter, r *http.Request) {
	outletID, ticketID, ok := parseOutletAndID(w, r)
	if !ok {
		return
	}
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid item ID"})
		return
	}
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req updateTicketItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.svc.UpdateItemStatus(r.Context(), ticketID, outletID, itemID, req.Status)
	if err != nil {
		respondTicketError(w, "update ticket item", err)
		return
	}

	h.broadcastTicket(outletID, ws.EventTicketUpdated, result)
	writeJSON(w, http.StatusOK, toTicketResponse(result))
}

// Print handles POST /outlets/{oid}/tickets/{id}/print. Re-renders the KOT
// and pushes it to the outlet's print spool.
func (h *TicketHandler) Print(w http.ResponseWriter, r *http.Request) {
	outletID, ticketID, ok := parseOutletAndID(w, r)
	if !ok {
		return
	}

	result, err := h.svc.Get(r.Context(), ticketID, outletID)
	if err != nil {
		respondTicketError(w, "print ticket", err)
		return
	}

	h.printTicket(outletID, result)
	w.WriteHeader(http.StatusAccepted)
}

// --- Helpers ---

func respondTicketError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyItems) ||
		errors.Is(err, service.ErrInvalidItemStatus) ||
		errors.Is(err, service.ErrInvalidTicketStatus):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrTicketNotFound) ||
		errors.Is(err, service.ErrTicketItemNotFound) ||
		errors.Is(err, service.ErrOrderNotFound) ||
		errors.Is(err, service.ErrOutletNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidTransition) ||
		errors.Is(err, service.ErrOrderConflict) ||
		errors.Is(err, service.ErrTicketAlreadyExists):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, sequence.ErrAllocatorUnavailable):
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "numbering temporarily unavailable, please retry"})
	default:
		respondOrderError(w, op, err)
	}
}

func (h *TicketHandler) broadcastTicket(outletID uuid.UUID, eventType string, result *service.TicketResult) {
	event, err := ws.NewEvent(eventType, map[string]any{
		"id":             result.Ticket.ID,
		"order_id":       result.Ticket.OrderID,
		"display_number": result.DisplayNumber,
		"status":         result.Ticket.Status,
	})
	if err != nil {
		log.Printf("ERROR: encode %s event: %v", eventType, err)
		return
	}
	h.hub.BroadcastToOutlet(outletID, event)
}

func (h *TicketHandler) printTicket(outletID uuid.UUID, result *service.TicketResult) {
	content := printer.RenderTicket(result.Order, result.Ticket, result.Items, result.DisplayNumber)
	if err := h.spooler.Dispatch(outletID, printer.Job{Kind: "kot", Content: content}); err != nil {
		log.Printf("ERROR: dispatch KOT print job: %v", err)
	}
}

func toTicketResponse(result *service.TicketResult) ticketResponse {
	resp := dbTicketToResponse(result.Ticket)
	resp.DisplayNumber = result.DisplayNumber
	resp.Items = make([]ticketItemResponse, len(result.Items))
	for i, it := range result.Items {
		resp.Items[i] = dbTicketItemToResponse(it)
	}
	return resp
}

func dbTicketToResponse(t database.Ticket) ticketResponse {
	resp := ticketResponse{
		ID:            t.ID,
		OutletID:      t.OutletID,
		OrderID:       t.OrderID,
		TicketNumber:  t.TicketNumber,
		DisplayNumber: sequence.FormatTicketNumber(t.TicketNumber),
		Status:        t.Status,
		CreatedBy:     t.CreatedBy,
		CreatedAt:     t.CreatedAt,
	}
	if t.TicketDate.Valid {
		resp.TicketDate = t.TicketDate.Time.Format("2006-01-02")
	}
	if t.CompletedAt.Valid {
		resp.CompletedAt = &t.CompletedAt.Time
	}
	return resp
}

func dbTicketItemToResponse(it database.TicketItem) ticketItemResponse {
	resp := ticketItemResponse{
		ID:         it.ID,
		MenuItemID: it.MenuItemID,
		Name:       it.Name,
		Quantity:   it.Quantity,
		Status:     it.Status,
	}
	if it.Note.Valid {
		resp.Note = &it.Note.String
	}
	return resp
}
