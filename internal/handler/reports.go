package handler

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/neanvt/restro-pos/internal/database"
)

// ReportsStore defines the database methods needed by report handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type ReportsStore interface {
	GetOutlet(ctx context.Context, id uuid.UUID) (database.Outlet, error)
	GetDailySales(ctx context.Context, arg database.GetDailySalesParams) ([]database.GetDailySalesRow, error)
	GetPaymentSummary(ctx context.Context, arg database.GetPaymentSummaryParams) ([]database.GetPaymentSummaryRow, error)
	GetItemSales(ctx context.Context, arg database.GetItemSalesParams) ([]database.GetItemSalesRow, error)
}

// ReportsHandler handles sales report endpoints built over issued invoices.
type ReportsHandler struct {
	store ReportsStore
}

// NewReportsHandler creates a new ReportsHandler.
func NewReportsHandler(store ReportsStore) *ReportsHandler {
	return &ReportsHandler{store: store}
}

// RegisterRoutes registers outlet-scoped report endpoints.
// Expected to be mounted inside an outlet-scoped subrouter: /outlets/{oid}/reports
func (h *ReportsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/daily-sales", h.DailySales)
	r.Get("/payment-summary", h.PaymentSummary)
	r.Get("/item-sales", h.ItemSales)
}

// --- Response types ---

type dailySalesResponse struct {
	Date          string `json:"date"`
	InvoiceCount  int64  `json:"invoice_count"`
	GrossSales    string `json:"gross_sales"`
	TotalDiscount string `json:"total_discount"`
	NetSales      string `json:"net_sales"`
}

type paymentSummaryResponse struct {
	PaymentMethod string `json:"payment_method"`
	InvoiceCount  int64  `json:"invoice_count"`
	TotalAmount   string `json:"total_amount"`
}

type itemSalesResponse struct {
	MenuItemID   uuid.UUID `json:"menu_item_id"`
	Name         string    `json:"name"`
	QuantitySold int64     `json:"quantity_sold"`
	TotalRevenue string    `json:"total_revenue"`
}

// --- Handlers ---

// DailySales returns per-day invoice totals for a given date range.
func (h *ReportsHandler) DailySales(w http.ResponseWriter, r *http.Request) {
	outletID, err := uuid.Parse(chi.URLParam(r, "oid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outlet ID"})
		return
	}

	startDate, endDate, err := h.parseReportRange(r, outletID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	rows, err := h.store.GetDailySales(r.Context(), database.GetDailySalesParams{
		OutletID:  outletID,
		StartDate: pgtype.Timestamptz{Time: startDate, Valid: true},
		EndDate:   pgtype.Timestamptz{Time: endDate, Valid: true},
	})
	if err != nil {
		log.Printf("ERROR: get daily sales: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]dailySalesResponse, len(rows))
	for i, row := range rows {
		date := "N/A"
		if row.SaleDate.Valid {
			date = row.SaleDate.Time.Format("2006-01-02")
		}
		resp[i] = dailySalesResponse{
			Date:          date,
			InvoiceCount:  row.InvoiceCount,
			GrossSales:    numericToString(row.GrossSales),
			TotalDiscount: numericToString(row.TotalDiscount),
			NetSales:      numericToString(row.NetSales),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// PaymentSummary returns breakdown of invoiced sales by payment method.
func (h *ReportsHandler) PaymentSummary(w http.ResponseWriter, r *http.Request) {
	outletID, err := uuid.Parse(chi.URLParam(r, "oid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outlet ID"})
		return
	}

	startDate, endDate, err := h.parseReportRange(r, outletID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	rows, err := h.store.GetPaymentSummary(r.Context(), database.GetPaymentSummaryParams{
		OutletID:  outletID,
		StartDate: pgtype.Timestamptz{Time: startDate, Valid: true},
		EndDate:   pgtype.Timestamptz{Time: endDate, Valid: true},
	})
	if err != nil {
		log.Printf("ERROR: get payment summary: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]paymentSummaryResponse, len(rows))
	for i, row := range rows {
		resp[i] = paymentSummaryResponse{
			PaymentMethod: row.PaymentMethod,
			InvoiceCount:  row.InvoiceCount,
			TotalAmount:   numericToString(row.TotalAmount),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// ItemSales returns top selling menu items by quantity across invoiced orders.
func (h *ReportsHandler) ItemSales(w http.ResponseWriter, r *http.Request) {
	outletID, err := uuid.Parse(chi.URLParam(r, "oid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outlet ID"})
		return
	}

	startDate, endDate, err := h.parseReportRange(r, outletID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
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

	rows, err := h.store.GetItemSales(r.Context(), database.GetItemSalesParams{
		OutletID:  outletID,
		StartDate: pgtype.Timestamptz{Time: startDate, Valid: true},
		EndDate:   pgtype.Timestamptz{Time: endDate, Valid: true},
		Limit:     int32(limit),
	})
	if err != nil {
		log.Printf("ERROR: get item sales: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]itemSalesResponse, len(rows))
	for i, row := range rows {
		resp[i] = itemSalesResponse{
			MenuItemID:   row.MenuItemID,
			Name:         row.Name,
			QuantitySold: row.QuantitySold,
			TotalRevenue: numericToString(row.TotalRevenue),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

// parseReportRange parses start_date and end_date query params in the outlet's
// timezone so report days line up with the outlet's business days.
// Defaults to the last 30 days if not provided. The returned end is exclusive
// (next day midnight).
func (h *ReportsHandler) parseReportRange(r *http.Request, outletID uuid.UUID) (time.Time, time.Time, error) {
	const layout = "2006-01-02"

	loc := time.UTC
	if outlet, err := h.store.GetOutlet(r.Context(), outletID); err == nil {
		if l, err := time.LoadLocation(outlet.Timezone); err == nil {
			loc = l
		}
	}

	now := time.Now().In(loc)
	startDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, -30)
	endDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)

	if s := r.URL.Query().Get("start_date"); s != "" {
		t, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start_date format: %w", err)
		}
		startDate = t
	}

	if s := r.URL.Query().Get("end_date"); s != "" {
		t, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end_date format: %w", err)
		}
		// End date is exclusive: the day after the requested date.
		endDate = t.AddDate(0, 0, 1)
	}

	if !startDate.Before(endDate) {
		return time.Time{}, time.Time{}, fmt.Errorf("start_date must be before end_date")
	}

	return startDate, endDate, nil
}
