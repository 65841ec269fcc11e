package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/neanvt/restro-pos/internal/auth"
	"github.com/neanvt/restro-pos/internal/database"
	"github.com/neanvt/restro-pos/internal/handler"
	"github.com/neanvt/restro-pos/internal/middleware"
	"github.com/neanvt/restro-pos/internal/printer"
	"github.com/neanvt/restro-pos/internal/retry"
	"github.com/neanvt/restro-pos/internal/sequence"
	"github.com/neanvt/restro-pos/internal/service"
	"github.com/neanvt/restro-pos/internal/ws"
)

// --- Shared side-effect mocks ---

type mockHub struct {
	mu     sync.Mutex
	events []ws.Event
}

func (m *mockHub) BroadcastToOutlet(outletID uuid.UUID, event ws.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *mockHub) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, len(m.events))
	for i, e := range m.events {
		types[i] = e.Type
	}
	return types
}

type mockActivity struct {
	mu      sync.Mutex
	actions []string
}

func (m *mockActivity) Record(outletID, userID uuid.UUID, action, entityType string, entityID uuid.UUID, detail string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, action)
}

type mockSpooler struct {
	mu   sync.Mutex
	jobs []printer.Job
}

func (m *mockSpooler) Dispatch(outletID uuid.UUID, job printer.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job)
	return nil
}

// --- Mock OrderServicer ---

type mockOrderService struct {
	createFn func(ctx context.Context, req service.CreateOrderRequest) (*service.OrderResult, error)
	updateFn func(ctx context.Context, req service.UpdateOrderRequest) (*service.OrderResult, error)
	holdFn   func(ctx context.Context, orderID, outletID uuid.UUID) (database.Order, error)
	resumeFn func(ctx context.Context, orderID, outletID uuid.UUID) (database.Order, error)
	cancelFn func(ctx context.Context, orderID, outletID uuid.UUID) (database.Order, error)
	deleteFn func(ctx context.Context, orderID, outletID uuid.UUID) error
}

func (m *mockOrderService) Create(ctx context.Context, req service.CreateOrderRequest) (*service.OrderResult, error) {
	return m.createFn(ctx, req)
}

func (m *mockOrderService) Update(ctx context.Context, req service.UpdateOrderRequest) (*service.OrderResult, error) {
	return m.updateFn(ctx, req)
}

func (m *mockOrderService) Hold(ctx context.Context, orderID, outletID uuid.UUID) (database.Order, error) {
	return m.holdFn(ctx, orderID, outletID)
}

func (m *mockOrderService) Resume(ctx context.Context, orderID, outletID uuid.UUID) (database.Order, error) {
	return m.resumeFn(ctx, orderID, outletID)
}

func (m *mockOrderService) Cancel(ctx context.Context, orderID, outletID uuid.UUID) (database.Order, error) {
	return m.cancelFn(ctx, orderID, outletID)
}

func (m *mockOrderService) Delete(ctx context.Context, orderID, outletID uuid.UUID) error {
	return m.deleteFn(ctx, orderID, outletID)
}

// --- Mock OrderReadStore ---

type mockOrderReadStore struct {
	getOutletFn             func(ctx context.Context, id uuid.UUID) (database.Outlet, error)
	getOrderFn              func(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	listOrdersFn            func(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	listOrderItemsByOrderFn func(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
}

func (m *mockOrderReadStore) GetOutlet(ctx context.Context, id uuid.UUID) (database.Outlet, error) {
	if m.getOutletFn != nil {
		return m.getOutletFn(ctx, id)
	}
	return database.Outlet{ID: id, Name: "Spice Route", FyLabel: "2025-26", Timezone: "Asia/Kolkata"}, nil
}

func (m *mockOrderReadStore) GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error) {
	if m.getOrderFn != nil {
		return m.getOrderFn(ctx, arg)
	}
	return database.Order{}, pgx.ErrNoRows
}

func (m *mockOrderReadStore) ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
	if m.listOrdersFn != nil {
		return m.listOrdersFn(ctx, arg)
	}
	return []database.Order{}, nil
}

func (m *mockOrderReadStore) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	if m.listOrderItemsByOrderFn != nil {
		return m.listOrderItemsByOrderFn(ctx, orderID)
	}
	return []database.OrderItem{}, nil
}

// --- Test helpers ---

const testJWTSecret = "test-secret-for-handlers"

type orderRouterDeps struct {
	hub      *mockHub
	activity *mockActivity
}

func setupOrderRouter(svc *mockOrderService, store *mockOrderReadStore) (*chi.Mux, *orderRouterDeps) {
	hub := &mockHub{}
	activity := &mockActivity{}
	h := handler.NewOrderHandler(svc, store, hub, activity)
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testJWTSecret))
	r.Route("/outlets/{oid}/orders", h.RegisterRoutes)
	return r, &orderRouterDeps{hub: hub, activity: activity}
}

func doAuthRequest(t *testing.T, router http.Handler, method, path string, body interface{}, claims *auth.Claims) *httptest.ResponseRecorder {
	t.Helper()

	token, err := auth.GenerateToken(testJWTSecret, claims.UserID, claims.OutletID, claims.Role)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeJSONResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func testClaims(outletID uuid.UUID) *auth.Claims {
	return &auth.Claims{
		UserID:   uuid.New(),
		OutletID: outletID,
		Role:     "CASHIER",
	}
}

func testNumeric(t *testing.T, val string) pgtype.Numeric {
	t.Helper()
	var n pgtype.Numeric
	if err := n.Scan(val); err != nil {
		t.Fatalf("scan numeric %q: %v", val, err)
	}
	return n
}

func testOrderResult(t *testing.T, outletID, userID uuid.UUID) *service.OrderResult {
	t.Helper()
	orderID := uuid.New()
	now := time.Now()
	return &service.OrderResult{
		Order: database.Order{
			ID:          orderID,
			OutletID:    outletID,
			OrderNumber: 7,
			OrderDate:   pgtype.Date{Time: now, Valid: true},
			Status:      "DRAFT",
			Subtotal:    testNumeric(t, "200"),
			TaxTotal:    testNumeric(t, "10"),
			TotalAmount: testNumeric(t, "210"),
			CreatedBy:   userID,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		Items: []database.OrderItem{
			{
				ID: uuid.New(), OrderID: orderID, MenuItemID: uuid.New(),
				Name: "Paneer Tikka", UnitPrice: testNumeric(t, "100"), Quantity: 2,
				TaxRate: testNumeric(t, "5"), TaxApplicable: true,
				Subtotal: testNumeric(t, "200"), TaxAmount: testNumeric(t, "10"),
				TotalAmount: testNumeric(t, "210"),
			},
		},
		DisplayNumber: "007/2025-26",
	}
}

// --- Create tests ---

func TestOrderCreate_Success(t *testing.T) {
	outletID := uuid.New()
	claims := testClaims(outletID)

	svc := &mockOrderService{
		createFn: func(ctx context.Context, req service.CreateOrderRequest) (*service.OrderResult, error) {
			if req.OutletID != outletID {
				t.Errorf("outlet_id: got %v, want %v", req.OutletID, outletID)
			}
			if req.CreatedBy != claims.UserID {
				t.Errorf("created_by: got %v, want %v", req.CreatedBy, claims.UserID)
			}
			if len(req.Items) != 1 || req.Items[0].Quantity != 2 {
				t.Errorf("unexpected items: %+v", req.Items)
			}
			return testOrderResult(t, outletID, claims.UserID), nil
		},
	}

	router, deps := setupOrderRouter(svc, &mockOrderReadStore{})
	rr := doAuthRequest(t, router, "POST", "/outlets/"+outletID.String()+"/orders", map[string]interface{}{
		"table_label": "T1",
		"items": []map[string]interface{}{
			{"menu_item_id": uuid.NewString(), "quantity": 2},
		},
	}, claims)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	resp := decodeJSONResponse(t, rr)
	if resp["display_number"] != "007/2025-26" {
		t.Errorf("display_number: got %v, want 007/2025-26", resp["display_number"])
	}
	if resp["total_amount"] != "210.00" {
		t.Errorf("total_amount: got %v, want 210.00", resp["total_amount"])
	}

	if got := deps.hub.eventTypes(); len(got) != 1 || got[0] != ws.EventOrderCreated {
		t.Errorf("broadcast events: got %v, want [%s]", got, ws.EventOrderCreated)
	}
	if len(deps.activity.actions) != 1 || deps.activity.actions[0] != "order.create" {
		t.Errorf("activity actions: got %v", deps.activity.actions)
	}
}

func TestOrderCreate_EmptyItemsRejected(t *testing.T) {
	outletID := uuid.New()
	claims := testClaims(outletID)
	called := false
	svc := &mockOrderService{
		createFn: func(ctx context.Context, req service.CreateOrderRequest) (*service.OrderResult, error) {
			called = true
			return nil, nil
		},
	}

	router, _ := setupOrderRouter(svc, &mockOrderReadStore{})
	rr := doAuthRequest(t, router, "POST", "/outlets/"+outletID.String()+"/orders", map[string]interface{}{
		"items": []map[string]interface{}{},
	}, claims)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if called {
		t.Error("service should not be called for empty items")
	}
}

func TestOrderCreate_ZeroQuantityRejected(t *testing.T) {
	outletID := uuid.New()
	claims := testClaims(outletID)
	svc := &mockOrderService{}

	router, _ := setupOrderRouter(svc, &mockOrderReadStore{})
	rr := doAuthRequest(t, router, "POST", "/outlets/"+outletID.String()+"/orders", map[string]interface{}{
		"items": []map[string]interface{}{
			{"menu_item_id": uuid.NewString(), "quantity": 0},
		},
	}, claims)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestOrderCreate_RetriesExhausted(t *testing.T) {
	outletID := uuid.New()
	claims := testClaims(outletID)
	svc := &mockOrderService{
		createFn: func(ctx context.Context, req service.CreateOrderRequest) (*service.OrderResult, error) {
			return nil, retry.ErrRetriesExhausted
		},
	}

	router, deps := setupOrderRouter(svc, &mockOrderReadStore{})
	rr := doAuthRequest(t, router, "POST", "/outlets/"+outletID.String()+"/orders", map[string]interface{}{
		"items": []map[string]interface{}{
			{"menu_item_id": uuid.NewString(), "quantity": 1},
		},
	}, claims)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusInternalServerError)
	}
	if len(deps.hub.eventTypes()) != 0 {
		t.Error("no event should be broadcast on failure")
	}
}

func TestOrderCreate_AllocatorUnavailable(t *testing.T) {
	outletID := uuid.New()
	claims := testClaims(outletID)
	svc := &mockOrderService{
		createFn: func(ctx context.Context, req service.CreateOrderRequest) (*service.OrderResult, error) {
			return nil, sequence.ErrAllocatorUnavailable
		},
	}

	router, _ := setupOrderRouter(svc, &mockOrderReadStore{})
	rr := doAuthRequest(t, router, "POST", "/outlets/"+outletID.String()+"/orders", map[string]interface{}{
		"items": []map[string]interface{}{
			{"menu_item_id": uuid.NewString(), "quantity": 1},
		},
	}, claims)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}

func TestOrderCreate_Unauthenticated(t *testing.T) {
	outletID := uuid.New()
	router, _ := setupOrderRouter(&mockOrderService{}, &mockOrderReadStore{})

	req := httptest.NewRequest("POST", "/outlets/"+outletID.String()+"/orders", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

// --- List tests ---

func TestOrderList_Pagination(t *testing.T) {
	outletID := uuid.New()
	claims := testClaims(outletID)

	var captured database.ListOrdersParams
	store := &mockOrderReadStore{
		listOrdersFn: func(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
			captured = arg
			return []database.Order{}, nil
		},
	}

	router, _ := setupOrderRouter(&mockOrderService{}, store)
	rr := doAuthRequest(t, router, "GET",
		"/outlets/"+outletID.String()+"/orders?limit=500&offset=40&status=DRAFT", nil, claims)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if captured.Limit != 100 {
		t.Errorf("limit should be capped at 100, got %d", captured.Limit)
	}
	if captured.Offset != 40 {
		t.Errorf("offset: got %d, want 40", captured.Offset)
	}
	if !captured.Status.Valid || captured.Status.String != "DRAFT" {
		t.Errorf("status filter: got %+v, want DRAFT", captured.Status)
	}
}

func TestOrderList_BadDateFilter(t *testing.T) {
	outletID := uuid.New()
	claims := testClaims(outletID)
	router, _ := setupOrderRouter(&mockOrderService{}, &mockOrderReadStore{})

	rr := doAuthRequest(t, router, "GET",
		"/outlets/"+outletID.String()+"/orders?start_date=15-06-2025", nil, claims)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

// --- Get tests ---

func TestOrderGet_NotFound(t *testing.T) {
	outletID := uuid.New()
	claims := testClaims(outletID)
	router, _ := setupOrderRouter(&mockOrderService{}, &mockOrderReadStore{})

	rr := doAuthRequest(t, router, "GET",
		"/outlets/"+outletID.String()+"/orders/"+uuid.NewString(), nil, claims)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestOrderGet_IncludesItemsAndDisplayNumber(t *testing.T) {
	outletID := uuid.New()
	claims := testClaims(outletID)
	orderID := uuid.New()
	now := time.Now()

	store := &mockOrderReadStore{
		getOrderFn: func(ctx context.Context, arg database.GetOrderParams) (database.Order, error) {
			return database.Order{
				ID: orderID, OutletID: outletID, OrderNumber: 12,
				OrderDate: pgtype.Date{Time: now, Valid: true}, Status: "DRAFT",
				Subtotal: testNumeric(t, "100"), TaxTotal: testNumeric(t, "5"),
				TotalAmount: testNumeric(t, "105"),
				CreatedBy:   claims.UserID, CreatedAt: now, UpdatedAt: now,
			}, nil
		},
		listOrderItemsByOrderFn: func(ctx context.Context, id uuid.UUID) ([]database.OrderItem, error) {
			return []database.OrderItem{
				{ID: uuid.New(), OrderID: orderID, Name: "Masala Chai", Quantity: 1,
					UnitPrice: testNumeric(t, "30"), TaxRate: testNumeric(t, "5"),
					Subtotal: testNumeric(t, "30"), TaxAmount: testNumeric(t, "1.5"),
					TotalAmount: testNumeric(t, "31.5")},
			}, nil
		},
	}

	router, _ := setupOrderRouter(&mockOrderService{}, store)
	rr := doAuthRequest(t, router, "GET",
		"/outlets/"+outletID.String()+"/orders/"+orderID.String(), nil, claims)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeJSONResponse(t, rr)
	if resp["display_number"] != "012/2025-26" {
		t.Errorf("display_number: got %v, want 012/2025-26", resp["display_number"])
	}
	items, ok := resp["items"].([]interface{})
	if !ok || len(items) != 1 {
		t.Fatalf("expected 1 item, got %v", resp["items"])
	}
	item := items[0].(map[string]interface{})
	if item["total_amount"] != "31.50" {
		t.Errorf("item total_amount: got %v, want 31.50", item["total_amount"])
	}
}

// --- Update tests ---

func TestOrderUpdate_NotDraftConflict(t *testing.T) {
	outletID := uuid.New()
	claims := testClaims(outletID)
	svc := &mockOrderService{
		updateFn: func(ctx context.Context, req service.UpdateOrderRequest) (*service.OrderResult, error) {
			return nil, service.ErrOrderNotDraft
		},
	}

	router, _ := setupOrderRouter(svc, &mockOrderReadStore{})
	rr := doAuthRequest(t, router, "PUT",
		"/outlets/"+outletID.String()+"/orders/"+uuid.NewString(),
		map[string]interface{}{"notes": "late change"}, claims)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
}

// --- Transition tests ---

func TestOrderHold_Success(t *testing.T) {
	outletID := uuid.New()
	claims := testClaims(outletID)
	orderID := uuid.New()
	now := time.Now()

	svc := &mockOrderService{
		holdFn: func(ctx context.Context, id, oid uuid.UUID) (database.Order, error) {
			if id != orderID {
				t.Errorf("order id: got %v, want %v", id, orderID)
			}
			return database.Order{
				ID: orderID, OutletID: outletID, OrderNumber: 3, Status: "HELD",
				Subtotal: testNumeric(t, "0"), TaxTotal: testNumeric(t, "0"),
				TotalAmount: testNumeric(t, "0"),
				CreatedBy:   claims.UserID, CreatedAt: now, UpdatedAt: now,
			}, nil
		},
	}

	router, deps := setupOrderRouter(svc, &mockOrderReadStore{})
	rr := doAuthRequest(t, router, "POST",
		"/outlets/"+outletID.String()+"/orders/"+orderID.String()+"/hold", nil, claims)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeJSONResponse(t, rr)
	if resp["status"] != "HELD" {
		t.Errorf("status: got %v, want HELD", resp["status"])
	}
	if got := deps.hub.eventTypes(); len(got) != 1 || got[0] != ws.EventOrderUpdated {
		t.Errorf("broadcast events: got %v", got)
	}
}

func TestOrderCancel_AfterCompletionConflict(t *testing.T) {
	outletID := uuid.New()
	claims := testClaims(outletID)
	svc := &mockOrderService{
		cancelFn: func(ctx context.Context, id, oid uuid.UUID) (database.Order, error) {
			return database.Order{}, service.ErrInvalidTransition
		},
	}

	router, _ := setupOrderRouter(svc, &mockOrderReadStore{})
	rr := doAuthRequest(t, router, "POST",
		"/outlets/"+outletID.String()+"/orders/"+uuid.NewString()+"/cancel", nil, claims)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
}

func TestOrderResume_NotHeld(t *testing.T) {
	outletID := uuid.New()
	claims := testClaims(outletID)
	svc := &mockOrderService{
		resumeFn: func(ctx context.Context, id, oid uuid.UUID) (database.Order, error) {
			return database.Order{}, service.ErrOrderNotHeld
		},
	}

	router, _ := setupOrderRouter(svc, &mockOrderReadStore{})
	rr := doAuthRequest(t, router, "POST",
		"/outlets/"+outletID.String()+"/orders/"+uuid.NewString()+"/resume", nil, claims)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

// --- Delete tests ---

func TestOrderDelete_Success(t *testing.T) {
	outletID := uuid.New()
	claims := testClaims(outletID)
	svc := &mockOrderService{
		deleteFn: func(ctx context.Context, id, oid uuid.UUID) error { return nil },
	}

	router, deps := setupOrderRouter(svc, &mockOrderReadStore{})
	rr := doAuthRequest(t, router, "DELETE",
		"/outlets/"+outletID.String()+"/orders/"+uuid.NewString(), nil, claims)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNoContent)
	}
	if len(deps.activity.actions) != 1 || deps.activity.actions[0] != "order.delete" {
		t.Errorf("activity actions: got %v", deps.activity.actions)
	}
}

func TestOrderDelete_CompletedRejected(t *testing.T) {
	outletID := uuid.New()
	claims := testClaims(outletID)
	svc := &mockOrderService{
		deleteFn: func(ctx context.Context, id, oid uuid.UUID) error {
			return service.ErrOrderNotDeletable
		},
	}

	router, _ := setupOrderRouter(svc, &mockOrderReadStore{})
	rr := doAuthRequest(t, router, "DELETE",
		"/outlets/"+outletID.String()+"/orders/"+uuid.NewString(), nil, claims)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
}
