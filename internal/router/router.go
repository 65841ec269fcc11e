package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neanvt/restro-pos/internal/config"
	"github.com/neanvt/restro-pos/internal/database"
	"github.com/neanvt/restro-pos/internal/handler"
	mw "github.com/neanvt/restro-pos/internal/middleware"
	"github.com/neanvt/restro-pos/internal/printer"
	"github.com/neanvt/restro-pos/internal/retry"
	"github.com/neanvt/restro-pos/internal/sequence"
	"github.com/neanvt/restro-pos/internal/service"
	"github.com/neanvt/restro-pos/internal/ws"
)

// New creates a Chi router with all application routes wired up.
// Applies authentication and outlet scoping middleware as needed.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub, alloc *sequence.Allocator) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/outlets/{oid}/events", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Shared collaborators
	activity := service.NewActivityRecorder(queries)
	spooler := printer.NewSpooler(hub)
	policy := retry.Policy{} // zero value picks the package defaults

	orderService := service.NewOrderService(queries, pool,
		func(db database.DBTX) service.OrderStore { return database.New(db) },
		alloc, policy)
	ticketService := service.NewTicketService(queries, pool,
		func(db database.DBTX) service.TicketStore { return database.New(db) },
		alloc, policy)
	invoiceService := service.NewInvoiceService(queries, pool,
		func(db database.DBTX) service.InvoiceStore { return database.New(db) },
		alloc, policy)

	orderHandler := handler.NewOrderHandler(orderService, queries, hub, activity)
	ticketHandler := handler.NewTicketHandler(ticketService, queries, hub, activity, spooler)
	invoiceHandler := handler.NewInvoiceHandler(invoiceService, queries, hub, activity, spooler)
	reportsHandler := handler.NewReportsHandler(queries)

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		// Outlet-scoped routes
		r.Route("/outlets/{oid}", func(r chi.Router) {
			r.Use(mw.RequireOutlet)

			r.Route("/orders", func(r chi.Router) {
				orderHandler.RegisterRoutes(r)
				ticketHandler.RegisterOrderRoutes(r)
				invoiceHandler.RegisterOrderRoutes(r)
			})
			r.Route("/tickets", ticketHandler.RegisterRoutes)
			r.Route("/invoices", invoiceHandler.RegisterRoutes)
			r.Route("/reports", reportsHandler.RegisterRoutes)
		})
	})

	return r
}
