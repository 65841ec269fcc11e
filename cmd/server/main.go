package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neanvt/restro-pos/internal/config"
	"github.com/neanvt/restro-pos/internal/database"
	"github.com/neanvt/restro-pos/internal/router"
	"github.com/neanvt/restro-pos/internal/sequence"
	"github.com/neanvt/restro-pos/internal/ws"
)

func main() {
	cfg := config.Load()

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to create connection pool: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Unable to ping database: %v", err)
	}
	log.Println("Connected to database")

	queries := database.New(pool)

	hub := ws.NewHub()
	go hub.Run()

	// Number allocation runs on the pool directly, never inside an entity
	// transaction.
	alloc := sequence.NewAllocator(queries)
	janitor := sequence.NewJanitor(queries, cfg.CounterRetention)
	go janitor.Run(ctx, 24*time.Hour)

	r := router.New(cfg, queries, pool, hub, alloc)

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("Starting server on %s", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatal(err)
	}
}
