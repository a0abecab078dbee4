package main

import (
	"context"
	"database/sql"
	"log"
	"time"

	"shopgate/internal/checkout"
	ordersdb "shopgate/internal/db/orders"
)

// buildOrderStore wires the durable order store from DATABASE_URL. If the DSN
// is empty or initialization fails, it falls back to the in-memory store. The
// returned cleanup closes any external resources.
func buildOrderStore(ctx context.Context, dsn string, logf func(format string, args ...any)) (checkout.OrderStore, func()) {
	if logf == nil {
		logf = log.Printf
	}

	cleanup := func() {}
	var store checkout.OrderStore = checkout.NewInMemoryOrderStore()

	if dsn != "" {
		sqlDB, err := sql.Open("pgx", dsn)
		if err != nil {
			logf("postgres open failed, falling back to in-memory orders: %v", err)
		} else {
			setupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			pgStore, err := ordersdb.NewOrderStoreWithSchema(setupCtx, sqlDB)
			if err != nil {
				logf("postgres init failed, falling back to in-memory orders: %v", err)
				_ = sqlDB.Close()
			} else {
				logf("postgres orders enabled")
				store = pgStore
				cleanup = func() {
					if err := sqlDB.Close(); err != nil {
						logf("close postgres: %v", err)
					}
				}
			}
		}
	}

	return store, cleanup
}
