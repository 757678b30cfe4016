// restore-seed wipes the fulfillment tables and reloads the demo data set
// (two warehouses, a chair, a desk kit with components, three orders).
// Run it after manual testing has consumed the demo stock.
//
// Usage: go run ./cmd/restore-seed
package main

import (
	"context"
	"log"

	"fulfillment-orchestrator/internal/config"
	"fulfillment-orchestrator/internal/db"
	"fulfillment-orchestrator/internal/store/pgstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer pool.Close()

	log.Println("Restoring demo data...")
	if err := pgstore.RestoreDemo(ctx, pool); err != nil {
		log.Fatalf("Failed to restore demo data: %v", err)
	}
	log.Println("Demo data restored.")
}
