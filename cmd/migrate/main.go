// migrate applies the embedded SQL migrations to DATABASE_URL.
//
// Usage: go run ./cmd/migrate
package main

import (
	"context"
	"log"

	"fulfillment-orchestrator/internal/config"
	"fulfillment-orchestrator/internal/db"
	"fulfillment-orchestrator/internal/logging"
	"fulfillment-orchestrator/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.AppEnv)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[CONNECT] %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, migrations.Files, logger); err != nil {
		log.Fatalf("[MIGRATE] %v", err)
	}
	log.Println("[DONE] All migrations processed.")
}
