// fulfil is the one-shot fulfillment CLI.
//
// Usage:
//
//	fulfil [-demo] [-company 1000] plan 1 > plan.json
//	fulfil [-demo] [-company 1000] execute 1 < plan.json
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"fulfillment-orchestrator/internal/adapters/cli"
	"fulfillment-orchestrator/internal/app"
	"fulfillment-orchestrator/internal/config"
	"fulfillment-orchestrator/internal/core"
	"fulfillment-orchestrator/internal/logging"
	"fulfillment-orchestrator/internal/store"
)

func main() {
	demo := flag.Bool("demo", false, "use the in-memory demo data instead of DATABASE_URL")
	company := flag.String("company", "1000", "company code")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	// Logs go to stderr so stdout stays pipeable JSON.
	logger, err := logging.New("warn", cfg.AppEnv)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	st, closeStore, err := store.Open(ctx, cfg.DatabaseURL, *demo, logger)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer closeStore()

	orchestrator := core.NewOrchestrator(st, cfg.Planning, core.WithLogger(logger))
	svc := app.NewAppService(st, orchestrator, logger)

	if err := cli.Run(ctx, svc, *company, flag.Args(), os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		closeStore()
		if errors.Is(err, cli.ErrUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
