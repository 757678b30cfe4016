package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	webAdapter "fulfillment-orchestrator/internal/adapters/web"
	"fulfillment-orchestrator/internal/app"
	"fulfillment-orchestrator/internal/config"
	"fulfillment-orchestrator/internal/core"
	"fulfillment-orchestrator/internal/events"
	"fulfillment-orchestrator/internal/logging"
	"fulfillment-orchestrator/internal/observability"
	"fulfillment-orchestrator/internal/store"
)

func main() {
	demo := flag.Bool("demo", false, "serve the in-memory demo data instead of DATABASE_URL")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.AppEnv)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg)
	if err != nil {
		logger.Fatal("tracing", zap.Error(err))
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	st, closeStore, err := store.Open(ctx, cfg.DatabaseURL, *demo, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer closeStore()

	var publisher interface {
		core.WaveEventPublisher
		Close() error
	} = events.NopPublisher{}
	if cfg.KafkaBroker != "" {
		publisher = events.NewKafkaPublisher(cfg.KafkaBroker, config.WaveExecutedTopic, logger)
		logger.Info("publishing wave events", zap.String("broker", cfg.KafkaBroker), zap.String("topic", config.WaveExecutedTopic))
	}
	defer publisher.Close()

	orchestrator := core.NewOrchestrator(st, cfg.Planning, core.WithLogger(logger), core.WithPublisher(publisher))
	svc := app.NewAppService(st, orchestrator, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           webAdapter.NewHandler(svc, cfg.AllowedOrigins, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	logger.Info("server starting", zap.String("port", cfg.ServerPort), zap.Bool("demo", *demo))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server", zap.Error(err))
	}
	logger.Info("server stopped")
}
