package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"fulfillment-orchestrator/internal/core"
)

// Service identity reported to tracing and events.
const (
	ServiceName    = "fulfillment-orchestrator"
	ServiceVersion = "0.1.0"
)

// WaveExecutedTopic carries one message per committed wave.
const WaveExecutedTopic = "fulfillment.wave-executed"

// Config holds environment-specific configuration.
type Config struct {
	DatabaseURL    string
	ServerPort     string
	AllowedOrigins string

	// KafkaBroker is optional; without it wave events are not published.
	KafkaBroker string
	// OtelEndpoint is optional; without it spans stay in process.
	OtelEndpoint string

	LogLevel string
	AppEnv   string

	Planning core.PlanningConfig
}

// Load reads .env (if present) and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		ServerPort:     getEnvOrDefault("SERVER_PORT", "8080"),
		AllowedOrigins: os.Getenv("ALLOWED_ORIGINS"),
		KafkaBroker:    os.Getenv("KAFKA_BROKER"),
		OtelEndpoint:   os.Getenv("OTEL_ENDPOINT"),
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
		AppEnv:         getEnvOrDefault("APP_ENV", "development"),
	}

	planning, err := loadPlanning()
	if err != nil {
		return nil, err
	}
	cfg.Planning = planning
	return cfg, nil
}

func loadPlanning() (core.PlanningConfig, error) {
	p := core.DefaultPlanningConfig()

	if v := os.Getenv("FULFILLMENT_MAX_BOM_DEPTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return p, fmt.Errorf("FULFILLMENT_MAX_BOM_DEPTH must be a positive integer, got %q", v)
		}
		p.MaxBOMDepth = n
	}
	if v := os.Getenv("FULFILLMENT_WAREHOUSE_ORDER"); v != "" {
		for _, code := range strings.Split(v, ",") {
			if code = strings.TrimSpace(code); code != "" {
				p.WarehouseOrder = append(p.WarehouseOrder, code)
			}
		}
	}
	if v := os.Getenv("FULFILLMENT_ALLOW_BELOW_FLOOR_TRANSFERS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return p, fmt.Errorf("FULFILLMENT_ALLOW_BELOW_FLOOR_TRANSFERS must be true or false, got %q", v)
		}
		p.AllowBelowFloorTransfers = b
	}
	if v := os.Getenv("FULFILLMENT_STALE_TOLERANCE"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil || d.IsNegative() {
			return p, fmt.Errorf("FULFILLMENT_STALE_TOLERANCE must be a non-negative number, got %q", v)
		}
		p.StaleTolerance = d
	}
	if v := os.Getenv("FULFILLMENT_PLAN_PARALLELISM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return p, fmt.Errorf("FULFILLMENT_PLAN_PARALLELISM must be a positive integer, got %q", v)
		}
		p.PlanParallelism = n
	}
	return p, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
