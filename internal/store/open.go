// Package store picks the persistence backend for the binaries.
package store

import (
	"context"

	"go.uber.org/zap"

	"fulfillment-orchestrator/internal/app"
	"fulfillment-orchestrator/internal/db"
	"fulfillment-orchestrator/internal/store/memstore"
	"fulfillment-orchestrator/internal/store/pgstore"
)

// Open returns the in-memory demo store when demo is set, otherwise a
// PostgreSQL store on databaseURL. closeFn releases the backend.
func Open(ctx context.Context, databaseURL string, demo bool, logger *zap.Logger) (s app.Store, closeFn func(), err error) {
	if demo {
		logger.Info("using in-memory demo store", zap.String("company", memstore.DemoCompany))
		return memstore.NewDemo(), func() {}, nil
	}
	pool, err := db.NewPool(ctx, databaseURL)
	if err != nil {
		return nil, nil, err
	}
	return pgstore.New(pool), pool.Close, nil
}
