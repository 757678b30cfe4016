package pgstore_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"fulfillment-orchestrator/internal/core"
	"fulfillment-orchestrator/internal/db"
	"fulfillment-orchestrator/internal/store/pgstore"
	"fulfillment-orchestrator/migrations"
)

// setupTestDB connects to TEST_DATABASE_URL, or starts a throwaway Postgres
// container when it is unset, then migrates and loads the demo data.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	_ = godotenv.Load("../../../.env")
	ctx := context.Background()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		if testing.Short() {
			t.Skip("TEST_DATABASE_URL not set and -short given, skipping integration test")
		}
		testcontainers.SkipIfProviderIsNotHealthy(t)
		ctr, err := postgres.Run(ctx, "postgres:16-alpine",
			postgres.WithDatabase("fulfillment_test"),
			postgres.WithUsername("app"),
			postgres.WithPassword("app"),
			postgres.BasicWaitStrategies(),
		)
		testcontainers.CleanupContainer(t, ctr)
		require.NoError(t, err)
		dbURL, err = ctr.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	pool, err := db.NewPool(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	t.Cleanup(pool.Close)

	require.NoError(t, db.Migrate(ctx, pool, migrations.Files, nil))
	require.NoError(t, pgstore.RestoreDemo(ctx, pool))
	return pool
}

func orchestrator(store *pgstore.Store) *core.Orchestrator {
	return core.NewOrchestrator(store, core.DefaultPlanningConfig())
}

func availableAt(t *testing.T, store *pgstore.Store, productID int, wh string) decimal.Decimal {
	t.Helper()
	levels, err := store.GetStockLevels(context.Background(), []core.StockKey{{ProductID: productID, WarehouseCode: wh}})
	require.NoError(t, err)
	if len(levels) == 0 {
		return decimal.Zero
	}
	return levels[0].Available()
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestPGStore_ReadsDemoData(t *testing.T) {
	pool := setupTestDB(t)
	store := pgstore.New(pool)
	ctx := context.Background()

	order, err := store.GetOrderWithLines(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "SO-2026-00003", order.OrderNumber)
	assert.Equal(t, core.PolicyShipPartial, order.CompanyPolicy)
	assert.Nil(t, order.Policy)
	require.Len(t, order.Lines, 2)
	assert.Equal(t, "CT", order.Lines[1].WarehouseCode)
	assert.Equal(t, "C-LEG", order.Lines[1].ProductCode)

	_, err = store.GetOrderWithLines(ctx, 999)
	assert.ErrorIs(t, err, core.ErrOrderNotFound)

	bom, err := store.GetBOMComponents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, bom, 3)
	assert.True(t, bom[2].IsOptional)

	sup, err := store.GetDefaultSupplier(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, sup, "kits are assembled, not bought")
	sup, err = store.GetDefaultSupplier(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "SUP-METRO", sup.Code)

	levels, err := store.GetStockLevels(ctx, []core.StockKey{
		{ProductID: 1, WarehouseCode: "JHB"}, {ProductID: 1, WarehouseCode: "CT"}, {ProductID: 5, WarehouseCode: "JHB"},
	})
	require.NoError(t, err)
	assert.Len(t, levels, 2, "rows that do not exist are absent")
}

func TestPGStore_WaveAndLifecycle(t *testing.T) {
	pool := setupTestDB(t)
	store := pgstore.New(pool)
	o := orchestrator(store)
	ctx := context.Background()

	plan, err := o.GeneratePlan(ctx, 1, nil)
	require.NoError(t, err)
	require.True(t, plan.CanProceed)

	res, err := o.ExecutePlan(ctx, 1, plan)
	require.NoError(t, err)
	require.Len(t, res.CreatedDocuments, 2, "picking slip and transfer")
	assert.Equal(t, core.OrderStatusProcessing, res.OrderStatus)
	assert.True(t, availableAt(t, store, 1, "JHB").IsZero())
	assert.True(t, availableAt(t, store, 1, "CT").Equal(decimal.NewFromInt(14)))

	docs, err := store.ListOrderDocuments(ctx, 1)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, res.WaveID, docs[0].WaveID)

	slip := res.CreatedDocuments[0]
	require.Equal(t, core.DocumentPickingSlip, slip.Kind)
	_, err = o.AdvanceDocument(ctx, slip.Kind, slip.ID, core.DocumentStatusPicking)
	require.NoError(t, err)
	_, err = o.AdvanceDocument(ctx, slip.Kind, slip.ID, core.DocumentStatusPicked)
	require.NoError(t, err)

	transfer := res.CreatedDocuments[1]
	_, err = o.AdvanceDocument(ctx, transfer.Kind, transfer.ID, core.DocumentStatusInTransit)
	require.NoError(t, err)
	_, err = o.AdvanceDocument(ctx, transfer.Kind, transfer.ID, core.DocumentStatusReceived)
	require.NoError(t, err)

	assert.True(t, availableAt(t, store, 1, "JHB").Equal(decimal.NewFromInt(6)))

	_, err = o.AdvanceDocument(ctx, slip.Kind, slip.ID, core.DocumentStatusCancelled)
	var bad *core.InvalidTransitionError
	require.ErrorAs(t, err, &bad, "a picked slip cannot be cancelled")
}

func TestPGStore_ShortKitWavePersistsOptionalComponents(t *testing.T) {
	pool := setupTestDB(t)
	store := pgstore.New(pool)
	o := orchestrator(store)
	ctx := context.Background()

	// Order 2: two desk kits at JHB, which holds 6 of the 8 legs and no bolts.
	plan, err := o.GeneratePlan(ctx, 2, nil)
	require.NoError(t, err)
	require.True(t, plan.CanProceed, plan.BlockedReason)

	res, err := o.ExecutePlan(ctx, 2, plan)
	require.NoError(t, err)
	require.Len(t, res.CreatedDocuments, 2, "job card and component purchase order")
	job := res.CreatedDocuments[0]
	require.Equal(t, core.DocumentJobCard, job.Kind)
	assert.Equal(t, core.DocumentPurchaseOrder, res.CreatedDocuments[1].Kind)

	doc, err := store.GetDocument(ctx, core.DocumentJobCard, job.ID)
	require.NoError(t, err)
	require.Len(t, doc.Components, 3)
	bolts := doc.Components[2]
	assert.Equal(t, 5, bolts.ProductID)
	assert.True(t, bolts.IsOptional)
	assert.True(t, bolts.Reserved.IsZero())
	assert.False(t, doc.Components[0].IsOptional)
	assert.True(t, availableAt(t, store, 3, "JHB").IsZero(), "every leg on hand is reserved")
}

func TestPGStore_RollbackLeavesNoTrace(t *testing.T) {
	pool := setupTestDB(t)
	store := pgstore.New(pool)
	ctx := context.Background()

	err := store.ExecuteWave(ctx, 1, func(ctx context.Context, tx core.WaveTx) error {
		doc, err := tx.CreatePickingSlip(ctx, core.PickingSlipSpec{
			OrderID: 1, WaveID: "7c9e6679-7425-40de-944b-e07fc1f90ae7",
			Plan: core.PickingSlipPlan{WarehouseCode: "JHB", Lines: []core.PickingSlipLinePlan{
				{OrderLineID: 1, ProductID: 1, Quantity: decimal.NewFromInt(4)},
			}},
		})
		if err != nil {
			return err
		}
		if _, err := tx.Reserve(ctx, "7c9e6679-7425-40de-944b-e07fc1f90ae7", 1, core.ReservationRequest{
			Key: core.StockKey{ProductID: 1, WarehouseCode: "JHB"}, Quantity: decimal.NewFromInt(4),
			DocumentType: doc.Kind, DocumentID: doc.ID, OrderLineID: 1,
		}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.EqualError(t, err, "abort")

	docs, err := store.ListOrderDocuments(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.True(t, availableAt(t, store, 1, "JHB").Equal(decimal.NewFromInt(4)))
}

func TestPGStore_ConditionalReserve(t *testing.T) {
	pool := setupTestDB(t)
	store := pgstore.New(pool)
	ctx := context.Background()

	err := store.ExecuteWave(ctx, 1, func(ctx context.Context, tx core.WaveTx) error {
		doc, err := tx.CreatePickingSlip(ctx, core.PickingSlipSpec{OrderID: 1, WaveID: "7c9e6679-7425-40de-944b-e07fc1f90ae7",
			Plan: core.PickingSlipPlan{WarehouseCode: "JHB"}})
		if err != nil {
			return err
		}
		_, err = tx.Reserve(ctx, "7c9e6679-7425-40de-944b-e07fc1f90ae7", 1, core.ReservationRequest{
			Key: core.StockKey{ProductID: 1, WarehouseCode: "JHB"}, Quantity: decimal.NewFromInt(5),
			DocumentType: doc.Kind, DocumentID: doc.ID,
		})
		return err
	})
	var conflict *core.ReservationConflictError
	require.ErrorAs(t, err, &conflict)
	assert.True(t, conflict.Available.Equal(decimal.NewFromInt(4)))
}

func TestPGStore_ConcurrentWavesNeverOversell(t *testing.T) {
	pool := setupTestDB(t)
	store := pgstore.New(pool)
	o := orchestrator(store)
	ctx := context.Background()

	// Orders 1 and 3 both want chairs; plan them against the same stock.
	planA, err := o.GeneratePlan(ctx, 1, nil)
	require.NoError(t, err)
	planB, err := o.GeneratePlan(ctx, 3, nil)
	require.NoError(t, err)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, p := range []*core.OrchestrationPlan{planA, planB} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = o.ExecutePlan(ctx, p.OrderID, p)
		}()
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var stale *core.StalePlanError
		assert.True(t, errors.As(err, &stale), "unexpected error: %v", err)
	}
	assert.GreaterOrEqual(t, succeeded, 1)
	assert.False(t, availableAt(t, store, 1, "JHB").IsNegative())
	assert.False(t, availableAt(t, store, 1, "CT").IsNegative())
}
