package app_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fulfillment-orchestrator/internal/app"
	"fulfillment-orchestrator/internal/core"
	"fulfillment-orchestrator/internal/store/memstore"
)

func newService(t *testing.T) app.ApplicationService {
	t.Helper()
	store := memstore.NewDemo()
	return app.NewAppService(store, core.NewOrchestrator(store, core.DefaultPlanningConfig()), nil)
}

func TestGeneratePlan_DemoOrder(t *testing.T) {
	svc := newService(t)

	res, err := svc.GeneratePlan(context.Background(), app.GeneratePlanRequest{CompanyCode: memstore.DemoCompany, OrderID: 1})
	require.NoError(t, err)
	assert.True(t, res.Plan.CanProceed)
	assert.Equal(t, core.PolicyShipPartial, res.Plan.Policy)
	assert.NotEmpty(t, res.Plan.Digest)
}

func TestGeneratePlan_OtherCompanyLooksMissing(t *testing.T) {
	svc := newService(t)

	_, err := svc.GeneratePlan(context.Background(), app.GeneratePlanRequest{CompanyCode: "2000", OrderID: 1})
	assert.ErrorIs(t, err, core.ErrOrderNotFound)
}

func TestGeneratePlan_RejectsUnknownOverride(t *testing.T) {
	svc := newService(t)

	_, err := svc.GeneratePlan(context.Background(), app.GeneratePlanRequest{
		CompanyCode: memstore.DemoCompany, OrderID: 1, PolicyOverride: "SHIP_WHENEVER",
	})
	assert.ErrorIs(t, err, core.ErrUnknownPolicy)
}

func TestExecutePlan_RoundTrip(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	planned, err := svc.GeneratePlan(ctx, app.GeneratePlanRequest{CompanyCode: memstore.DemoCompany, OrderID: 1})
	require.NoError(t, err)

	executed, err := svc.ExecutePlan(ctx, app.ExecutePlanRequest{CompanyCode: memstore.DemoCompany, OrderID: 1, Plan: planned.Plan})
	require.NoError(t, err)
	assert.True(t, executed.Result.Success)
	assert.Equal(t, core.OrderStatusProcessing, executed.Result.OrderStatus)

	_, err = svc.ExecutePlan(ctx, app.ExecutePlanRequest{CompanyCode: memstore.DemoCompany, OrderID: 1})
	assert.ErrorIs(t, err, app.ErrInvalidRequest)
}

func TestGeneratePlans_MixedBatch(t *testing.T) {
	svc := newService(t)

	res, err := svc.GeneratePlans(context.Background(), app.BatchPlanRequest{
		CompanyCode: memstore.DemoCompany, OrderIDs: []int{3, 999, 1},
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 3)

	assert.Equal(t, 3, res.Results[0].OrderID)
	assert.NotNil(t, res.Results[0].Plan)
	assert.Equal(t, 999, res.Results[1].OrderID)
	assert.ErrorIs(t, res.Results[1].Err, core.ErrOrderNotFound)
	assert.NotEmpty(t, res.Results[1].Error)
	assert.Equal(t, 1, res.Results[2].OrderID)
	assert.NotNil(t, res.Results[2].Plan)

	_, err = svc.GeneratePlans(context.Background(), app.BatchPlanRequest{CompanyCode: memstore.DemoCompany})
	assert.ErrorIs(t, err, app.ErrInvalidRequest)
}

func TestGetStockAvailability(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	res, err := svc.GetStockAvailability(ctx, app.StockQuery{
		CompanyCode: memstore.DemoCompany,
		Keys: []core.StockKey{
			{ProductID: 1, WarehouseCode: "CT"},
			{ProductID: 5, WarehouseCode: "JHB"},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Stock, 2)
	assert.Equal(t, "20", res.Stock[0].Available.String())
	assert.Equal(t, core.StockKey{ProductID: 5, WarehouseCode: "JHB"}, res.Stock[1].Key)
	assert.True(t, res.Stock[1].Available.IsZero(), "a missing row reads as zero stock")

	_, err = svc.GetStockAvailability(ctx, app.StockQuery{
		CompanyCode: memstore.DemoCompany,
		Keys:        []core.StockKey{{ProductID: 1, WarehouseCode: "DBN"}},
	})
	assert.ErrorIs(t, err, app.ErrWarehouseNotFound)

	_, err = svc.GetStockAvailability(ctx, app.StockQuery{CompanyCode: memstore.DemoCompany})
	assert.ErrorIs(t, err, app.ErrInvalidRequest)
}

func TestAdvanceDocument(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	planned, err := svc.GeneratePlan(ctx, app.GeneratePlanRequest{CompanyCode: memstore.DemoCompany, OrderID: 1})
	require.NoError(t, err)
	executed, err := svc.ExecutePlan(ctx, app.ExecutePlanRequest{CompanyCode: memstore.DemoCompany, OrderID: 1, Plan: planned.Plan})
	require.NoError(t, err)
	slip := executed.Result.CreatedDocuments[0]
	require.Equal(t, core.DocumentPickingSlip, slip.Kind)

	t.Run("moves the document", func(t *testing.T) {
		res, err := svc.AdvanceDocument(ctx, app.AdvanceDocumentRequest{
			CompanyCode: memstore.DemoCompany, Kind: "picking-slip", DocumentID: slip.ID, Status: "PICKING",
		})
		require.NoError(t, err)
		assert.Equal(t, core.DocumentStatusPicking, res.Document.Status)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := svc.AdvanceDocument(ctx, app.AdvanceDocumentRequest{
			CompanyCode: memstore.DemoCompany, Kind: "invoice", DocumentID: slip.ID, Status: "PICKED",
		})
		assert.ErrorIs(t, err, app.ErrInvalidRequest)
	})

	t.Run("other company", func(t *testing.T) {
		_, err := svc.AdvanceDocument(ctx, app.AdvanceDocumentRequest{
			CompanyCode: "2000", Kind: "PICKING_SLIP", DocumentID: slip.ID, Status: "PICKED",
		})
		assert.ErrorIs(t, err, core.ErrDocumentNotFound)
	})

	t.Run("forbidden transition", func(t *testing.T) {
		_, err := svc.AdvanceDocument(ctx, app.AdvanceDocumentRequest{
			CompanyCode: memstore.DemoCompany, Kind: "PICKING_SLIP", DocumentID: slip.ID, Status: "RECEIVED",
		})
		var bad *core.InvalidTransitionError
		assert.ErrorAs(t, err, &bad)
	})
}

func TestPlanSchema(t *testing.T) {
	schema := newService(t).PlanSchema()
	require.NotNil(t, schema)
	assert.Equal(t, "OrchestrationPlan", schema.Title)

	digest, ok := schema.Properties.Get("digest")
	require.True(t, ok)
	assert.Equal(t, "string", digest.Type)

	_, ok = schema.Properties.Get("snapshot")
	assert.True(t, ok)
}
