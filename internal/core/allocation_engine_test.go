package core_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fulfillment-orchestrator/internal/core"
)

func TestAllocation_PickThenTransferFromLargestSurplus(t *testing.T) {
	s := newTestStore(t)
	setStock(s, prodChair, "JHB", "4", "0")
	setStock(s, prodChair, "CT", "20", "5")
	addOrder(s, 1, line(prodChair, "10", "JHB"))

	plan := mustPlan(t, newOrchestrator(s), 1, policy(core.PolicyShipPartial))

	require.Len(t, plan.Lines, 1)
	l := plan.Lines[0]
	assert.Equal(t, core.AllocationPartialTransfer, l.Kind)
	assertDec(t, "4", l.FromStock, "picked at JHB")
	assertDec(t, "6", l.Transfer, "transferred from CT")
	assert.True(t, l.Backorder.IsZero())

	require.Len(t, plan.PickingSlips, 1)
	assert.Equal(t, "JHB", plan.PickingSlips[0].WarehouseCode)
	assertDec(t, "4", plan.PickingSlips[0].Lines[0].Quantity, "slip quantity")

	require.Len(t, plan.Transfers, 1)
	tr := plan.Transfers[0]
	assert.Equal(t, "CT", tr.FromWarehouse)
	assert.Equal(t, "JHB", tr.ToWarehouse)
	assertDec(t, "6", tr.Lines[0].Quantity, "transfer quantity")
	assert.False(t, tr.Lines[0].BelowReorderPoint, "CT keeps 14, above its reorder point")

	assert.Empty(t, plan.PurchaseOrders)
	assert.True(t, plan.CanProceed)
	assert.Empty(t, plan.BlockedReason)
}

func TestAllocation_KitWithComponentShortage(t *testing.T) {
	s := newTestStore(t)
	setStock(s, compA, "JHB", "1", "0")
	setStock(s, compB, "JHB", "10", "0")
	addOrder(s, 1, line(prodKit, "1", "JHB"))

	plan := mustPlan(t, newOrchestrator(s), 1, policy(core.PolicyShipPartial))

	require.Len(t, plan.JobCards, 1)
	job := plan.JobCards[0]
	assert.Equal(t, prodKit, job.ProductID)
	assert.Equal(t, "JHB", job.WarehouseCode)
	assertDec(t, "1", job.Quantity, "job quantity")
	assert.False(t, job.ComponentAvailability.AllComponentsAvailable)
	require.Len(t, job.ComponentAvailability.Shortfalls, 1)
	short := job.ComponentAvailability.Shortfalls[0]
	assert.Equal(t, compA, short.ProductID)
	assertDec(t, "2", short.Required, "A required")
	assertDec(t, "1", short.Available, "A available")
	assertDec(t, "1", short.Shortfall, "A shortfall")

	require.Len(t, plan.PurchaseOrders, 1)
	po := plan.PurchaseOrders[0]
	assert.Equal(t, "SUP-A", po.SupplierCode)
	require.Len(t, po.Lines, 1)
	assert.Equal(t, compA, po.Lines[0].ProductID)
	assertDec(t, "1", po.Lines[0].Quantity, "purchased A")
	assert.Equal(t, core.ReasonComponentShortage, po.Lines[0].Reason)

	l := plan.Lines[0]
	assert.Equal(t, core.AllocationAssemblyRequired, l.Kind)
	assertDec(t, "1", l.Assembly, "assembly")
	assert.Contains(t, plan.Warnings, "line 1: job card for 1 KIT-K at JHB is short of components")
}

func TestAllocation_KitPrefersFinishedStock(t *testing.T) {
	s := newTestStore(t)
	setStock(s, prodKit, "JHB", "2", "0")
	setStock(s, compA, "JHB", "10", "0")
	setStock(s, compB, "JHB", "10", "0")
	addOrder(s, 1, line(prodKit, "3", "JHB"))

	plan := mustPlan(t, newOrchestrator(s), 1, policy(core.PolicyShipComplete))

	l := plan.Lines[0]
	assertDec(t, "2", l.FromStock, "finished kits picked")
	assertDec(t, "1", l.Assembly, "kits assembled")
	require.NotNil(t, l.Job)
	assert.True(t, l.Job.AllComponentsAvailable)
	assert.True(t, plan.CanProceed, "a fully sourced job card is complete now")
	assert.Empty(t, plan.PurchaseOrders)
}

func TestAllocation_OptionalShortfallOnlyWarns(t *testing.T) {
	s := newTestStore(t)
	s.SetBOM(prodKit, []core.BOMComponent{
		{ComponentProductID: compA, QuantityPerUnit: dec("2"), SortOrder: 1},
		{ComponentProductID: compGlue, QuantityPerUnit: dec("1"), IsOptional: true, SortOrder: 2},
	})
	setStock(s, compA, "JHB", "2", "0")
	addOrder(s, 1, line(prodKit, "1", "JHB"))

	plan := mustPlan(t, newOrchestrator(s), 1, policy(core.PolicyShipComplete))

	job := plan.JobCards[0]
	assert.True(t, job.ComponentAvailability.AllComponentsAvailable)
	require.Len(t, job.ComponentAvailability.Shortfalls, 1)
	assert.True(t, job.ComponentAvailability.Shortfalls[0].IsOptional)
	assert.Empty(t, plan.PurchaseOrders, "optional shortfalls are not purchased")
	assert.Contains(t, plan.Warnings, "line 1: optional components short for KIT-K: GLUE")
	assert.True(t, plan.CanProceed)
}

func TestAllocation_BackorderToDefaultSupplier(t *testing.T) {
	s := newTestStore(t)
	addOrder(s, 1, line(prodLamp, "3", "JHB"))

	plan := mustPlan(t, newOrchestrator(s), 1, policy(core.PolicyShipPartial))

	l := plan.Lines[0]
	assert.Equal(t, core.AllocationBackorder, l.Kind)
	assertDec(t, "3", l.Backorder, "backorder")
	require.Len(t, plan.PurchaseOrders, 1)
	assert.Equal(t, core.ReasonFinishedGoodsBackorder, plan.PurchaseOrders[0].Lines[0].Reason)
	assert.True(t, plan.CanProceed, "the purchase order is work for this wave")
	assert.Empty(t, plan.BlockedReason)

	complete := mustPlan(t, newOrchestrator(s), 1, policy(core.PolicyShipComplete))
	assert.False(t, complete.CanProceed)
	assert.Equal(t, "SHIP_COMPLETE: lines not fully available now: 1", complete.BlockedReason)
}

func TestAllocation_ShortKitExecutesUnderShipPartial(t *testing.T) {
	s := newTestStore(t)
	setStock(s, compA, "JHB", "1", "0")
	setStock(s, compB, "JHB", "10", "0")
	addOrder(s, 1, line(prodKit, "1", "JHB"))
	o := newOrchestrator(s)

	complete := mustPlan(t, o, 1, policy(core.PolicyShipComplete))
	assert.False(t, complete.CanProceed, "SHIP_COMPLETE holds the order")

	plan := mustPlan(t, o, 1, policy(core.PolicyShipPartial))
	require.True(t, plan.CanProceed, plan.BlockedReason)
	require.Len(t, plan.JobCards, 1)
	require.Len(t, plan.PurchaseOrders, 1)

	res, err := o.ExecutePlan(context.Background(), 1, plan)
	require.NoError(t, err)
	var kinds []core.DocumentKind
	for _, d := range res.CreatedDocuments {
		kinds = append(kinds, d.Kind)
	}
	assert.Equal(t, []core.DocumentKind{core.DocumentJobCard, core.DocumentPurchaseOrder}, kinds)
	assert.Equal(t, core.OrderStatusProcessing, res.OrderStatus)
	assertDec(t, "0", available(s, compA, "JHB"), "the one A on hand is reserved")
}

func TestAllocation_OrderWithoutLinesIsBlocked(t *testing.T) {
	s := newTestStore(t)
	addOrder(s, 1)
	o := newOrchestrator(s)

	for _, p := range []core.FulfillmentPolicy{core.PolicyShipComplete, core.PolicyShipPartial} {
		plan := mustPlan(t, o, 1, policy(p))
		assert.False(t, plan.CanProceed, "%s", p)
		assert.Equal(t, "order has no lines", plan.BlockedReason)

		_, err := o.ExecutePlan(context.Background(), 1, plan)
		var blocked *core.PolicyBlockedError
		assert.ErrorAs(t, err, &blocked)
	}
}

func TestAllocation_KitTransfersFinishedSurplusBeforeAssembling(t *testing.T) {
	s := newTestStore(t)
	setStock(s, prodKit, "JHB", "1", "0")
	setStock(s, prodKit, "CT", "5", "2")
	setStock(s, compA, "JHB", "10", "0")
	setStock(s, compB, "JHB", "10", "0")
	addOrder(s, 1, line(prodKit, "6", "JHB"))

	plan := mustPlan(t, newOrchestrator(s), 1, policy(core.PolicyShipPartial))

	l := plan.Lines[0]
	assert.Equal(t, core.AllocationAssemblyRequired, l.Kind)
	assertDec(t, "1", l.FromStock, "picked at JHB")
	assertDec(t, "3", l.Transfer, "CT surplus above its reorder point")
	assertDec(t, "2", l.Assembly, "only the rest is assembled")
	require.Len(t, l.Transfers, 1)
	assert.Equal(t, "CT", l.Transfers[0].FromWarehouse)
	assert.False(t, l.Transfers[0].BelowReorderPoint, "assembly is preferred to draining CT")

	require.Len(t, plan.JobCards, 1)
	assertDec(t, "2", plan.JobCards[0].Quantity, "job quantity")
	require.Len(t, plan.Transfers, 1)
	assertDec(t, "3", plan.Transfers[0].Lines[0].Quantity, "transfer quantity")
	assert.True(t, l.Allocated().Equal(l.QuantityOrdered))
}

func TestAllocation_KitCoveredByTransferNeedsNoJob(t *testing.T) {
	s := newTestStore(t)
	setStock(s, prodKit, "CT", "4", "0")
	addOrder(s, 1, line(prodKit, "3", "JHB"))

	plan := mustPlan(t, newOrchestrator(s), 1, policy(core.PolicyShipPartial))

	l := plan.Lines[0]
	assert.Equal(t, core.AllocationPartialTransfer, l.Kind)
	assertDec(t, "3", l.Transfer, "transferred from CT")
	assert.Nil(t, l.Job)
	assert.Empty(t, plan.JobCards)
	assert.Empty(t, plan.PurchaseOrders)
}

func TestAllocation_MissingSupplierBlocksLine(t *testing.T) {
	s := newTestStore(t)
	setStock(s, prodOrphan, "JHB", "1", "0")
	setStock(s, prodChair, "JHB", "5", "0")
	addOrder(s, 1, line(prodOrphan, "4", "JHB"), line(prodChair, "2", "JHB"))

	plan := mustPlan(t, newOrchestrator(s), 1, policy(core.PolicyShipPartial))

	blocked := plan.Lines[0]
	assert.Equal(t, core.AllocationBlocked, blocked.Kind)
	assert.Contains(t, blocked.BlockedReason, "no default supplier")
	assert.True(t, blocked.FromStock.IsZero(), "a blocked line keeps nothing")
	assert.Empty(t, blocked.Picks)

	require.Len(t, plan.PickingSlips, 1)
	require.Len(t, plan.PickingSlips[0].Lines, 1, "only the chair is picked")
	assert.Equal(t, prodChair, plan.PickingSlips[0].Lines[0].ProductID)
	assert.True(t, plan.CanProceed)
	assert.Equal(t, 1, plan.Summary.BlockedLines)

	complete := mustPlan(t, newOrchestrator(s), 1, policy(core.PolicyShipComplete))
	assert.False(t, complete.CanProceed)
	assert.Equal(t, "SHIP_COMPLETE: lines not fully available now: 1", complete.BlockedReason)
}

func TestAllocation_EmptyKitIsBlocked(t *testing.T) {
	s := newTestStore(t)
	s.SetBOM(prodKit, nil)
	addOrder(s, 1, line(prodKit, "1", "JHB"))

	plan := mustPlan(t, newOrchestrator(s), 1, policy(core.PolicyShipPartial))
	assert.Equal(t, core.AllocationBlocked, plan.Lines[0].Kind)
	assert.Contains(t, plan.Lines[0].BlockedReason, "no BOM lines")
	assert.False(t, plan.CanProceed)
}

func TestAllocation_CyclicBOMIsExcludedFromPlanning(t *testing.T) {
	s := newTestStore(t)
	s.SetBOM(prodKit, []core.BOMComponent{{ComponentProductID: prodKit, QuantityPerUnit: dec("1")}})
	setStock(s, prodChair, "JHB", "5", "0")
	addOrder(s, 1, line(prodKit, "1", "JHB"), line(prodChair, "1", "JHB"))

	plan := mustPlan(t, newOrchestrator(s), 1, policy(core.PolicyShipPartial))
	assert.Equal(t, core.AllocationBlocked, plan.Lines[0].Kind)
	assert.Contains(t, plan.Lines[0].BlockedReason, "cycle")
	assert.Equal(t, core.AllocationFromStock, plan.Lines[1].Kind)
}

func TestAllocation_BelowFloorTransferIsFlagged(t *testing.T) {
	s := newTestStore(t)
	setStock(s, prodChair, "CT", "8", "5")
	addOrder(s, 1, line(prodChair, "6", "JHB"))

	plan := mustPlan(t, newOrchestrator(s), 1, policy(core.PolicyShipPartial))

	l := plan.Lines[0]
	require.Len(t, l.Transfers, 2)
	assertDec(t, "3", l.Transfers[0].Quantity, "surplus leg")
	assert.False(t, l.Transfers[0].BelowReorderPoint)
	assertDec(t, "3", l.Transfers[1].Quantity, "below-floor leg")
	assert.True(t, l.Transfers[1].BelowReorderPoint)
	assert.True(t, l.Backorder.IsZero())
	assert.Contains(t, plan.Warnings, "line 1: transfer of 3 CHAIR from CT takes it below its reorder point")
}

func TestAllocation_BelowFloorTransfersDisabled(t *testing.T) {
	s := newTestStore(t)
	setStock(s, prodChair, "CT", "8", "5")
	addOrder(s, 1, line(prodChair, "6", "JHB"))

	cfg := core.DefaultPlanningConfig()
	cfg.AllowBelowFloorTransfers = false
	plan := mustPlan(t, core.NewOrchestrator(s, cfg), 1, policy(core.PolicyShipPartial))

	l := plan.Lines[0]
	assertDec(t, "3", l.Transfer, "only the surplus moves")
	assertDec(t, "3", l.Backorder, "the rest is purchased")
}

func TestAllocation_LinesNeverShareUnits(t *testing.T) {
	s := newTestStore(t)
	setStock(s, prodChair, "JHB", "5", "0")
	addOrder(s, 1, line(prodChair, "3", "JHB"), line(prodChair, "3", "JHB"))

	plan := mustPlan(t, newOrchestrator(s), 1, policy(core.PolicyShipPartial))

	assertDec(t, "3", plan.Lines[0].FromStock, "line 1 picks first")
	assertDec(t, "2", plan.Lines[1].FromStock, "line 2 gets what is left")
	assertDec(t, "1", plan.Lines[1].Backorder, "line 2 backorder")
	require.Len(t, plan.PickingSlips, 1)
	assert.Len(t, plan.PickingSlips[0].Lines, 2)
}

func TestAllocation_TransferTieBreaksByWarehouseOrder(t *testing.T) {
	s := newTestStore(t)
	s.AddWarehouse(testCompany, core.Warehouse{ID: 3, Code: "DBN", Name: "Durban", SortOrder: 3, IsActive: true})
	setStock(s, prodChair, "CT", "10", "0")
	setStock(s, prodChair, "DBN", "10", "0")
	addOrder(s, 1, line(prodChair, "4", "JHB"))

	plan := mustPlan(t, newOrchestrator(s), 1, policy(core.PolicyShipPartial))
	require.Len(t, plan.Lines[0].Transfers, 1, "one leg covers it")
	assert.Equal(t, "CT", plan.Lines[0].Transfers[0].FromWarehouse)
}

func TestAllocation_ConservationAcrossScenarios(t *testing.T) {
	s := newTestStore(t)
	setStock(s, prodChair, "JHB", "4", "1")
	setStock(s, prodChair, "CT", "9", "3")
	setStock(s, compA, "JHB", "3", "0")
	setStock(s, compB, "JHB", "1", "0")
	setStock(s, prodKit, "JHB", "1", "0")
	addOrder(s, 1,
		line(prodChair, "7", "JHB"),
		line(prodChair, "12", "CT"),
		line(prodKit, "4", "JHB"),
		line(prodLamp, "2.5", ""),
		line(prodOrphan, "1", "JHB"),
	)

	plan := mustPlan(t, newOrchestrator(s), 1, policy(core.PolicyShipPartial))
	for _, l := range plan.Lines {
		if l.Kind == core.AllocationBlocked {
			continue
		}
		assert.Truef(t, l.Allocated().Equal(l.QuantityOrdered),
			"line %d: allocated %s of %s", l.LineNumber, l.Allocated(), l.QuantityOrdered)
	}
	assert.Equal(t, 5, plan.Summary.TotalLines)
}

func TestGeneratePlan_IsDeterministic(t *testing.T) {
	s := newTestStore(t)
	s.AddWarehouse(testCompany, core.Warehouse{ID: 3, Code: "DBN", Name: "Durban", SortOrder: 3, IsActive: true})
	setStock(s, prodChair, "JHB", "2", "0")
	setStock(s, prodChair, "CT", "6", "1")
	setStock(s, prodChair, "DBN", "6", "1")
	setStock(s, compA, "CT", "1", "0")
	setStock(s, compB, "CT", "5", "0")
	addOrder(s, 1, line(prodChair, "9", "JHB"), line(prodKit, "2", "CT"), line(prodLamp, "1", "DBN"))

	o := newOrchestrator(s)
	first := mustPlan(t, o, 1, nil)
	second := mustPlan(t, o, 1, nil)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
	assert.Equal(t, first.Digest, second.Digest)
}
