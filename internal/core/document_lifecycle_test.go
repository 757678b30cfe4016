package core_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fulfillment-orchestrator/internal/core"
	"fulfillment-orchestrator/internal/store/memstore"
)

func advance(t *testing.T, o *core.Orchestrator, kind core.DocumentKind, id int, to ...core.DocumentStatus) {
	t.Helper()
	for _, status := range to {
		doc, err := o.AdvanceDocument(context.Background(), kind, id, status)
		require.NoError(t, err, "%s %d → %s", kind, id, status)
		assert.Equal(t, status, doc.Status)
	}
}

func execute(t *testing.T, o *core.Orchestrator, orderID int) *core.ExecutionResult {
	t.Helper()
	plan := mustPlan(t, o, orderID, nil)
	require.True(t, plan.CanProceed, plan.BlockedReason)
	res, err := o.ExecutePlan(context.Background(), orderID, plan)
	require.NoError(t, err)
	return res
}

func stockRow(s *memstore.Store, productID int, wh string) core.StockLevel {
	return s.Stock(core.StockKey{ProductID: productID, WarehouseCode: wh})
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestDocumentLifecycle_WavesUntilReadyToShip(t *testing.T) {
	s := mixedOrder(t)
	o := newOrchestrator(s)
	execute(t, o, 1)

	// Picking converts the slip's reservation to hard.
	advance(t, o, core.DocumentPickingSlip, 1, core.DocumentStatusPicking, core.DocumentStatusPicked)
	jhb := stockRow(s, prodChair, "JHB")
	assertDec(t, "0", jhb.SoftReserved, "JHB soft")
	assertDec(t, "4", jhb.HardReserved, "JHB hard")
	assertDec(t, "4", jhb.OnHand, "JHB on hand")

	// Receiving the transfer moves six chairs from CT to JHB.
	advance(t, o, core.DocumentTransferRequest, 1, core.DocumentStatusInTransit, core.DocumentStatusReceived)
	ct := stockRow(s, prodChair, "CT")
	assertDec(t, "14", ct.OnHand, "CT on hand")
	assertDec(t, "0", ct.SoftReserved, "CT soft")
	assertDec(t, "10", stockRow(s, prodChair, "JHB").OnHand, "JHB on hand after transfer")
	assertDec(t, "6", available(s, prodChair, "JHB"), "JHB available after transfer")
	assert.Equal(t, core.OrderStatusProcessing, orderStatus(t, s, 1))

	// Wave two picks the transferred chairs; the lamps are still on the PO.
	second := mustPlan(t, o, 1, nil)
	require.True(t, second.CanProceed)
	require.Len(t, second.PickingSlips, 1)
	assertDec(t, "6", second.PickingSlips[0].Lines[0].Quantity, "second slip")
	assert.Empty(t, second.PurchaseOrders)
	_, err := o.ExecutePlan(context.Background(), 1, second)
	require.NoError(t, err)
	advance(t, o, core.DocumentPickingSlip, 2, core.DocumentStatusPicking, core.DocumentStatusPicked)
	assert.Equal(t, core.OrderStatusProcessing, orderStatus(t, s, 1), "lamps are not picked yet")

	// Sending the PO raises on order; receiving it lands the lamps on hand.
	advance(t, o, core.DocumentPurchaseOrder, 1, core.DocumentStatusSent)
	assertDec(t, "2", stockRow(s, prodLamp, "JHB").OnOrder, "lamps on order")
	advance(t, o, core.DocumentPurchaseOrder, 1, core.DocumentStatusReceived)
	lamp := stockRow(s, prodLamp, "JHB")
	assertDec(t, "0", lamp.OnOrder, "lamps on order after receipt")
	assertDec(t, "2", lamp.OnHand, "lamps on hand")

	execute(t, o, 1)
	advance(t, o, core.DocumentPickingSlip, 3, core.DocumentStatusPicking, core.DocumentStatusPicked)
	assert.Equal(t, core.OrderStatusReadyToShip, orderStatus(t, s, 1))

	_, err = o.GeneratePlan(context.Background(), 1, nil)
	require.ErrorIs(t, err, core.ErrOrderNotPlannable)
}

func TestDocumentLifecycle_InvalidTransition(t *testing.T) {
	s := mixedOrder(t)
	o := newOrchestrator(s)
	execute(t, o, 1)

	_, err := o.AdvanceDocument(context.Background(), core.DocumentPickingSlip, 1, core.DocumentStatusPicked)
	var bad *core.InvalidTransitionError
	require.ErrorAs(t, err, &bad)
	assert.Equal(t, core.DocumentStatusPending, bad.From)
	assert.Equal(t, core.DocumentStatusPicked, bad.To)
	assertDec(t, "4", stockRow(s, prodChair, "JHB").SoftReserved, "reservation untouched")

	_, err = o.AdvanceDocument(context.Background(), core.DocumentPurchaseOrder, 1, core.DocumentStatusReceived)
	require.ErrorAs(t, err, &bad, "a draft PO must be sent first")
}

func TestDocumentLifecycle_UnknownDocument(t *testing.T) {
	o := newOrchestrator(newTestStore(t))
	_, err := o.AdvanceDocument(context.Background(), core.DocumentJobCard, 42, core.DocumentStatusInProgress)
	require.ErrorIs(t, err, core.ErrDocumentNotFound)
}

func TestDocumentLifecycle_CancelReleasesReservations(t *testing.T) {
	s := mixedOrder(t)
	o := newOrchestrator(s)
	res := execute(t, o, 1)

	advance(t, o, core.DocumentPickingSlip, 1, core.DocumentStatusCancelled)
	assertDec(t, "4", available(s, prodChair, "JHB"), "JHB released")
	assertDec(t, "14", available(s, prodChair, "CT"), "CT still held by the transfer")

	advance(t, o, core.DocumentTransferRequest, 1, core.DocumentStatusCancelled)
	advance(t, o, core.DocumentPurchaseOrder, 1, core.DocumentStatusCancelled)
	assertDec(t, "20", available(s, prodChair, "CT"), "CT released")

	for _, r := range s.Reservations(res.WaveID) {
		assert.Equal(t, core.ReservationReleased, r.Status)
	}
	assert.Equal(t, core.OrderStatusConfirmed, orderStatus(t, s, 1), "no live documents left")

	again := mustPlan(t, o, 1, nil)
	require.True(t, again.CanProceed)
	assert.Len(t, again.PickingSlips, 1)
	assert.Len(t, again.Transfers, 1)
}

func TestDocumentLifecycle_JobCardComplete(t *testing.T) {
	s := newTestStore(t)
	setStock(s, compA, "JHB", "10", "0")
	setStock(s, compB, "JHB", "10", "0")
	addOrder(s, 1, line(prodKit, "2", "JHB"))
	o := newOrchestrator(s)

	res := execute(t, o, 1)
	require.Len(t, res.CreatedDocuments, 1)
	assert.Equal(t, core.DocumentJobCard, res.CreatedDocuments[0].Kind)
	assertDec(t, "6", available(s, compA, "JHB"), "A reserved")
	assertDec(t, "8", available(s, compB, "JHB"), "B reserved")

	advance(t, o, core.DocumentJobCard, 1, core.DocumentStatusInProgress, core.DocumentStatusComplete)
	a := stockRow(s, compA, "JHB")
	assertDec(t, "6", a.OnHand, "A issued")
	assertDec(t, "0", a.SoftReserved, "A reservation consumed")
	assertDec(t, "8", stockRow(s, compB, "JHB").OnHand, "B issued")
	assertDec(t, "2", stockRow(s, prodKit, "JHB").OnHand, "kits received")
	for _, r := range s.Reservations(res.WaveID) {
		assert.Equal(t, core.ReservationConsumed, r.Status)
	}

	// The finished kits are now stock for the next wave.
	next := mustPlan(t, o, 1, nil)
	require.True(t, next.CanProceed)
	require.Len(t, next.PickingSlips, 1)
	assert.Empty(t, next.JobCards)
}

func TestDocumentLifecycle_ShortJobWaitsForComponentPurchase(t *testing.T) {
	s := newTestStore(t)
	setStock(s, compA, "JHB", "3", "0")
	setStock(s, compB, "JHB", "10", "0")
	setStock(s, prodChair, "JHB", "5", "0")
	addOrder(s, 1, line(prodKit, "2", "JHB"), line(prodChair, "1", "JHB"))
	o := newOrchestrator(s)

	// The chair moves now, so SHIP_PARTIAL lets the short job card through.
	res := execute(t, o, 1)
	require.Len(t, res.CreatedDocuments, 3)
	doc, err := s.GetDocument(context.Background(), core.DocumentJobCard, 1)
	require.NoError(t, err)
	require.Len(t, doc.Components, 2)
	assertDec(t, "4", doc.Components[0].Required, "A required")
	assertDec(t, "3", doc.Components[0].Reserved, "A reserved")

	advance(t, o, core.DocumentJobCard, 1, core.DocumentStatusInProgress)
	_, err = o.AdvanceDocument(context.Background(), core.DocumentJobCard, 1, core.DocumentStatusComplete)
	var conflict *core.ReservationConflictError
	require.ErrorAs(t, err, &conflict, "the missing A is not on hand yet")
	assert.Equal(t, compA, conflict.Key.ProductID)
	assert.Equal(t, 1, conflict.DocumentID)
	assert.Equal(t, core.DocumentNumber(core.DocumentJobCard, 1), conflict.DocumentNumber)
	assert.Contains(t, err.Error(), core.DocumentNumber(core.DocumentJobCard, 1))
	assert.NotContains(t, err.Error(), "order line 0")

	doc, err = s.GetDocument(context.Background(), core.DocumentJobCard, 1)
	require.NoError(t, err)
	assert.Equal(t, core.DocumentStatusInProgress, doc.Status)
	assertDec(t, "3", stockRow(s, compA, "JHB").SoftReserved, "A still reserved")

	advance(t, o, core.DocumentPurchaseOrder, 1, core.DocumentStatusSent, core.DocumentStatusReceived)
	advance(t, o, core.DocumentJobCard, 1, core.DocumentStatusComplete)
	a := stockRow(s, compA, "JHB")
	assertDec(t, "0", a.OnHand, "every A issued")
	assertDec(t, "0", a.SoftReserved, "A reservation consumed")
	assertDec(t, "2", stockRow(s, prodKit, "JHB").OnHand, "kits received")
}

func TestDocumentLifecycle_JobCardCompletesWithoutShortOptional(t *testing.T) {
	s := newTestStore(t)
	s.SetBOM(prodKit, []core.BOMComponent{
		{ComponentProductID: compA, QuantityPerUnit: dec("2"), SortOrder: 1},
		{ComponentProductID: compGlue, QuantityPerUnit: dec("1"), IsOptional: true, SortOrder: 2},
	})
	setStock(s, compA, "JHB", "2", "0")
	addOrder(s, 1, line(prodKit, "1", "JHB"))
	o := newOrchestrator(s)

	res := execute(t, o, 1)
	require.Len(t, res.CreatedDocuments, 1)
	job := res.CreatedDocuments[0]
	require.Equal(t, core.DocumentJobCard, job.Kind)

	doc, err := s.GetDocument(context.Background(), core.DocumentJobCard, job.ID)
	require.NoError(t, err)
	require.Len(t, doc.Components, 2)
	assert.False(t, doc.Components[0].IsOptional)
	assert.True(t, doc.Components[1].IsOptional)
	assertDec(t, "0", doc.Components[1].Reserved, "no glue to reserve")

	advance(t, o, core.DocumentJobCard, job.ID, core.DocumentStatusInProgress, core.DocumentStatusComplete)
	assertDec(t, "0", stockRow(s, compA, "JHB").OnHand, "A issued")
	assertDec(t, "0", stockRow(s, compGlue, "JHB").OnHand, "glue never went negative")
	assertDec(t, "1", stockRow(s, prodKit, "JHB").OnHand, "kit received")
}

func TestDocumentLifecycle_OptionalIssuesOnlyWhatWasReserved(t *testing.T) {
	s := newTestStore(t)
	s.SetBOM(prodKit, []core.BOMComponent{
		{ComponentProductID: compA, QuantityPerUnit: dec("2"), SortOrder: 1},
		{ComponentProductID: compGlue, QuantityPerUnit: dec("1"), IsOptional: true, SortOrder: 2},
	})
	setStock(s, compA, "JHB", "4", "0")
	setStock(s, compGlue, "JHB", "1", "0")
	addOrder(s, 1, line(prodKit, "2", "JHB"))
	o := newOrchestrator(s)

	res := execute(t, o, 1)
	job := res.CreatedDocuments[0]

	// Glue arrives after the wave; the job still uses only its one reserved tube.
	restocked := stockRow(s, compGlue, "JHB")
	restocked.OnHand = dec("5")
	s.SetStock(restocked)
	advance(t, o, core.DocumentJobCard, job.ID, core.DocumentStatusInProgress, core.DocumentStatusComplete)
	glue := stockRow(s, compGlue, "JHB")
	assertDec(t, "4", glue.OnHand, "one tube issued")
	assertDec(t, "0", glue.SoftReserved, "reservation consumed")
	assertDec(t, "0", stockRow(s, compA, "JHB").OnHand, "A issued")
	assertDec(t, "2", stockRow(s, prodKit, "JHB").OnHand, "kits received")
}

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		kind     core.DocumentKind
		from, to core.DocumentStatus
		ok       bool
	}{
		{core.DocumentPickingSlip, core.DocumentStatusPending, core.DocumentStatusPicking, true},
		{core.DocumentPickingSlip, core.DocumentStatusPicking, core.DocumentStatusCancelled, true},
		{core.DocumentPickingSlip, core.DocumentStatusPicked, core.DocumentStatusCancelled, false},
		{core.DocumentJobCard, core.DocumentStatusInProgress, core.DocumentStatusCancelled, false},
		{core.DocumentJobCard, core.DocumentStatusInProgress, core.DocumentStatusComplete, true},
		{core.DocumentTransferRequest, core.DocumentStatusPending, core.DocumentStatusReceived, false},
		{core.DocumentPurchaseOrder, core.DocumentStatusDraft, core.DocumentStatusSent, true},
		{core.DocumentPurchaseOrder, core.DocumentStatusReceived, core.DocumentStatusCancelled, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind)+"_"+string(tt.from)+"_"+string(tt.to), func(t *testing.T) {
			err := core.ValidateTransition(tt.kind, tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestParseDocumentKind(t *testing.T) {
	k, err := core.ParseDocumentKind("picking-slip")
	require.NoError(t, err)
	assert.Equal(t, core.DocumentPickingSlip, k)

	k, err = core.ParseDocumentKind("PURCHASE_ORDER")
	require.NoError(t, err)
	assert.Equal(t, core.DocumentPurchaseOrder, k)

	_, err = core.ParseDocumentKind("invoice")
	assert.Error(t, err)
}

func TestDeriveOrderStatus(t *testing.T) {
	order := &core.SalesOrder{Status: core.OrderStatusConfirmed, Lines: []core.OrderLine{
		{ID: 1, Quantity: dec("3")},
		{ID: 2, Quantity: dec("1")},
	}}
	slip := func(status core.DocumentStatus, qty1, qty2 string) core.OrderDocument {
		return core.OrderDocument{Kind: core.DocumentPickingSlip, Status: status, Lines: []core.DocumentLine{
			{OrderLineID: 1, Quantity: dec(qty1)},
			{OrderLineID: 2, Quantity: dec(qty2)},
		}}
	}

	tests := []struct {
		name string
		docs []core.OrderDocument
		want core.OrderStatus
	}{
		{"no documents", nil, core.OrderStatusConfirmed},
		{"only cancelled documents", []core.OrderDocument{slip(core.DocumentStatusCancelled, "3", "1")}, core.OrderStatusConfirmed},
		{"pending slip", []core.OrderDocument{slip(core.DocumentStatusPending, "3", "1")}, core.OrderStatusProcessing},
		{"partly picked", []core.OrderDocument{slip(core.DocumentStatusPicked, "2", "1")}, core.OrderStatusProcessing},
		{"picked across waves", []core.OrderDocument{
			slip(core.DocumentStatusPicked, "2", "1"),
			slip(core.DocumentStatusPicked, "1", "0"),
		}, core.OrderStatusReadyToShip},
		{"cancelled picks do not count", []core.OrderDocument{
			slip(core.DocumentStatusPicked, "2", "1"),
			slip(core.DocumentStatusCancelled, "1", "0"),
		}, core.OrderStatusProcessing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, core.DeriveOrderStatus(order, tt.docs))
		})
	}

	draft := &core.SalesOrder{Status: core.OrderStatusDraft, Lines: order.Lines}
	assert.Equal(t, core.OrderStatusDraft, core.DeriveOrderStatus(draft, []core.OrderDocument{slip(core.DocumentStatusPicked, "3", "1")}))
}

func TestLineCoverage(t *testing.T) {
	doc := func(kind core.DocumentKind, status core.DocumentStatus, qty string, reason core.PurchaseReason) core.OrderDocument {
		return core.OrderDocument{Kind: kind, Status: status, Lines: []core.DocumentLine{
			{OrderLineID: 7, Quantity: dec(qty), Reason: reason},
		}}
	}
	docs := []core.OrderDocument{
		doc(core.DocumentPickingSlip, core.DocumentStatusPicked, "1", ""),
		doc(core.DocumentPickingSlip, core.DocumentStatusCancelled, "10", ""),
		doc(core.DocumentTransferRequest, core.DocumentStatusInTransit, "2", ""),
		doc(core.DocumentTransferRequest, core.DocumentStatusReceived, "10", ""),
		doc(core.DocumentJobCard, core.DocumentStatusInProgress, "3", ""),
		doc(core.DocumentJobCard, core.DocumentStatusComplete, "10", ""),
		doc(core.DocumentPurchaseOrder, core.DocumentStatusSent, "4", core.ReasonFinishedGoodsBackorder),
		doc(core.DocumentPurchaseOrder, core.DocumentStatusDraft, "10", core.ReasonComponentShortage),
		doc(core.DocumentPurchaseOrder, core.DocumentStatusReceived, "10", core.ReasonFinishedGoodsBackorder),
	}
	covered := core.LineCoverage(docs)
	assertDec(t, "10", covered[7], "line 7")
	assert.True(t, covered[8].Equal(decimal.Zero))
}

func TestGeneratePlans_KeepsInputOrder(t *testing.T) {
	s := mixedOrder(t)
	addOrder(s, 2, line(prodChair, "1", "CT"))
	o := newOrchestrator(s)

	results, err := o.GeneratePlans(context.Background(), []int{2, 404, 1}, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, 2, results[0].OrderID)
	require.NoError(t, results[0].Err)
	assert.True(t, results[0].Plan.CanProceed)

	assert.Equal(t, 404, results[1].OrderID)
	require.ErrorIs(t, results[1].Err, core.ErrOrderNotFound)
	assert.NotEmpty(t, results[1].Error)
	assert.Nil(t, results[1].Plan)

	assert.Equal(t, 1, results[2].OrderID)
	require.NotNil(t, results[2].Plan)
	assert.Len(t, results[2].Plan.PurchaseOrders, 1)
}
