package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PlanExecutor commits an approved plan as one wave: documents, reservations
// and the recomputed order status land together or not at all.
type PlanExecutor struct {
	store     WaveStore
	publisher WaveEventPublisher
	cfg       PlanningConfig
	logger    *zap.Logger
	newWaveID func() string
}

func NewPlanExecutor(store WaveStore, publisher WaveEventPublisher, cfg PlanningConfig, logger *zap.Logger) *PlanExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlanExecutor{
		store:     store,
		publisher: publisher,
		cfg:       cfg.normalized(),
		logger:    logger,
		newWaveID: func() string { return uuid.NewString() },
	}
}

// Execute re-validates the plan against current stock inside the wave
// transaction before committing anything.
func (x *PlanExecutor) Execute(ctx context.Context, orderID int, plan *OrchestrationPlan) (*ExecutionResult, error) {
	if plan == nil {
		return nil, errors.New("plan is required")
	}
	if !plan.CanProceed {
		return nil, &PolicyBlockedError{Policy: plan.Policy, Reason: plan.BlockedReason}
	}
	if plan.OrderID != orderID {
		return nil, fmt.Errorf("%w: plan is for order %d, not %d", ErrPlanOrderMismatch, plan.OrderID, orderID)
	}
	if err := VerifyPlanDigest(plan); err != nil {
		return nil, err
	}

	result := &ExecutionResult{OrderID: orderID, WaveID: x.newWaveID()}
	var order *SalesOrder

	err := x.store.ExecuteWave(ctx, orderID, func(ctx context.Context, tx WaveTx) error {
		// Reset in case the store retries fn.
		result.CreatedDocuments = nil
		result.ReservationsCreated = nil

		var err error
		order, err = tx.GetOrder(ctx, orderID)
		if err != nil {
			return dependency("load order", err)
		}
		if !order.Status.Plannable() {
			return fmt.Errorf("%w: order %s is %s", ErrOrderNotPlannable, order.OrderNumber, order.Status)
		}
		if err := x.checkStale(ctx, tx, plan); err != nil {
			return err
		}
		if err := x.createDocuments(ctx, tx, orderID, plan, result); err != nil {
			return err
		}

		docs, err := tx.ListOrderDocuments(ctx, orderID)
		if err != nil {
			return dependency("list order documents", err)
		}
		status := DeriveOrderStatus(order, docs)
		if status != order.Status {
			if err := tx.UpdateOrderStatus(ctx, orderID, status); err != nil {
				return dependency("update order status", err)
			}
			result.OrderStatusUpdated = true
		}
		result.OrderStatus = status
		return nil
	})
	if err != nil {
		x.logger.Warn("wave rolled back",
			zap.Int("order_id", orderID), zap.String("wave_id", result.WaveID), zap.Error(err))
		return nil, dependency("execute wave", err)
	}
	result.Success = true

	x.logger.Info("wave executed",
		zap.Int("order_id", orderID),
		zap.String("wave_id", result.WaveID),
		zap.Int("documents", len(result.CreatedDocuments)),
		zap.Int("reservations", len(result.ReservationsCreated)),
		zap.String("order_status", string(result.OrderStatus)))

	x.publish(ctx, order, plan, result)
	return result, nil
}

// checkStale compares current availability of every observed row with what
// the plan was computed against.
func (x *PlanExecutor) checkStale(ctx context.Context, tx WaveTx, plan *OrchestrationPlan) error {
	if len(plan.Snapshot) == 0 {
		return nil
	}
	keys := make([]StockKey, 0, len(plan.Snapshot))
	for _, o := range plan.Snapshot {
		keys = append(keys, o.Key())
	}
	levels, err := tx.GetStockLevels(ctx, keys)
	if err != nil {
		return dependency("lock stock levels", err)
	}
	current := make(map[StockKey]StockLevel, len(levels))
	for _, l := range levels {
		current[l.Key] = l
	}

	var changes []StockChange
	for _, o := range plan.Snapshot {
		now := current[o.Key()].Available()
		if now.Sub(o.Available).Abs().GreaterThan(x.cfg.StaleTolerance) {
			changes = append(changes, StockChange{Key: o.Key(), Planned: o.Available, Current: now})
		}
	}
	if len(changes) > 0 {
		return &StalePlanError{Changes: changes}
	}
	return nil
}

func (x *PlanExecutor) createDocuments(ctx context.Context, tx WaveTx, orderID int, plan *OrchestrationPlan, result *ExecutionResult) error {
	reserve := func(doc CreatedDocument, lineID int, key StockKey, qty decimal.Decimal) error {
		if !qty.IsPositive() {
			return nil
		}
		r, err := tx.Reserve(ctx, result.WaveID, orderID, ReservationRequest{
			Key: key, Quantity: qty, DocumentType: doc.Kind, DocumentID: doc.ID, OrderLineID: lineID,
		})
		if err != nil {
			return dependency(fmt.Sprintf("reserve %s for %s", key, doc.Number), withDocumentNumber(err, doc.Number))
		}
		result.ReservationsCreated = append(result.ReservationsCreated, *r)
		return nil
	}

	for _, slip := range plan.PickingSlips {
		doc, err := tx.CreatePickingSlip(ctx, PickingSlipSpec{OrderID: orderID, WaveID: result.WaveID, Plan: slip})
		if err != nil {
			return dependency("create picking slip", err)
		}
		result.CreatedDocuments = append(result.CreatedDocuments, doc)
		for _, l := range slip.Lines {
			if err := reserve(doc, l.OrderLineID, StockKey{ProductID: l.ProductID, WarehouseCode: slip.WarehouseCode}, l.Quantity); err != nil {
				return err
			}
		}
	}

	for _, job := range plan.JobCards {
		doc, err := tx.CreateJobCard(ctx, JobCardSpec{OrderID: orderID, WaveID: result.WaveID, Plan: job})
		if err != nil {
			return dependency("create job card", err)
		}
		result.CreatedDocuments = append(result.CreatedDocuments, doc)
		// Only what is available is reserved; shortfalls are on purchase orders.
		for _, c := range job.Components {
			if err := reserve(doc, 0, StockKey{ProductID: c.ProductID, WarehouseCode: job.WarehouseCode}, c.Available); err != nil {
				return err
			}
		}
	}

	for _, t := range plan.Transfers {
		doc, err := tx.CreateTransferRequest(ctx, TransferRequestSpec{OrderID: orderID, WaveID: result.WaveID, Plan: t})
		if err != nil {
			return dependency("create transfer request", err)
		}
		result.CreatedDocuments = append(result.CreatedDocuments, doc)
		for _, l := range t.Lines {
			if err := reserve(doc, l.OrderLineID, StockKey{ProductID: l.ProductID, WarehouseCode: t.FromWarehouse}, l.Quantity); err != nil {
				return err
			}
		}
	}

	for _, po := range plan.PurchaseOrders {
		doc, err := tx.CreatePurchaseOrder(ctx, PurchaseOrderSpec{OrderID: orderID, WaveID: result.WaveID, Plan: po})
		if err != nil {
			return dependency("create purchase order", err)
		}
		result.CreatedDocuments = append(result.CreatedDocuments, doc)
	}
	return nil
}

// publish runs after commit. A failure is logged and never undoes the wave.
func (x *PlanExecutor) publish(ctx context.Context, order *SalesOrder, plan *OrchestrationPlan, result *ExecutionResult) {
	if x.publisher == nil {
		return
	}
	event := WaveExecutedEvent{
		WaveID:              result.WaveID,
		OrderID:             result.OrderID,
		OrderNumber:         plan.OrderNumber,
		Policy:              plan.Policy,
		OrderStatus:         result.OrderStatus,
		Documents:           result.CreatedDocuments,
		ReservationsCreated: len(result.ReservationsCreated),
	}
	if order != nil {
		event.CompanyCode = order.CompanyCode
	}
	if err := x.publisher.PublishWaveExecuted(ctx, event); err != nil {
		x.logger.Error("failed to publish wave event",
			zap.Int("order_id", result.OrderID), zap.String("wave_id", result.WaveID), zap.Error(err))
	}
}
