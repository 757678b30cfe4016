package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Orchestrator exposes planning and execution of fulfillment waves.
type Orchestrator struct {
	store    Store
	cfg      PlanningConfig
	logger   *zap.Logger
	resolver *StockResolver
	engine   *AllocationEngine
	builder  *PlanBuilder
	executor *PlanExecutor
	advancer *DocumentAdvancer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithPublisher sets where committed waves are announced.
func WithPublisher(p WaveEventPublisher) Option {
	return func(o *Orchestrator) { o.executor.publisher = p }
}

func NewOrchestrator(store Store, cfg PlanningConfig, opts ...Option) *Orchestrator {
	cfg = cfg.normalized()
	o := &Orchestrator{
		store:    store,
		cfg:      cfg,
		logger:   zap.NewNop(),
		resolver: NewStockResolver(store),
		engine:   NewAllocationEngine(cfg),
		builder:  NewPlanBuilder(),
		advancer: NewDocumentAdvancer(store),
	}
	o.executor = NewPlanExecutor(store, nil, cfg, nil)
	for _, opt := range opts {
		opt(o)
	}
	o.executor.logger = o.logger
	return o
}

// Resolver returns the stock resolver backing this orchestrator.
func (o *Orchestrator) Resolver() *StockResolver { return o.resolver }

// GeneratePlan computes a plan for the outstanding demand of an order. It
// has no side effects and may be called any number of times.
func (o *Orchestrator) GeneratePlan(ctx context.Context, orderID int, override *FulfillmentPolicy) (*OrchestrationPlan, error) {
	order, err := o.store.GetOrderWithLines(ctx, orderID)
	if err != nil {
		return nil, dependency("load order", err)
	}
	if !order.Status.Plannable() {
		return nil, fmt.Errorf("%w: order %s is %s", ErrOrderNotPlannable, order.OrderNumber, order.Status)
	}
	policy := order.EffectivePolicy(override)
	if !policy.Valid() {
		return nil, fmt.Errorf("%w %q", ErrUnknownPolicy, policy)
	}

	snap, suppliers, err := o.loadSnapshot(ctx, order)
	if err != nil {
		return nil, err
	}

	lines, observations := o.engine.Allocate(snap)
	decision, err := EvaluatePolicy(policy, lines)
	if err != nil {
		return nil, err
	}
	plan, err := o.builder.Build(PlanInput{
		Order:            order,
		Policy:           policy,
		PolicyOverridden: override != nil,
		Warehouses:       snap.Warehouses,
		Suppliers:        suppliers,
		Lines:            lines,
		Decision:         decision,
		Snapshot:         observations,
	})
	if err != nil {
		return nil, err
	}

	o.logger.Debug("plan generated",
		zap.Int("order_id", orderID),
		zap.String("policy", string(policy)),
		zap.Bool("can_proceed", plan.CanProceed),
		zap.Int("lines", len(plan.Lines)),
		zap.Int("warnings", len(plan.Warnings)))
	return plan, nil
}

// loadSnapshot gathers every input of the allocation engine. All stock is
// read with one batch call.
func (o *Orchestrator) loadSnapshot(ctx context.Context, order *SalesOrder) (*PlanningSnapshot, map[int]Supplier, error) {
	warehouses, err := o.store.ListWarehouses(ctx, order.CompanyCode)
	if err != nil {
		return nil, nil, dependency("list warehouses", err)
	}
	warehouses = SortWarehouses(activeOnly(warehouses), o.cfg.WarehouseOrder)

	docs, err := o.store.ListOrderDocuments(ctx, order.ID)
	if err != nil {
		return nil, nil, dependency("list order documents", err)
	}

	catalog := newCatalogCache(o.store)
	expander := NewBOMExpander(catalog, o.cfg.MaxBOMDepth)
	snap := &PlanningSnapshot{
		Order:      order,
		Warehouses: warehouses,
		Products:   make(map[int]Product),
		Expansions: make(map[int][]ComponentRequirement),
		Invalid:    make(map[int]error),
		Suppliers:  make(map[int]*Supplier),
		Covered:    LineCoverage(docs),
	}

	// Products that might be bought: stocked line products and BOM leaves.
	var purchasable []int
	seenPurchasable := make(map[int]bool)
	addPurchasable := func(id int) {
		if !seenPurchasable[id] {
			seenPurchasable[id] = true
			purchasable = append(purchasable, id)
		}
	}

	for _, line := range order.Lines {
		id := line.ProductID
		if _, done := snap.Products[id]; done || snap.Invalid[id] != nil {
			continue
		}
		p, err := catalog.GetProduct(ctx, id)
		if err != nil {
			if errors.Is(err, ErrProductNotFound) {
				snap.Invalid[id] = &ConfigurationError{ProductID: id, ProductCode: line.ProductCode, Reason: "unknown product"}
				continue
			}
			return nil, nil, dependency("load product", err)
		}
		snap.Products[id] = *p

		assembled := p.Type.RequiresBOM()
		if p.Type == ProductTypeMadeToOrder {
			bom, err := catalog.GetBOMComponents(ctx, id)
			if err != nil {
				return nil, nil, dependency("load BOM", err)
			}
			assembled = len(bom) > 0
		}
		if !assembled {
			addPurchasable(id)
			continue
		}

		reqs, err := expander.Expand(ctx, id, decimal.NewFromInt(1))
		if err != nil {
			var cfgErr *ConfigurationError
			if errors.As(err, &cfgErr) {
				snap.Invalid[id] = cfgErr
				continue
			}
			return nil, nil, err
		}
		snap.Expansions[id] = reqs
		for _, r := range reqs {
			addPurchasable(r.ProductID)
		}
	}

	var keys []StockKey
	for _, w := range warehouses {
		for id := range snap.Products {
			keys = append(keys, StockKey{ProductID: id, WarehouseCode: w.Code})
		}
		for _, reqs := range snap.Expansions {
			for _, r := range reqs {
				keys = append(keys, StockKey{ProductID: r.ProductID, WarehouseCode: w.Code})
			}
		}
	}
	if snap.Stock, err = o.resolver.ResolveBatch(ctx, keys); err != nil {
		return nil, nil, err
	}

	suppliers := make(map[int]Supplier)
	for _, id := range purchasable {
		s, err := o.store.GetDefaultSupplier(ctx, id)
		if err != nil {
			return nil, nil, dependency("load default supplier", err)
		}
		snap.Suppliers[id] = s
		if s != nil {
			suppliers[s.ID] = *s
		}
	}
	return snap, suppliers, nil
}

func activeOnly(ws []Warehouse) []Warehouse {
	out := make([]Warehouse, 0, len(ws))
	for _, w := range ws {
		if w.IsActive {
			out = append(out, w)
		}
	}
	return out
}

// ExecutePlan commits a plan as one wave.
func (o *Orchestrator) ExecutePlan(ctx context.Context, orderID int, plan *OrchestrationPlan) (*ExecutionResult, error) {
	return o.executor.Execute(ctx, orderID, plan)
}

// AdvanceDocument moves a document to its next lifecycle status.
func (o *Orchestrator) AdvanceDocument(ctx context.Context, kind DocumentKind, id int, to DocumentStatus) (*OrderDocument, error) {
	return o.advancer.Advance(ctx, kind, id, to)
}

// BatchPlanResult is one order's outcome in GeneratePlans.
type BatchPlanResult struct {
	OrderID int                `json:"order_id"`
	Plan    *OrchestrationPlan `json:"plan,omitempty"`
	Error   string             `json:"error,omitempty"`
	Err     error              `json:"-"`
}

// GeneratePlans plans many orders concurrently, bounded by PlanParallelism.
// Results keep the input order; a failing order does not fail the batch.
func (o *Orchestrator) GeneratePlans(ctx context.Context, orderIDs []int, override *FulfillmentPolicy) ([]BatchPlanResult, error) {
	results := make([]BatchPlanResult, len(orderIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.PlanParallelism)
	for i, id := range orderIDs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			plan, err := o.GeneratePlan(gctx, id, override)
			results[i] = BatchPlanResult{OrderID: id, Plan: plan, Err: err}
			if err != nil {
				results[i].Error = err.Error()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
