package app

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"fulfillment-orchestrator/internal/core"
)

const tracerName = "fulfillment-orchestrator/internal/app"

var (
	ErrWarehouseNotFound = errors.New("warehouse not found")
	ErrInvalidRequest    = errors.New("invalid request")
)

// Store is the persistence the application layer needs on top of the
// orchestrator's ports.
type Store interface {
	core.Store
	GetDocument(ctx context.Context, kind core.DocumentKind, id int) (*core.OrderDocument, error)
}

type appService struct {
	store        Store
	orchestrator *core.Orchestrator
	logger       *zap.Logger
	tracer       trace.Tracer
	schema       *jsonschema.Schema
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(store Store, orchestrator *core.Orchestrator, logger *zap.Logger) ApplicationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &appService{
		store:        store,
		orchestrator: orchestrator,
		logger:       logger,
		tracer:       otel.Tracer(tracerName),
		schema:       generatePlanSchema(),
	}
}

// GeneratePlan builds a plan for an order of the given company.
func (s *appService) GeneratePlan(ctx context.Context, req GeneratePlanRequest) (*PlanResult, error) {
	ctx, span := s.tracer.Start(ctx, "GeneratePlan", trace.WithAttributes(
		attribute.String("company.code", req.CompanyCode),
		attribute.Int("order.id", req.OrderID),
	))
	defer span.End()

	override, err := parseOverride(req.PolicyOverride)
	if err != nil {
		return nil, fail(span, err)
	}
	if err := s.checkOrder(ctx, req.CompanyCode, req.OrderID); err != nil {
		return nil, fail(span, err)
	}

	plan, err := s.orchestrator.GeneratePlan(ctx, req.OrderID, override)
	if err != nil {
		s.logger.Warn("plan generation failed", zap.Int("order_id", req.OrderID), zap.Error(err))
		return nil, fail(span, err)
	}

	span.SetAttributes(
		attribute.String("plan.policy", string(plan.Policy)),
		attribute.Bool("plan.can_proceed", plan.CanProceed),
		attribute.Int("plan.lines", plan.Summary.TotalLines),
		attribute.Int("plan.blocked_lines", plan.Summary.BlockedLines),
	)
	s.logger.Info("plan generated",
		zap.Int("order_id", plan.OrderID),
		zap.String("policy", string(plan.Policy)),
		zap.Bool("can_proceed", plan.CanProceed),
		zap.Int("warnings", len(plan.Warnings)),
	)
	return &PlanResult{Plan: plan}, nil
}

// ExecutePlan commits a plan of an order of the given company.
func (s *appService) ExecutePlan(ctx context.Context, req ExecutePlanRequest) (*ExecutionResult, error) {
	ctx, span := s.tracer.Start(ctx, "ExecutePlan", trace.WithAttributes(
		attribute.String("company.code", req.CompanyCode),
		attribute.Int("order.id", req.OrderID),
	))
	defer span.End()

	if req.Plan == nil {
		return nil, fail(span, fmt.Errorf("%w: plan is required", ErrInvalidRequest))
	}
	if err := s.checkOrder(ctx, req.CompanyCode, req.OrderID); err != nil {
		return nil, fail(span, err)
	}

	result, err := s.orchestrator.ExecutePlan(ctx, req.OrderID, req.Plan)
	if err != nil {
		s.logger.Warn("plan execution failed", zap.Int("order_id", req.OrderID), zap.Error(err))
		return nil, fail(span, err)
	}

	span.SetAttributes(
		attribute.String("wave.id", result.WaveID),
		attribute.Int("wave.documents", len(result.CreatedDocuments)),
		attribute.Int("wave.reservations", len(result.ReservationsCreated)),
	)
	s.logger.Info("wave executed",
		zap.Int("order_id", result.OrderID),
		zap.String("wave_id", result.WaveID),
		zap.Int("documents", len(result.CreatedDocuments)),
		zap.String("order_status", string(result.OrderStatus)),
	)
	return &ExecutionResult{Result: result}, nil
}

// GeneratePlans plans a batch of orders. Orders that do not exist or belong
// to another company fail individually without planning.
func (s *appService) GeneratePlans(ctx context.Context, req BatchPlanRequest) (*BatchPlanResult, error) {
	ctx, span := s.tracer.Start(ctx, "GeneratePlans", trace.WithAttributes(
		attribute.String("company.code", req.CompanyCode),
		attribute.Int("batch.size", len(req.OrderIDs)),
	))
	defer span.End()

	if len(req.OrderIDs) == 0 {
		return nil, fail(span, fmt.Errorf("%w: order_ids is required", ErrInvalidRequest))
	}
	override, err := parseOverride(req.PolicyOverride)
	if err != nil {
		return nil, fail(span, err)
	}

	results := make([]core.BatchPlanResult, len(req.OrderIDs))
	var planIDs []int
	var planSlots []int
	for i, id := range req.OrderIDs {
		if err := s.checkOrder(ctx, req.CompanyCode, id); err != nil {
			var dep *core.DependencyError
			if errors.As(err, &dep) {
				return nil, fail(span, err)
			}
			results[i] = core.BatchPlanResult{OrderID: id, Err: err, Error: err.Error()}
			continue
		}
		planIDs = append(planIDs, id)
		planSlots = append(planSlots, i)
	}

	if len(planIDs) > 0 {
		planned, err := s.orchestrator.GeneratePlans(ctx, planIDs, override)
		if err != nil {
			return nil, fail(span, err)
		}
		for j, r := range planned {
			results[planSlots[j]] = r
		}
	}

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("batch.failed", failed))
	s.logger.Info("batch planned",
		zap.String("company_code", req.CompanyCode),
		zap.Int("orders", len(results)),
		zap.Int("failed", failed),
	)
	return &BatchPlanResult{CompanyCode: req.CompanyCode, Results: results}, nil
}

// GetStockAvailability resolves availability for keys in the company's warehouses.
func (s *appService) GetStockAvailability(ctx context.Context, req StockQuery) (*StockAvailabilityResult, error) {
	ctx, span := s.tracer.Start(ctx, "GetStockAvailability", trace.WithAttributes(
		attribute.String("company.code", req.CompanyCode),
		attribute.Int("stock.keys", len(req.Keys)),
	))
	defer span.End()

	if len(req.Keys) == 0 {
		return nil, fail(span, fmt.Errorf("%w: at least one product_id and warehouse pair is required", ErrInvalidRequest))
	}

	warehouses, err := s.store.ListWarehouses(ctx, req.CompanyCode)
	if err != nil {
		return nil, fail(span, &core.DependencyError{Op: "list warehouses", Err: err})
	}
	known := make(map[string]bool, len(warehouses))
	for _, w := range warehouses {
		known[w.Code] = true
	}
	for _, k := range req.Keys {
		if !known[k.WarehouseCode] {
			return nil, fail(span, fmt.Errorf("%w: %s in company %s", ErrWarehouseNotFound, k.WarehouseCode, req.CompanyCode))
		}
	}

	snaps, err := s.orchestrator.Resolver().ResolveBatch(ctx, req.Keys)
	if err != nil {
		return nil, fail(span, err)
	}
	out := make([]core.StockSnapshot, len(req.Keys))
	for i, k := range req.Keys {
		out[i] = snaps[k]
	}
	return &StockAvailabilityResult{CompanyCode: req.CompanyCode, Stock: out}, nil
}

// AdvanceDocument moves a document of one of the company's orders.
func (s *appService) AdvanceDocument(ctx context.Context, req AdvanceDocumentRequest) (*DocumentResult, error) {
	ctx, span := s.tracer.Start(ctx, "AdvanceDocument", trace.WithAttributes(
		attribute.String("company.code", req.CompanyCode),
		attribute.String("document.kind", req.Kind),
		attribute.Int("document.id", req.DocumentID),
		attribute.String("document.status", req.Status),
	))
	defer span.End()

	kind, err := core.ParseDocumentKind(req.Kind)
	if err != nil {
		return nil, fail(span, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
	}
	if req.Status == "" {
		return nil, fail(span, fmt.Errorf("%w: status is required", ErrInvalidRequest))
	}

	doc, err := s.store.GetDocument(ctx, kind, req.DocumentID)
	if err != nil {
		if errors.Is(err, core.ErrDocumentNotFound) {
			return nil, fail(span, err)
		}
		return nil, fail(span, &core.DependencyError{Op: "get document", Err: err})
	}
	if err := s.checkOrder(ctx, req.CompanyCode, doc.OrderID); err != nil {
		if errors.Is(err, core.ErrOrderNotFound) {
			err = fmt.Errorf("%w: %s %d", core.ErrDocumentNotFound, kind, req.DocumentID)
		}
		return nil, fail(span, err)
	}

	updated, err := s.orchestrator.AdvanceDocument(ctx, kind, req.DocumentID, core.DocumentStatus(req.Status))
	if err != nil {
		s.logger.Warn("document transition failed",
			zap.String("kind", string(kind)), zap.Int("document_id", req.DocumentID), zap.Error(err))
		return nil, fail(span, err)
	}
	s.logger.Info("document advanced",
		zap.String("kind", string(kind)),
		zap.String("number", updated.Number),
		zap.String("status", string(updated.Status)),
	)
	return &DocumentResult{Document: updated}, nil
}

func (s *appService) PlanSchema() *jsonschema.Schema {
	return s.schema
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// checkOrder reports ErrOrderNotFound for orders of other companies so that
// company scoping never leaks which order IDs exist.
func (s *appService) checkOrder(ctx context.Context, companyCode string, orderID int) error {
	order, err := s.store.GetOrderWithLines(ctx, orderID)
	if err != nil {
		if errors.Is(err, core.ErrOrderNotFound) {
			return err
		}
		return &core.DependencyError{Op: "load order", Err: err}
	}
	if order.CompanyCode != companyCode {
		return fmt.Errorf("%w: %d in company %s", core.ErrOrderNotFound, orderID, companyCode)
	}
	return nil
}

func parseOverride(s string) (*core.FulfillmentPolicy, error) {
	if s == "" {
		return nil, nil
	}
	p, err := core.ParseFulfillmentPolicy(s)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func generatePlanSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == reflect.TypeOf(decimal.Decimal{}) {
				return &jsonschema.Schema{Type: "string", Pattern: `^-?[0-9]+(\.[0-9]+)?$`}
			}
			return nil
		},
	}
	schema := reflector.Reflect(&core.OrchestrationPlan{})
	schema.Title = "OrchestrationPlan"
	return schema
}
