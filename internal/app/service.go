package app

import (
	"context"

	"github.com/invopop/jsonschema"
)

// ApplicationService is the single interface all adapters (CLI, Web) call.
// It decouples presentation from business logic and scopes every operation
// to a company. Implementations must contain no display logic of any kind.
type ApplicationService interface {
	// GeneratePlan builds a fulfillment plan for one order. It never writes.
	GeneratePlan(ctx context.Context, req GeneratePlanRequest) (*PlanResult, error)

	// ExecutePlan commits a previously generated plan as one wave: documents,
	// reservations and the order status change all land or none do.
	ExecutePlan(ctx context.Context, req ExecutePlanRequest) (*ExecutionResult, error)

	// GeneratePlans plans many orders concurrently. One failing order does
	// not fail the batch; its result carries the error instead.
	GeneratePlans(ctx context.Context, req BatchPlanRequest) (*BatchPlanResult, error)

	// GetStockAvailability returns point-in-time availability for each key.
	GetStockAvailability(ctx context.Context, req StockQuery) (*StockAvailabilityResult, error)

	// AdvanceDocument moves a fulfillment document to a new status and applies
	// the stock effects of that transition.
	AdvanceDocument(ctx context.Context, req AdvanceDocumentRequest) (*DocumentResult, error)

	// PlanSchema returns the JSON Schema of the plan payload ExecutePlan accepts.
	PlanSchema() *jsonschema.Schema
}
