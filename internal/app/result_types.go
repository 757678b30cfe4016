package app

import "fulfillment-orchestrator/internal/core"

// PlanResult is returned by GeneratePlan.
type PlanResult struct {
	Plan *core.OrchestrationPlan `json:"plan"`
}

// ExecutionResult is returned by ExecutePlan.
type ExecutionResult struct {
	Result *core.ExecutionResult `json:"result"`
}

// BatchPlanResult is returned by GeneratePlans, in request order.
type BatchPlanResult struct {
	CompanyCode string                 `json:"company_code"`
	Results     []core.BatchPlanResult `json:"results"`
}

// StockAvailabilityResult is returned by GetStockAvailability, in query order.
type StockAvailabilityResult struct {
	CompanyCode string               `json:"company_code"`
	Stock       []core.StockSnapshot `json:"stock"`
}

// DocumentResult is returned by AdvanceDocument.
type DocumentResult struct {
	Document *core.OrderDocument `json:"document"`
}
