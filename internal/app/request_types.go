package app

import "fulfillment-orchestrator/internal/core"

// GeneratePlanRequest is the input for GeneratePlan.
type GeneratePlanRequest struct {
	CompanyCode    string
	OrderID        int
	PolicyOverride string // empty means "use the order or company policy"
}

// ExecutePlanRequest is the input for ExecutePlan.
type ExecutePlanRequest struct {
	CompanyCode string
	OrderID     int
	Plan        *core.OrchestrationPlan
}

// BatchPlanRequest is the input for GeneratePlans.
type BatchPlanRequest struct {
	CompanyCode    string
	OrderIDs       []int
	PolicyOverride string
}

// StockQuery is the input for GetStockAvailability.
type StockQuery struct {
	CompanyCode string
	Keys        []core.StockKey
}

// AdvanceDocumentRequest is the input for AdvanceDocument.
type AdvanceDocumentRequest struct {
	CompanyCode string
	Kind        string
	DocumentID  int
	Status      string
}
