package core

import (
	"github.com/shopspring/decimal"
)

// AllocationKind tags how a line is going to be satisfied.
type AllocationKind string

const (
	AllocationFromStock        AllocationKind = "FROM_STOCK"
	AllocationPartialTransfer  AllocationKind = "FROM_STOCK_PARTIAL_TRANSFER"
	AllocationAssemblyRequired AllocationKind = "ASSEMBLY_REQUIRED"
	AllocationBackorder        AllocationKind = "BACKORDER"
	AllocationBlocked          AllocationKind = "BLOCKED"
	AllocationCovered          AllocationKind = "COVERED"
)

// PurchaseReason explains why a purchase order line exists.
type PurchaseReason string

const (
	ReasonFinishedGoodsBackorder PurchaseReason = "FINISHED_GOODS_BACKORDER"
	ReasonComponentShortage      PurchaseReason = "COMPONENT_SHORTAGE"
)

// StockPick is a quantity picked from one warehouse for a line.
type StockPick struct {
	WarehouseCode string          `json:"warehouse_code"`
	Quantity      decimal.Decimal `json:"quantity"`
}

// TransferLeg moves stock for a line from a source warehouse to the line's target.
type TransferLeg struct {
	FromWarehouse     string          `json:"from_warehouse"`
	ToWarehouse       string          `json:"to_warehouse"`
	Quantity          decimal.Decimal `json:"quantity"`
	BelowReorderPoint bool            `json:"below_reorder_point"`
}

// ComponentAllocation is one expanded BOM leaf allocated for a job.
type ComponentAllocation struct {
	ProductID   int             `json:"product_id"`
	ProductCode string          `json:"product_code"`
	Required    decimal.Decimal `json:"required"`
	Available   decimal.Decimal `json:"available"` // reservable now at the job warehouse
	Shortfall   decimal.Decimal `json:"shortfall"`
	IsOptional  bool            `json:"is_optional"`
}

// AssemblyAllocation is the job part of a line allocation.
type AssemblyAllocation struct {
	WarehouseCode          string                `json:"warehouse_code"`
	Quantity               decimal.Decimal       `json:"quantity"`
	Components             []ComponentAllocation `json:"components"`
	AllComponentsAvailable bool                  `json:"all_components_available"`
}

// PurchaseNeed is a quantity that must be bought from a supplier.
type PurchaseNeed struct {
	SupplierID    int             `json:"supplier_id"`
	ProductID     int             `json:"product_id"`
	ProductCode   string          `json:"product_code"`
	WarehouseCode string          `json:"warehouse_code"`
	Quantity      decimal.Decimal `json:"quantity"`
	Reason        PurchaseReason  `json:"reason"`
}

// LineAllocation is the engine's decision for one order line.
type LineAllocation struct {
	OrderLineID     int                 `json:"order_line_id"`
	LineNumber      int                 `json:"line_number"`
	ProductID       int                 `json:"product_id"`
	ProductCode     string              `json:"product_code"`
	ProductType     ProductType         `json:"product_type"`
	TargetWarehouse string              `json:"target_warehouse"`
	Kind            AllocationKind      `json:"kind"`
	QuantityOrdered decimal.Decimal     `json:"quantity_ordered"`
	AlreadyCovered  decimal.Decimal     `json:"already_covered"`
	FromStock       decimal.Decimal     `json:"from_stock"`
	Transfer        decimal.Decimal     `json:"transfer"`
	Assembly        decimal.Decimal     `json:"assembly"`
	Backorder       decimal.Decimal     `json:"backorder"`
	Picks           []StockPick         `json:"picks,omitempty"`
	Transfers       []TransferLeg       `json:"transfers,omitempty"`
	Job             *AssemblyAllocation `json:"job,omitempty"`
	Purchases       []PurchaseNeed      `json:"purchases,omitempty"`
	BlockedReason   string              `json:"blocked_reason,omitempty"`
	Warnings        []string            `json:"warnings,omitempty"`
}

// Outstanding is what this wave has to plan for the line.
func (a LineAllocation) Outstanding() decimal.Decimal {
	return a.QuantityOrdered.Sub(a.AlreadyCovered)
}

// Allocated is the sum of every quantity the line was split into, including earlier coverage.
func (a LineAllocation) Allocated() decimal.Decimal {
	return a.AlreadyCovered.Add(a.FromStock).Add(a.Transfer).Add(a.Assembly).Add(a.Backorder)
}

// CompleteNow reports whether the line needs nothing beyond what exists today.
func (a LineAllocation) CompleteNow() bool {
	switch a.Kind {
	case AllocationCovered, AllocationFromStock:
		return true
	case AllocationAssemblyRequired:
		return a.Transfer.IsZero() && a.Backorder.IsZero() && a.Job != nil && a.Job.AllComponentsAvailable
	}
	return false
}

// HasWork reports whether executing the line creates any document: a pick,
// a transfer, a job card or a purchase.
func (a LineAllocation) HasWork() bool {
	if a.Kind == AllocationBlocked {
		return false
	}
	return len(a.Picks) > 0 || len(a.Transfers) > 0 || a.Job != nil || len(a.Purchases) > 0 ||
		a.FromStock.IsPositive() || a.Transfer.IsPositive() || a.Assembly.IsPositive() || a.Backorder.IsPositive()
}

// PickingSlipLinePlan is one line of a planned picking slip.
type PickingSlipLinePlan struct {
	OrderLineID int             `json:"order_line_id"`
	LineNumber  int             `json:"line_number"`
	ProductID   int             `json:"product_id"`
	ProductCode string          `json:"product_code"`
	Quantity    decimal.Decimal `json:"quantity"`
}

// PickingSlipPlan groups picks for one warehouse.
type PickingSlipPlan struct {
	WarehouseCode string                `json:"warehouse_code"`
	Lines         []PickingSlipLinePlan `json:"lines"`
}

// JobCardLinePlan is the share of a job card serving one order line.
type JobCardLinePlan struct {
	OrderLineID int             `json:"order_line_id"`
	LineNumber  int             `json:"line_number"`
	Quantity    decimal.Decimal `json:"quantity"`
}

// ComponentShortfall is a required component the job warehouse cannot cover.
type ComponentShortfall struct {
	ProductID   int             `json:"product_id"`
	ProductCode string          `json:"product_code"`
	Required    decimal.Decimal `json:"required"`
	Available   decimal.Decimal `json:"available"`
	Shortfall   decimal.Decimal `json:"shortfall"`
	IsOptional  bool            `json:"is_optional"`
}

// ComponentAvailability summarises a job card's component position.
type ComponentAvailability struct {
	AllComponentsAvailable bool                 `json:"all_components_available"`
	Shortfalls             []ComponentShortfall `json:"shortfalls"`
}

// JobCardPlan groups assembly of one product at one warehouse.
type JobCardPlan struct {
	ProductID             int                   `json:"product_id"`
	ProductCode           string                `json:"product_code"`
	WarehouseCode         string                `json:"warehouse_code"`
	Quantity              decimal.Decimal       `json:"quantity"`
	Lines                 []JobCardLinePlan     `json:"lines"`
	Components            []ComponentAllocation `json:"components"`
	ComponentAvailability ComponentAvailability `json:"component_availability"`
}

// TransferLinePlan is one line of a planned transfer.
type TransferLinePlan struct {
	OrderLineID       int             `json:"order_line_id"`
	LineNumber        int             `json:"line_number"`
	ProductID         int             `json:"product_id"`
	ProductCode       string          `json:"product_code"`
	Quantity          decimal.Decimal `json:"quantity"`
	BelowReorderPoint bool            `json:"below_reorder_point"`
}

// TransferPlan groups transfers for one (from, to) warehouse pair.
type TransferPlan struct {
	FromWarehouse string             `json:"from_warehouse"`
	ToWarehouse   string             `json:"to_warehouse"`
	Lines         []TransferLinePlan `json:"lines"`
}

// PurchaseOrderLinePlan is one line of a planned purchase order.
type PurchaseOrderLinePlan struct {
	OrderLineID   int             `json:"order_line_id"`
	LineNumber    int             `json:"line_number"`
	ProductID     int             `json:"product_id"`
	ProductCode   string          `json:"product_code"`
	WarehouseCode string          `json:"warehouse_code"`
	Quantity      decimal.Decimal `json:"quantity"`
	Reason        PurchaseReason  `json:"reason"`
}

// PurchaseOrderPlan groups purchases for one supplier.
type PurchaseOrderPlan struct {
	SupplierID   int                     `json:"supplier_id"`
	SupplierCode string                  `json:"supplier_code"`
	SupplierName string                  `json:"supplier_name"`
	Currency     string                  `json:"currency"`
	Lines        []PurchaseOrderLinePlan `json:"lines"`
}

// PlanSummary is the human-facing headline of a plan.
type PlanSummary struct {
	TotalLines                    int             `json:"total_lines"`
	ImmediatelyFulfillableLines   int             `json:"immediately_fulfillable_lines"`
	LinesNeedingAssembly          int             `json:"lines_needing_assembly"`
	LinesNeedingTransfer          int             `json:"lines_needing_transfer"`
	BackorderedLines              int             `json:"backordered_lines"`
	BlockedLines                  int             `json:"blocked_lines"`
	ImmediatelyFulfillablePercent decimal.Decimal `json:"immediately_fulfillable_percent"`
	Text                          string          `json:"text"`
}

// StockObservation records an availability figure the plan was computed against.
type StockObservation struct {
	ProductID     int             `json:"product_id"`
	WarehouseCode string          `json:"warehouse_code"`
	Available     decimal.Decimal `json:"available"`
}

// Key returns the stock row the observation refers to.
func (o StockObservation) Key() StockKey {
	return StockKey{ProductID: o.ProductID, WarehouseCode: o.WarehouseCode}
}

// OrchestrationPlan is an ephemeral, recomputable value. It has no identity
// and nothing is committed until it is executed.
type OrchestrationPlan struct {
	OrderID          int                 `json:"order_id"`
	OrderNumber      string              `json:"order_number"`
	Policy           FulfillmentPolicy   `json:"policy"`
	PolicyOverridden bool                `json:"policy_overridden"`
	Lines            []LineAllocation    `json:"lines"`
	PickingSlips     []PickingSlipPlan   `json:"picking_slips"`
	JobCards         []JobCardPlan       `json:"job_cards"`
	Transfers        []TransferPlan      `json:"transfers"`
	PurchaseOrders   []PurchaseOrderPlan `json:"purchase_orders"`
	Summary          PlanSummary         `json:"summary"`
	Warnings         []string            `json:"warnings"`
	CanProceed       bool                `json:"can_proceed"`
	BlockedReason    string              `json:"blocked_reason,omitempty"`
	Snapshot         []StockObservation  `json:"snapshot"`
	Digest           string              `json:"digest"`
}

// ExecutionResult reports what one executed wave committed.
type ExecutionResult struct {
	Success             bool              `json:"success"`
	OrderID             int               `json:"order_id"`
	WaveID              string            `json:"wave_id"`
	CreatedDocuments    []CreatedDocument `json:"created_documents"`
	ReservationsCreated []Reservation     `json:"reservations_created"`
	OrderStatusUpdated  bool              `json:"order_status_updated"`
	OrderStatus         OrderStatus       `json:"order_status"`
}
