package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// OrderStatus is the aggregate fulfillment state of a sales order.
// Once confirmed it is recomputed from document states, never set by hand:
//
//	CONFIRMED → PROCESSING → READY_TO_SHIP
type OrderStatus string

const (
	OrderStatusDraft       OrderStatus = "DRAFT"
	OrderStatusConfirmed   OrderStatus = "CONFIRMED"
	OrderStatusProcessing  OrderStatus = "PROCESSING"
	OrderStatusReadyToShip OrderStatus = "READY_TO_SHIP"
	OrderStatusCancelled   OrderStatus = "CANCELLED"
)

// Plannable reports whether an order in this status may receive a new wave.
func (s OrderStatus) Plannable() bool {
	return s == OrderStatusConfirmed || s == OrderStatusProcessing
}

// FulfillmentPolicy decides whether an order may ship partially.
type FulfillmentPolicy string

const (
	PolicyShipComplete  FulfillmentPolicy = "SHIP_COMPLETE"
	PolicyShipPartial   FulfillmentPolicy = "SHIP_PARTIAL"
	PolicySalesDecision FulfillmentPolicy = "SALES_DECISION"
)

// Valid reports whether p is one of the known policies.
func (p FulfillmentPolicy) Valid() bool {
	switch p {
	case PolicyShipComplete, PolicyShipPartial, PolicySalesDecision:
		return true
	}
	return false
}

// ParseFulfillmentPolicy accepts the policy name case-insensitively.
func ParseFulfillmentPolicy(s string) (FulfillmentPolicy, error) {
	p := FulfillmentPolicy(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w %q", ErrUnknownPolicy, s)
	}
	return p, nil
}

// SalesOrder is the order snapshot consumed by planning.
type SalesOrder struct {
	ID                   int                `json:"id"`
	CompanyCode          string             `json:"company_code"`
	OrderNumber          string             `json:"order_number"`
	Status               OrderStatus        `json:"status"`
	Policy               *FulfillmentPolicy `json:"policy,omitempty"` // order-level override of the company default
	CompanyPolicy        FulfillmentPolicy  `json:"company_policy"`
	DefaultWarehouseCode string             `json:"default_warehouse_code,omitempty"`
	Lines                []OrderLine        `json:"lines"`
}

// OrderLine is immutable once the order is confirmed.
type OrderLine struct {
	ID            int             `json:"id"`
	OrderID       int             `json:"order_id"`
	LineNumber    int             `json:"line_number"`
	ProductID     int             `json:"product_id"`
	ProductCode   string          `json:"product_code"`
	Quantity      decimal.Decimal `json:"quantity"`
	WarehouseCode string          `json:"warehouse_code,omitempty"`
}

// EffectivePolicy resolves override > order policy > company default.
func (o *SalesOrder) EffectivePolicy(override *FulfillmentPolicy) FulfillmentPolicy {
	if override != nil {
		return *override
	}
	if o.Policy != nil {
		return *o.Policy
	}
	if o.CompanyPolicy != "" {
		return o.CompanyPolicy
	}
	return PolicySalesDecision
}
