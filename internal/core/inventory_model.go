package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// StockKey addresses one stock row: a product held in a warehouse.
type StockKey struct {
	ProductID     int    `json:"product_id"`
	WarehouseCode string `json:"warehouse_code"`
}

func (k StockKey) String() string {
	return fmt.Sprintf("%d@%s", k.ProductID, k.WarehouseCode)
}

// StockLevel is the persisted inventory position for one (product, warehouse).
// It is mutated only by movement operations (receipts, reservations, releases).
type StockLevel struct {
	Key             StockKey         `json:"key"`
	OnHand          decimal.Decimal  `json:"on_hand"`
	SoftReserved    decimal.Decimal  `json:"soft_reserved"`
	HardReserved    decimal.Decimal  `json:"hard_reserved"`
	OnOrder         decimal.Decimal  `json:"on_order"`
	ReorderPoint    decimal.Decimal  `json:"reorder_point"`
	ReorderQuantity decimal.Decimal  `json:"reorder_quantity"`
	MaximumStock    *decimal.Decimal `json:"maximum_stock,omitempty"`
}

// Available = OnHand - SoftReserved - HardReserved.
func (l StockLevel) Available() decimal.Decimal {
	return l.OnHand.Sub(l.SoftReserved).Sub(l.HardReserved)
}

// StockStatus is the derived health of a stock position.
type StockStatus string

const (
	StockStatusInStock    StockStatus = "IN_STOCK"
	StockStatusLowStock   StockStatus = "LOW_STOCK"
	StockStatusOutOfStock StockStatus = "OUT_OF_STOCK"
	StockStatusOnOrder    StockStatus = "ON_ORDER"
	StockStatusOverstock  StockStatus = "OVERSTOCK"
)

// StockSnapshot is the read view returned by the StockResolver.
type StockSnapshot struct {
	Key          StockKey        `json:"key"`
	OnHand       decimal.Decimal `json:"on_hand"`
	SoftReserved decimal.Decimal `json:"soft_reserved"`
	HardReserved decimal.Decimal `json:"hard_reserved"`
	Available    decimal.Decimal `json:"available"`
	OnOrder      decimal.Decimal `json:"on_order"`
	ReorderPoint decimal.Decimal `json:"reorder_point"`
	Status       StockStatus     `json:"stock_status"`
}

// ReservationType distinguishes reallocatable commitments from locked ones.
type ReservationType string

const (
	ReservationSoft ReservationType = "SOFT"
	ReservationHard ReservationType = "HARD"
)

// ReservationRequest asks the store to commit stock to a document.
type ReservationRequest struct {
	Key          StockKey        `json:"key"`
	Quantity     decimal.Decimal `json:"quantity"`
	DocumentType DocumentKind    `json:"document_type"`
	DocumentID   int             `json:"document_id"`
	OrderLineID  int             `json:"order_line_id,omitempty"`
}

// ReservationStatus tracks a reservation after it was placed.
type ReservationStatus string

const (
	ReservationActive   ReservationStatus = "ACTIVE"
	ReservationReleased ReservationStatus = "RELEASED"
	ReservationConsumed ReservationStatus = "CONSUMED"
)

// Reservation is a stock commitment recorded against a document.
type Reservation struct {
	ID           int               `json:"id"`
	WaveID       string            `json:"wave_id"`
	OrderID      int               `json:"order_id"`
	Key          StockKey          `json:"key"`
	Quantity     decimal.Decimal   `json:"quantity"`
	Type         ReservationType   `json:"type"`
	Status       ReservationStatus `json:"status"`
	DocumentType DocumentKind      `json:"document_type"`
	DocumentID   int               `json:"document_id"`
	OrderLineID  int               `json:"order_line_id,omitempty"`
}

// StockMovement changes a stock row outside of reservations: receipts,
// issues to production, and purchase orders placed or received.
type StockMovement struct {
	Key     StockKey        `json:"key"`
	OnHand  decimal.Decimal `json:"on_hand"`
	OnOrder decimal.Decimal `json:"on_order"`
}
