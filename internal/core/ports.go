package core

import (
	"context"

	"github.com/shopspring/decimal"
)

// OrderReader loads orders for planning.
type OrderReader interface {
	// GetOrderWithLines returns ErrOrderNotFound for an unknown order.
	GetOrderWithLines(ctx context.Context, orderID int) (*SalesOrder, error)
}

// CatalogReader serves products and their bills of materials.
type CatalogReader interface {
	// GetProduct returns ErrProductNotFound for an unknown product.
	GetProduct(ctx context.Context, productID int) (*Product, error)
	// GetBOMComponents returns the BOM lines of a product ordered by SortOrder.
	GetBOMComponents(ctx context.Context, productID int) ([]BOMComponent, error)
}

// StockReader reads many stock rows in one consistent read.
// Keys without a row are simply absent from the result.
type StockReader interface {
	GetStockLevels(ctx context.Context, keys []StockKey) ([]StockLevel, error)
}

// SupplierDirectory resolves the default purchasing source of a product.
type SupplierDirectory interface {
	// GetDefaultSupplier returns nil, nil when the product has no default supplier.
	GetDefaultSupplier(ctx context.Context, productID int) (*Supplier, error)
}

// WarehouseDirectory lists the active warehouses of a company.
type WarehouseDirectory interface {
	ListWarehouses(ctx context.Context, companyCode string) ([]Warehouse, error)
}

// DocumentReader lists the documents earlier waves created for an order.
type DocumentReader interface {
	ListOrderDocuments(ctx context.Context, orderID int) ([]OrderDocument, error)
}

// WaveStore runs state changes inside one transaction.
type WaveStore interface {
	// ExecuteWave locks the order and runs fn in a single transaction.
	// Execution attempts for the same order are serialized. If fn returns
	// an error nothing fn did is committed.
	ExecuteWave(ctx context.Context, orderID int, fn func(ctx context.Context, tx WaveTx) error) error
	// AdvanceDocument locks the document and its order and runs fn in a
	// single transaction with the document's current state.
	AdvanceDocument(ctx context.Context, kind DocumentKind, documentID int,
		fn func(ctx context.Context, tx WaveTx, doc *OrderDocument) error) error
}

// WaveTx is the transaction handle passed to WaveStore callbacks.
type WaveTx interface {
	GetOrder(ctx context.Context, orderID int) (*SalesOrder, error)
	// GetStockLevels reads stock rows and locks them until the transaction ends.
	GetStockLevels(ctx context.Context, keys []StockKey) ([]StockLevel, error)
	// Reserve places a soft reservation only if available stock covers it,
	// otherwise it returns a *ReservationConflictError.
	Reserve(ctx context.Context, waveID string, orderID int, req ReservationRequest) (*Reservation, error)

	CreatePickingSlip(ctx context.Context, spec PickingSlipSpec) (CreatedDocument, error)
	CreateJobCard(ctx context.Context, spec JobCardSpec) (CreatedDocument, error)
	CreateTransferRequest(ctx context.Context, spec TransferRequestSpec) (CreatedDocument, error)
	CreatePurchaseOrder(ctx context.Context, spec PurchaseOrderSpec) (CreatedDocument, error)

	ListOrderDocuments(ctx context.Context, orderID int) ([]OrderDocument, error)
	UpdateOrderStatus(ctx context.Context, orderID int, status OrderStatus) error
	SetDocumentStatus(ctx context.Context, kind DocumentKind, documentID int, status DocumentStatus) error

	// ReleaseReservations returns every active reservation of a document to available stock.
	ReleaseReservations(ctx context.Context, kind DocumentKind, documentID int) error
	// ConvertReservations turns a document's soft reservations into hard ones.
	ConvertReservations(ctx context.Context, kind DocumentKind, documentID int) error
	// ConsumeReservations issues reserved stock: on hand and the reservation
	// both drop by the reserved quantity. It returns what was consumed per row.
	ConsumeReservations(ctx context.Context, kind DocumentKind, documentID int) (map[StockKey]decimal.Decimal, error)
	// ApplyMovement adjusts on hand and on order. A movement that would drive
	// available stock or on order below zero returns a *ReservationConflictError.
	ApplyMovement(ctx context.Context, kind DocumentKind, documentID int, m StockMovement) error
}

// Store is everything the orchestrator needs from persistence.
type Store interface {
	OrderReader
	CatalogReader
	StockReader
	SupplierDirectory
	WarehouseDirectory
	DocumentReader
	WaveStore
}

// WaveEventPublisher is notified after a wave has been committed.
type WaveEventPublisher interface {
	PublishWaveExecuted(ctx context.Context, event WaveExecutedEvent) error
}

// WaveExecutedEvent describes a committed wave.
type WaveExecutedEvent struct {
	WaveID              string            `json:"wave_id"`
	OrderID             int               `json:"order_id"`
	OrderNumber         string            `json:"order_number"`
	CompanyCode         string            `json:"company_code"`
	Policy              FulfillmentPolicy `json:"policy"`
	OrderStatus         OrderStatus       `json:"order_status"`
	Documents           []CreatedDocument `json:"documents"`
	ReservationsCreated int               `json:"reservations_created"`
}
