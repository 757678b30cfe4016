package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DocumentKind identifies one of the downstream work documents.
type DocumentKind string

const (
	DocumentPickingSlip     DocumentKind = "PICKING_SLIP"
	DocumentJobCard         DocumentKind = "JOB_CARD"
	DocumentTransferRequest DocumentKind = "TRANSFER_REQUEST"
	DocumentPurchaseOrder   DocumentKind = "PURCHASE_ORDER"
)

// ParseDocumentKind accepts the kind name or its URL form (picking-slip, job-card, ...).
func ParseDocumentKind(s string) (DocumentKind, error) {
	k := DocumentKind(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	switch k {
	case DocumentPickingSlip, DocumentJobCard, DocumentTransferRequest, DocumentPurchaseOrder:
		return k, nil
	}
	return "", fmt.Errorf("unknown document kind %q", s)
}

// DocumentStatus is a state in a document's own lifecycle.
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "PENDING"
	DocumentStatusPicking    DocumentStatus = "PICKING"
	DocumentStatusPicked     DocumentStatus = "PICKED"
	DocumentStatusInProgress DocumentStatus = "IN_PROGRESS"
	DocumentStatusComplete   DocumentStatus = "COMPLETE"
	DocumentStatusInTransit  DocumentStatus = "IN_TRANSIT"
	DocumentStatusReceived   DocumentStatus = "RECEIVED"
	DocumentStatusDraft      DocumentStatus = "DRAFT"
	DocumentStatusSent       DocumentStatus = "SENT"
	DocumentStatusCancelled  DocumentStatus = "CANCELLED"
)

// documentLifecycles lists the allowed transitions per document kind.
var documentLifecycles = map[DocumentKind]map[DocumentStatus][]DocumentStatus{
	DocumentPickingSlip: {
		DocumentStatusPending: {DocumentStatusPicking, DocumentStatusCancelled},
		DocumentStatusPicking: {DocumentStatusPicked, DocumentStatusCancelled},
	},
	DocumentJobCard: {
		DocumentStatusPending:    {DocumentStatusInProgress, DocumentStatusCancelled},
		DocumentStatusInProgress: {DocumentStatusComplete},
	},
	DocumentTransferRequest: {
		DocumentStatusPending:   {DocumentStatusInTransit, DocumentStatusCancelled},
		DocumentStatusInTransit: {DocumentStatusReceived},
	},
	DocumentPurchaseOrder: {
		DocumentStatusDraft: {DocumentStatusSent, DocumentStatusCancelled},
		DocumentStatusSent:  {DocumentStatusReceived},
	},
}

// InitialDocumentStatus is the status a freshly executed document starts in.
func InitialDocumentStatus(kind DocumentKind) DocumentStatus {
	if kind == DocumentPurchaseOrder {
		return DocumentStatusDraft
	}
	return DocumentStatusPending
}

// ValidateTransition returns an *InvalidTransitionError when from → to is not allowed.
func ValidateTransition(kind DocumentKind, from, to DocumentStatus) error {
	for _, next := range documentLifecycles[kind][from] {
		if next == to {
			return nil
		}
	}
	return &InvalidTransitionError{Kind: kind, From: from, To: to}
}

// DocumentLine links a document back to the order line it serves.
// Reason is set only on purchase order lines.
type DocumentLine struct {
	OrderLineID   int             `json:"order_line_id"`
	ProductID     int             `json:"product_id"`
	WarehouseCode string          `json:"warehouse_code,omitempty"`
	Quantity      decimal.Decimal `json:"quantity"`
	Reason        PurchaseReason  `json:"reason,omitempty"`
}

// DocumentComponent is a component a job card consumes on completion.
// Optional components are issued only up to what was reserved.
type DocumentComponent struct {
	ProductID  int             `json:"product_id"`
	Required   decimal.Decimal `json:"required"`
	Reserved   decimal.Decimal `json:"reserved"`
	IsOptional bool            `json:"is_optional,omitempty"`
}

// OrderDocument is the persisted view of any downstream document.
type OrderDocument struct {
	Kind          DocumentKind        `json:"kind"`
	ID            int                 `json:"id"`
	Number        string              `json:"number"`
	OrderID       int                 `json:"order_id"`
	WaveID        string              `json:"wave_id"`
	Status        DocumentStatus      `json:"status"`
	WarehouseCode string              `json:"warehouse_code,omitempty"` // picking/job warehouse, transfer destination
	FromWarehouse string              `json:"from_warehouse,omitempty"` // transfers only
	ProductID     int                 `json:"product_id,omitempty"`     // job cards only: the assembled product
	Quantity      decimal.Decimal     `json:"quantity"`                 // job cards only: units to assemble
	SupplierID    int                 `json:"supplier_id,omitempty"`    // purchase orders only
	Lines         []DocumentLine      `json:"lines"`
	Components    []DocumentComponent `json:"components,omitempty"` // job cards only
}

// CreatedDocument is returned by the document factories.
type CreatedDocument struct {
	Kind   DocumentKind   `json:"kind"`
	ID     int            `json:"id"`
	Number string         `json:"number"`
	Status DocumentStatus `json:"status"`
}

// PickingSlipSpec is the factory input for a picking slip.
type PickingSlipSpec struct {
	OrderID int
	WaveID  string
	Plan    PickingSlipPlan
}

// JobCardSpec is the factory input for a job card.
type JobCardSpec struct {
	OrderID int
	WaveID  string
	Plan    JobCardPlan
}

// TransferRequestSpec is the factory input for an inter-warehouse transfer.
type TransferRequestSpec struct {
	OrderID int
	WaveID  string
	Plan    TransferPlan
}

// PurchaseOrderSpec is the factory input for a supplier purchase order.
type PurchaseOrderSpec struct {
	OrderID int
	WaveID  string
	Plan    PurchaseOrderPlan
}

// DocumentNumber renders the human-readable number used by the bundled stores.
func DocumentNumber(kind DocumentKind, id int) string {
	prefix := map[DocumentKind]string{
		DocumentPickingSlip:     "PS",
		DocumentJobCard:         "JC",
		DocumentTransferRequest: "TR",
		DocumentPurchaseOrder:   "PO",
	}[kind]
	return fmt.Sprintf("%s-%06d", prefix, id)
}

// PickingSlipDocument converts a picking slip spec to the generic document view.
func PickingSlipDocument(spec PickingSlipSpec) OrderDocument {
	doc := OrderDocument{
		Kind:          DocumentPickingSlip,
		OrderID:       spec.OrderID,
		WaveID:        spec.WaveID,
		Status:        InitialDocumentStatus(DocumentPickingSlip),
		WarehouseCode: spec.Plan.WarehouseCode,
	}
	for _, l := range spec.Plan.Lines {
		doc.Lines = append(doc.Lines, DocumentLine{
			OrderLineID: l.OrderLineID, ProductID: l.ProductID,
			WarehouseCode: spec.Plan.WarehouseCode, Quantity: l.Quantity,
		})
	}
	return doc
}

// JobCardDocument converts a job card spec to the generic document view.
func JobCardDocument(spec JobCardSpec) OrderDocument {
	doc := OrderDocument{
		Kind:          DocumentJobCard,
		OrderID:       spec.OrderID,
		WaveID:        spec.WaveID,
		Status:        InitialDocumentStatus(DocumentJobCard),
		WarehouseCode: spec.Plan.WarehouseCode,
		ProductID:     spec.Plan.ProductID,
		Quantity:      spec.Plan.Quantity,
	}
	for _, l := range spec.Plan.Lines {
		doc.Lines = append(doc.Lines, DocumentLine{
			OrderLineID: l.OrderLineID, ProductID: spec.Plan.ProductID,
			WarehouseCode: spec.Plan.WarehouseCode, Quantity: l.Quantity,
		})
	}
	for _, c := range spec.Plan.Components {
		doc.Components = append(doc.Components, DocumentComponent{
			ProductID: c.ProductID, Required: c.Required, Reserved: c.Available, IsOptional: c.IsOptional,
		})
	}
	return doc
}

// TransferDocument converts a transfer spec to the generic document view.
func TransferDocument(spec TransferRequestSpec) OrderDocument {
	doc := OrderDocument{
		Kind:          DocumentTransferRequest,
		OrderID:       spec.OrderID,
		WaveID:        spec.WaveID,
		Status:        InitialDocumentStatus(DocumentTransferRequest),
		WarehouseCode: spec.Plan.ToWarehouse,
		FromWarehouse: spec.Plan.FromWarehouse,
	}
	for _, l := range spec.Plan.Lines {
		doc.Lines = append(doc.Lines, DocumentLine{
			OrderLineID: l.OrderLineID, ProductID: l.ProductID,
			WarehouseCode: spec.Plan.ToWarehouse, Quantity: l.Quantity,
		})
	}
	return doc
}

// PurchaseOrderDocument converts a purchase order spec to the generic document view.
func PurchaseOrderDocument(spec PurchaseOrderSpec) OrderDocument {
	doc := OrderDocument{
		Kind:       DocumentPurchaseOrder,
		OrderID:    spec.OrderID,
		WaveID:     spec.WaveID,
		Status:     InitialDocumentStatus(DocumentPurchaseOrder),
		SupplierID: spec.Plan.SupplierID,
	}
	for _, l := range spec.Plan.Lines {
		doc.Lines = append(doc.Lines, DocumentLine{
			OrderLineID: l.OrderLineID, ProductID: l.ProductID,
			WarehouseCode: l.WarehouseCode, Quantity: l.Quantity, Reason: l.Reason,
		})
	}
	return doc
}
