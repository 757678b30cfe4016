package memstore

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"fulfillment-orchestrator/internal/core"
)

// waveTx mutates a private clone of the store state.
type waveTx struct {
	state state
	fault FaultFunc
}

func (tx *waveTx) check(op string) error {
	if tx.fault == nil {
		return nil
	}
	return tx.fault(op)
}

func (tx *waveTx) GetOrder(_ context.Context, orderID int) (*core.SalesOrder, error) {
	return tx.state.order(orderID)
}

func (tx *waveTx) GetStockLevels(_ context.Context, keys []core.StockKey) ([]core.StockLevel, error) {
	return tx.state.stockLevels(keys), nil
}

func (tx *waveTx) Reserve(_ context.Context, waveID string, orderID int, req core.ReservationRequest) (*core.Reservation, error) {
	if err := tx.check("Reserve"); err != nil {
		return nil, err
	}
	if !req.Quantity.IsPositive() {
		return nil, fmt.Errorf("reservation quantity must be positive, got %s", req.Quantity)
	}
	level := tx.state.stock[req.Key]
	level.Key = req.Key
	if available := level.Available(); available.LessThan(req.Quantity) {
		return nil, &core.ReservationConflictError{
			Document: req.DocumentType, DocumentID: req.DocumentID, OrderLineID: req.OrderLineID, Key: req.Key,
			Requested: req.Quantity, Available: available,
		}
	}
	level.SoftReserved = level.SoftReserved.Add(req.Quantity)
	tx.state.stock[req.Key] = level

	tx.state.nextResID++
	r := core.Reservation{
		ID: tx.state.nextResID, WaveID: waveID, OrderID: orderID, Key: req.Key, Quantity: req.Quantity,
		Type: core.ReservationSoft, Status: core.ReservationActive,
		DocumentType: req.DocumentType, DocumentID: req.DocumentID, OrderLineID: req.OrderLineID,
	}
	tx.state.reservations = append(tx.state.reservations, r)
	return &r, nil
}

func (tx *waveTx) create(op string, doc core.OrderDocument) (core.CreatedDocument, error) {
	if err := tx.check(op); err != nil {
		return core.CreatedDocument{}, err
	}
	tx.state.nextDocID[doc.Kind]++
	doc.ID = tx.state.nextDocID[doc.Kind]
	doc.Number = core.DocumentNumber(doc.Kind, doc.ID)
	tx.state.documents[docKey{doc.Kind, doc.ID}] = doc
	return core.CreatedDocument{Kind: doc.Kind, ID: doc.ID, Number: doc.Number, Status: doc.Status}, nil
}

func (tx *waveTx) CreatePickingSlip(_ context.Context, spec core.PickingSlipSpec) (core.CreatedDocument, error) {
	return tx.create("CreatePickingSlip", core.PickingSlipDocument(spec))
}

func (tx *waveTx) CreateJobCard(_ context.Context, spec core.JobCardSpec) (core.CreatedDocument, error) {
	return tx.create("CreateJobCard", core.JobCardDocument(spec))
}

func (tx *waveTx) CreateTransferRequest(_ context.Context, spec core.TransferRequestSpec) (core.CreatedDocument, error) {
	return tx.create("CreateTransferRequest", core.TransferDocument(spec))
}

func (tx *waveTx) CreatePurchaseOrder(_ context.Context, spec core.PurchaseOrderSpec) (core.CreatedDocument, error) {
	return tx.create("CreatePurchaseOrder", core.PurchaseOrderDocument(spec))
}

func (tx *waveTx) ListOrderDocuments(_ context.Context, orderID int) ([]core.OrderDocument, error) {
	return tx.state.orderDocuments(orderID), nil
}

func (tx *waveTx) UpdateOrderStatus(_ context.Context, orderID int, status core.OrderStatus) error {
	if err := tx.check("UpdateOrderStatus"); err != nil {
		return err
	}
	o, ok := tx.state.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %d", core.ErrOrderNotFound, orderID)
	}
	o.Status = status
	tx.state.orders[orderID] = o
	return nil
}

func (tx *waveTx) SetDocumentStatus(_ context.Context, kind core.DocumentKind, id int, status core.DocumentStatus) error {
	if err := tx.check("SetDocumentStatus"); err != nil {
		return err
	}
	k := docKey{kind, id}
	d, ok := tx.state.documents[k]
	if !ok {
		return fmt.Errorf("%w: %s %d", core.ErrDocumentNotFound, kind, id)
	}
	d.Status = status
	tx.state.documents[k] = d
	return nil
}

// eachActive calls fn with a pointer into the cloned reservation slice.
func (tx *waveTx) eachActive(kind core.DocumentKind, id int, fn func(r *core.Reservation)) {
	for i := range tx.state.reservations {
		r := &tx.state.reservations[i]
		if r.DocumentType == kind && r.DocumentID == id && r.Status == core.ReservationActive {
			fn(r)
		}
	}
}

func (tx *waveTx) unreserve(r *core.Reservation) core.StockLevel {
	level := tx.state.stock[r.Key]
	if r.Type == core.ReservationHard {
		level.HardReserved = level.HardReserved.Sub(r.Quantity)
	} else {
		level.SoftReserved = level.SoftReserved.Sub(r.Quantity)
	}
	return level
}

func (tx *waveTx) ReleaseReservations(_ context.Context, kind core.DocumentKind, id int) error {
	if err := tx.check("ReleaseReservations"); err != nil {
		return err
	}
	tx.eachActive(kind, id, func(r *core.Reservation) {
		tx.state.stock[r.Key] = tx.unreserve(r)
		r.Status = core.ReservationReleased
	})
	return nil
}

func (tx *waveTx) ConvertReservations(_ context.Context, kind core.DocumentKind, id int) error {
	if err := tx.check("ConvertReservations"); err != nil {
		return err
	}
	tx.eachActive(kind, id, func(r *core.Reservation) {
		if r.Type == core.ReservationHard {
			return
		}
		level := tx.state.stock[r.Key]
		level.SoftReserved = level.SoftReserved.Sub(r.Quantity)
		level.HardReserved = level.HardReserved.Add(r.Quantity)
		tx.state.stock[r.Key] = level
		r.Type = core.ReservationHard
	})
	return nil
}

func (tx *waveTx) ConsumeReservations(_ context.Context, kind core.DocumentKind, id int) (map[core.StockKey]decimal.Decimal, error) {
	if err := tx.check("ConsumeReservations"); err != nil {
		return nil, err
	}
	consumed := make(map[core.StockKey]decimal.Decimal)
	tx.eachActive(kind, id, func(r *core.Reservation) {
		level := tx.unreserve(r)
		level.OnHand = level.OnHand.Sub(r.Quantity)
		tx.state.stock[r.Key] = level
		r.Status = core.ReservationConsumed
		consumed[r.Key] = consumed[r.Key].Add(r.Quantity)
	})
	return consumed, nil
}

func (tx *waveTx) ApplyMovement(_ context.Context, kind core.DocumentKind, id int, m core.StockMovement) error {
	if err := tx.check("ApplyMovement"); err != nil {
		return err
	}
	level := tx.state.stock[m.Key]
	level.Key = m.Key
	level.OnHand = level.OnHand.Add(m.OnHand)
	level.OnOrder = level.OnOrder.Add(m.OnOrder)
	if level.Available().IsNegative() || level.OnOrder.IsNegative() {
		current := tx.state.stock[m.Key]
		return &core.ReservationConflictError{
			Document: kind, DocumentID: id, Key: m.Key,
			Requested: m.OnHand.Neg(), Available: current.Available(),
		}
	}
	tx.state.stock[m.Key] = level
	return nil
}
