package core

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// DocumentAdvancer moves downstream documents through their lifecycles and
// applies the stock effect of each transition.
type DocumentAdvancer struct {
	store WaveStore
}

func NewDocumentAdvancer(store WaveStore) *DocumentAdvancer {
	return &DocumentAdvancer{store: store}
}

// Advance validates the transition, applies its stock effect and recomputes
// the owning order's status in one transaction.
//
//	picking slip  PICKED     soft reservations become hard
//	job card      COMPLETE   components are issued, the assembled product received
//	transfer      RECEIVED   source reservations issued, destination received
//	purchase      SENT       on order raised; RECEIVED moves it to on hand
//	any           CANCELLED  outstanding reservations released
func (a *DocumentAdvancer) Advance(ctx context.Context, kind DocumentKind, id int, to DocumentStatus) (*OrderDocument, error) {
	var updated OrderDocument
	err := a.store.AdvanceDocument(ctx, kind, id, func(ctx context.Context, tx WaveTx, doc *OrderDocument) error {
		if err := ValidateTransition(kind, doc.Status, to); err != nil {
			return err
		}
		if err := applyTransition(ctx, tx, doc, to); err != nil {
			return withDocumentNumber(err, doc.Number)
		}
		if err := tx.SetDocumentStatus(ctx, kind, id, to); err != nil {
			return dependency("set document status", err)
		}

		order, err := tx.GetOrder(ctx, doc.OrderID)
		if err != nil {
			return dependency("load order", err)
		}
		docs, err := tx.ListOrderDocuments(ctx, doc.OrderID)
		if err != nil {
			return dependency("list order documents", err)
		}
		if status := DeriveOrderStatus(order, docs); status != order.Status {
			if err := tx.UpdateOrderStatus(ctx, order.ID, status); err != nil {
				return dependency("update order status", err)
			}
		}

		updated = *doc
		updated.Status = to
		return nil
	})
	if err != nil {
		return nil, dependency(fmt.Sprintf("advance %s %d", kind, id), err)
	}
	return &updated, nil
}

func applyTransition(ctx context.Context, tx WaveTx, doc *OrderDocument, to DocumentStatus) error {
	if to == DocumentStatusCancelled {
		return dependency("release reservations", tx.ReleaseReservations(ctx, doc.Kind, doc.ID))
	}

	switch doc.Kind {
	case DocumentPickingSlip:
		if to == DocumentStatusPicked {
			return dependency("convert reservations", tx.ConvertReservations(ctx, doc.Kind, doc.ID))
		}

	case DocumentJobCard:
		if to != DocumentStatusComplete {
			return nil
		}
		consumed, err := tx.ConsumeReservations(ctx, doc.Kind, doc.ID)
		if err != nil {
			return dependency("consume component reservations", err)
		}
		// Required components that were short at execution must be on hand
		// by now. Optional ones are built without whatever was not reserved.
		needed := make(map[StockKey]decimal.Decimal)
		var keys []StockKey
		for _, c := range doc.Components {
			key := StockKey{ProductID: c.ProductID, WarehouseCode: doc.WarehouseCode}
			if _, seen := needed[key]; !seen {
				keys = append(keys, key)
			}
			qty := c.Required
			if c.IsOptional {
				qty = c.Reserved
			}
			needed[key] = needed[key].Add(qty)
		}
		for _, key := range keys {
			if rest := needed[key].Sub(consumed[key]); rest.IsPositive() {
				if err := tx.ApplyMovement(ctx, doc.Kind, doc.ID, StockMovement{Key: key, OnHand: rest.Neg()}); err != nil {
					return dependency("issue components", err)
				}
			}
		}
		finished := StockKey{ProductID: doc.ProductID, WarehouseCode: doc.WarehouseCode}
		return dependency("receive assembled product", tx.ApplyMovement(ctx, doc.Kind, doc.ID, StockMovement{Key: finished, OnHand: doc.Quantity}))

	case DocumentTransferRequest:
		if to != DocumentStatusReceived {
			return nil
		}
		if _, err := tx.ConsumeReservations(ctx, doc.Kind, doc.ID); err != nil {
			return dependency("issue transfer stock", err)
		}
		for _, l := range doc.Lines {
			key := StockKey{ProductID: l.ProductID, WarehouseCode: doc.WarehouseCode}
			if err := tx.ApplyMovement(ctx, doc.Kind, doc.ID, StockMovement{Key: key, OnHand: l.Quantity}); err != nil {
				return dependency("receive transfer stock", err)
			}
		}

	case DocumentPurchaseOrder:
		for _, l := range doc.Lines {
			key := StockKey{ProductID: l.ProductID, WarehouseCode: l.WarehouseCode}
			var m StockMovement
			switch to {
			case DocumentStatusSent:
				m = StockMovement{Key: key, OnOrder: l.Quantity}
			case DocumentStatusReceived:
				m = StockMovement{Key: key, OnHand: l.Quantity, OnOrder: l.Quantity.Neg()}
			default:
				return nil
			}
			if err := tx.ApplyMovement(ctx, doc.Kind, doc.ID, m); err != nil {
				return dependency("record purchase movement", err)
			}
		}
	}
	return nil
}
