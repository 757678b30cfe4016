package core

import (
	"github.com/shopspring/decimal"
)

// DeriveOrderStatus recomputes an order's status from its documents:
// READY_TO_SHIP once picked quantities cover every line, PROCESSING while
// any document is live, CONFIRMED otherwise. DRAFT and CANCELLED orders
// keep their status.
func DeriveOrderStatus(order *SalesOrder, docs []OrderDocument) OrderStatus {
	if order.Status == OrderStatusDraft || order.Status == OrderStatusCancelled {
		return order.Status
	}

	picked := make(map[int]decimal.Decimal)
	live := false
	for _, d := range docs {
		if d.Status == DocumentStatusCancelled {
			continue
		}
		live = true
		if d.Kind == DocumentPickingSlip && d.Status == DocumentStatusPicked {
			for _, l := range d.Lines {
				picked[l.OrderLineID] = picked[l.OrderLineID].Add(l.Quantity)
			}
		}
	}

	if len(order.Lines) > 0 {
		ready := true
		for _, l := range order.Lines {
			if picked[l.ID].LessThan(l.Quantity) {
				ready = false
				break
			}
		}
		if ready {
			return OrderStatusReadyToShip
		}
	}
	if live {
		return OrderStatusProcessing
	}
	return OrderStatusConfirmed
}

// LineCoverage returns, per order line, the quantity earlier waves already
// committed and that a new wave must not plan again: picking slips that were
// not cancelled, job cards and transfers still under way, and finished-goods
// purchase orders not yet received. Completed job cards, received transfers and
// received purchases have turned into stock that a new wave picks.
func LineCoverage(docs []OrderDocument) map[int]decimal.Decimal {
	covered := make(map[int]decimal.Decimal)
	for _, d := range docs {
		if !coversDemand(d) {
			continue
		}
		for _, l := range d.Lines {
			if d.Kind == DocumentPurchaseOrder && l.Reason != ReasonFinishedGoodsBackorder {
				continue
			}
			covered[l.OrderLineID] = covered[l.OrderLineID].Add(l.Quantity)
		}
	}
	return covered
}

func coversDemand(d OrderDocument) bool {
	switch d.Kind {
	case DocumentPickingSlip:
		return d.Status != DocumentStatusCancelled
	case DocumentJobCard, DocumentTransferRequest:
		return d.Status == DocumentStatusPending || d.Status == DocumentStatusInProgress || d.Status == DocumentStatusInTransit
	case DocumentPurchaseOrder:
		return d.Status == DocumentStatusDraft || d.Status == DocumentStatusSent
	}
	return false
}
