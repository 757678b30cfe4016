package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"fulfillment-orchestrator/internal/core"
)

// waveTx implements core.WaveTx on one database transaction.
type waveTx struct {
	tx pgx.Tx
}

func (w *waveTx) GetOrder(ctx context.Context, orderID int) (*core.SalesOrder, error) {
	return getOrder(ctx, w.tx, orderID)
}

func (w *waveTx) GetStockLevels(ctx context.Context, keys []core.StockKey) ([]core.StockLevel, error) {
	return stockLevels(ctx, w.tx, keys, true)
}

// Reserve is a conditional update: it only succeeds while available stock
// covers the quantity, so concurrent waves can never oversell a row.
func (w *waveTx) Reserve(ctx context.Context, waveID string, orderID int, req core.ReservationRequest) (*core.Reservation, error) {
	if !req.Quantity.IsPositive() {
		return nil, fmt.Errorf("reservation quantity must be positive, got %s", req.Quantity)
	}

	var warehouseID int
	err := w.tx.QueryRow(ctx, `
		UPDATE stock_levels s
		SET qty_soft_reserved = s.qty_soft_reserved + $3
		FROM warehouses wh
		WHERE wh.id = s.warehouse_id
		  AND s.product_id = $1 AND wh.code = $2
		  AND s.qty_on_hand - s.qty_soft_reserved - s.qty_hard_reserved >= $3
		RETURNING s.warehouse_id
	`, req.Key.ProductID, req.Key.WarehouseCode, req.Quantity).Scan(&warehouseID)
	if errors.Is(err, pgx.ErrNoRows) {
		available, aerr := w.available(ctx, req.Key)
		if aerr != nil {
			return nil, aerr
		}
		return nil, &core.ReservationConflictError{
			Document: req.DocumentType, DocumentID: req.DocumentID, OrderLineID: req.OrderLineID, Key: req.Key,
			Requested: req.Quantity, Available: available,
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reserve %s: %w", req.Key, err)
	}

	r := core.Reservation{
		WaveID: waveID, OrderID: orderID, Key: req.Key, Quantity: req.Quantity,
		Type: core.ReservationSoft, Status: core.ReservationActive,
		DocumentType: req.DocumentType, DocumentID: req.DocumentID, OrderLineID: req.OrderLineID,
	}
	err = w.tx.QueryRow(ctx, `
		INSERT INTO stock_reservations
		    (wave_id, order_id, order_line_id, document_id, product_id, warehouse_id, quantity, reservation_type, status)
		VALUES ($1::uuid, $2, NULLIF($3, 0), $4, $5, $6, $7, 'SOFT', 'ACTIVE')
		RETURNING id
	`, waveID, orderID, req.OrderLineID, req.DocumentID, req.Key.ProductID, warehouseID, req.Quantity).Scan(&r.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to record reservation: %w", err)
	}
	return &r, nil
}

func (w *waveTx) available(ctx context.Context, key core.StockKey) (decimal.Decimal, error) {
	levels, err := stockLevels(ctx, w.tx, []core.StockKey{key}, false)
	if err != nil {
		return decimal.Zero, err
	}
	if len(levels) == 0 {
		return decimal.Zero, nil
	}
	return levels[0].Available(), nil
}

// ── Document factories ────────────────────────────────────────────────────────

func (w *waveTx) CreatePickingSlip(ctx context.Context, spec core.PickingSlipSpec) (core.CreatedDocument, error) {
	return insertDocument(ctx, w.tx, core.PickingSlipDocument(spec))
}

func (w *waveTx) CreateJobCard(ctx context.Context, spec core.JobCardSpec) (core.CreatedDocument, error) {
	return insertDocument(ctx, w.tx, core.JobCardDocument(spec))
}

func (w *waveTx) CreateTransferRequest(ctx context.Context, spec core.TransferRequestSpec) (core.CreatedDocument, error) {
	return insertDocument(ctx, w.tx, core.TransferDocument(spec))
}

func (w *waveTx) CreatePurchaseOrder(ctx context.Context, spec core.PurchaseOrderSpec) (core.CreatedDocument, error) {
	return insertDocument(ctx, w.tx, core.PurchaseOrderDocument(spec))
}

// ── Status changes ────────────────────────────────────────────────────────────

func (w *waveTx) ListOrderDocuments(ctx context.Context, orderID int) ([]core.OrderDocument, error) {
	return loadDocuments(ctx, w.tx, "d.order_id = $1", orderID)
}

func (w *waveTx) UpdateOrderStatus(ctx context.Context, orderID int, status core.OrderStatus) error {
	tag, err := w.tx.Exec(ctx, "UPDATE sales_orders SET status = $2 WHERE id = $1", orderID, status)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", core.ErrOrderNotFound, orderID)
	}
	return nil
}

func (w *waveTx) SetDocumentStatus(ctx context.Context, kind core.DocumentKind, id int, status core.DocumentStatus) error {
	tag, err := w.tx.Exec(ctx,
		"UPDATE fulfillment_documents SET status = $3, updated_at = now() WHERE id = $1 AND kind = $2",
		id, kind, status)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s %d", core.ErrDocumentNotFound, kind, id)
	}
	return nil
}

// ── Reservation lifecycle ─────────────────────────────────────────────────────

type reservationRow struct {
	id          int
	productID   int
	warehouseID int
	key         core.StockKey
	quantity    decimal.Decimal
	typ         core.ReservationType
}

// activeReservations locks the active reservations of a document.
func (w *waveTx) activeReservations(ctx context.Context, kind core.DocumentKind, id int) ([]reservationRow, error) {
	rows, err := w.tx.Query(ctx, `
		SELECT r.id, r.product_id, r.warehouse_id, wh.code, r.quantity, r.reservation_type
		FROM stock_reservations r
		JOIN fulfillment_documents d ON d.id = r.document_id
		JOIN warehouses wh           ON wh.id = r.warehouse_id
		WHERE r.document_id = $1 AND d.kind = $2 AND r.status = 'ACTIVE'
		ORDER BY r.id
		FOR UPDATE OF r
	`, id, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	var out []reservationRow
	for rows.Next() {
		var r reservationRow
		if err := rows.Scan(&r.id, &r.productID, &r.warehouseID, &r.key.WarehouseCode, &r.quantity, &r.typ); err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		r.key.ProductID = r.productID
		out = append(out, r)
	}
	return out, rows.Err()
}

// settle changes a reservation's status and takes its quantity off the
// reserved bucket; issue also takes it off hand.
func (w *waveTx) settle(ctx context.Context, r reservationRow, status core.ReservationStatus, issue bool) error {
	onHand := decimal.Zero
	if issue {
		onHand = r.quantity
	}
	soft, hard := r.quantity, decimal.Zero
	if r.typ == core.ReservationHard {
		soft, hard = decimal.Zero, r.quantity
	}
	_, err := w.tx.Exec(ctx, `
		UPDATE stock_levels
		SET qty_on_hand       = qty_on_hand - $3,
		    qty_soft_reserved = qty_soft_reserved - $4,
		    qty_hard_reserved = qty_hard_reserved - $5
		WHERE product_id = $1 AND warehouse_id = $2
	`, r.productID, r.warehouseID, onHand, soft, hard)
	if err != nil {
		return fmt.Errorf("failed to settle reservation %d: %w", r.id, err)
	}
	if _, err := w.tx.Exec(ctx, "UPDATE stock_reservations SET status = $2 WHERE id = $1", r.id, status); err != nil {
		return fmt.Errorf("failed to mark reservation %d %s: %w", r.id, status, err)
	}
	return nil
}

func (w *waveTx) ReleaseReservations(ctx context.Context, kind core.DocumentKind, id int) error {
	rows, err := w.activeReservations(ctx, kind, id)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.settle(ctx, r, core.ReservationReleased, false); err != nil {
			return err
		}
	}
	return nil
}

func (w *waveTx) ConvertReservations(ctx context.Context, kind core.DocumentKind, id int) error {
	rows, err := w.activeReservations(ctx, kind, id)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if r.typ == core.ReservationHard {
			continue
		}
		_, err := w.tx.Exec(ctx, `
			UPDATE stock_levels
			SET qty_soft_reserved = qty_soft_reserved - $3,
			    qty_hard_reserved = qty_hard_reserved + $3
			WHERE product_id = $1 AND warehouse_id = $2
		`, r.productID, r.warehouseID, r.quantity)
		if err != nil {
			return fmt.Errorf("failed to convert reservation %d: %w", r.id, err)
		}
		if _, err := w.tx.Exec(ctx, "UPDATE stock_reservations SET reservation_type = 'HARD' WHERE id = $1", r.id); err != nil {
			return fmt.Errorf("failed to mark reservation %d hard: %w", r.id, err)
		}
	}
	return nil
}

func (w *waveTx) ConsumeReservations(ctx context.Context, kind core.DocumentKind, id int) (map[core.StockKey]decimal.Decimal, error) {
	rows, err := w.activeReservations(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	consumed := make(map[core.StockKey]decimal.Decimal)
	for _, r := range rows {
		if err := w.settle(ctx, r, core.ReservationConsumed, true); err != nil {
			return nil, err
		}
		consumed[r.key] = consumed[r.key].Add(r.quantity)
	}
	return consumed, nil
}

// ApplyMovement creates the stock row on first receipt.
func (w *waveTx) ApplyMovement(ctx context.Context, kind core.DocumentKind, id int, m core.StockMovement) error {
	levels, err := stockLevels(ctx, w.tx, []core.StockKey{m.Key}, true)
	if err != nil {
		return err
	}
	current := core.StockLevel{Key: m.Key}
	if len(levels) == 1 {
		current = levels[0]
	}
	next := current
	next.OnHand = next.OnHand.Add(m.OnHand)
	next.OnOrder = next.OnOrder.Add(m.OnOrder)
	if next.Available().IsNegative() || next.OnOrder.IsNegative() {
		return &core.ReservationConflictError{
			Document: kind, DocumentID: id, Key: m.Key, Requested: m.OnHand.Neg(), Available: current.Available(),
		}
	}

	tag, err := w.tx.Exec(ctx, `
		INSERT INTO stock_levels (product_id, warehouse_id, qty_on_hand, qty_on_order)
		SELECT $1, wh.id, $3, $4 FROM warehouses wh WHERE wh.code = $2
		ON CONFLICT (product_id, warehouse_id) DO UPDATE
		SET qty_on_hand  = stock_levels.qty_on_hand + EXCLUDED.qty_on_hand,
		    qty_on_order = stock_levels.qty_on_order + EXCLUDED.qty_on_order
	`, m.Key.ProductID, m.Key.WarehouseCode, m.OnHand, m.OnOrder)
	if err != nil {
		return fmt.Errorf("failed to apply movement on %s: %w", m.Key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("unknown warehouse %q", m.Key.WarehouseCode)
	}
	return nil
}
