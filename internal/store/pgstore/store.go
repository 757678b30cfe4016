// Package pgstore implements core.Store on PostgreSQL.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"fulfillment-orchestrator/internal/core"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ core.Store = (*Store)(nil)

// ── Readers ───────────────────────────────────────────────────────────────────

func (s *Store) GetOrderWithLines(ctx context.Context, orderID int) (*core.SalesOrder, error) {
	return getOrder(ctx, s.pool, orderID)
}

func getOrder(ctx context.Context, q querier, orderID int) (*core.SalesOrder, error) {
	var (
		o           core.SalesOrder
		orderPolicy *string
	)
	err := q.QueryRow(ctx, `
		SELECT so.id, c.company_code, so.order_number, so.status,
		       so.fulfillment_policy, c.fulfillment_policy, COALESCE(w.code, '')
		FROM sales_orders so
		JOIN companies c       ON c.id = so.company_id
		LEFT JOIN warehouses w ON w.id = so.default_warehouse_id
		WHERE so.id = $1
	`, orderID).Scan(&o.ID, &o.CompanyCode, &o.OrderNumber, &o.Status,
		&orderPolicy, &o.CompanyPolicy, &o.DefaultWarehouseCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", core.ErrOrderNotFound, orderID)
		}
		return nil, fmt.Errorf("failed to fetch order %d: %w", orderID, err)
	}
	if orderPolicy != nil {
		p := core.FulfillmentPolicy(*orderPolicy)
		o.Policy = &p
	}

	rows, err := q.Query(ctx, `
		SELECT l.id, l.order_id, l.line_number, l.product_id, p.code, l.quantity, COALESCE(w.code, '')
		FROM sales_order_lines l
		JOIN products p        ON p.id = l.product_id
		LEFT JOIN warehouses w ON w.id = l.warehouse_id
		WHERE l.order_id = $1
		ORDER BY l.line_number
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l core.OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.LineNumber, &l.ProductID, &l.ProductCode, &l.Quantity, &l.WarehouseCode); err != nil {
			return nil, fmt.Errorf("failed to scan order line: %w", err)
		}
		o.Lines = append(o.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read order lines: %w", err)
	}
	return &o, nil
}

func (s *Store) GetProduct(ctx context.Context, productID int) (*core.Product, error) {
	var p core.Product
	err := s.pool.QueryRow(ctx, `
		SELECT id, code, name, product_type, unit, default_supplier_id
		FROM products WHERE id = $1
	`, productID).Scan(&p.ID, &p.Code, &p.Name, &p.Type, &p.Unit, &p.DefaultSupplierID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", core.ErrProductNotFound, productID)
		}
		return nil, fmt.Errorf("failed to fetch product %d: %w", productID, err)
	}
	return &p, nil
}

func (s *Store) GetBOMComponents(ctx context.Context, productID int) ([]core.BOMComponent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT parent_product_id, component_product_id, quantity_per_unit, is_optional, sort_order
		FROM bom_components
		WHERE parent_product_id = $1
		ORDER BY sort_order, id
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query BOM of product %d: %w", productID, err)
	}
	defer rows.Close()

	var bom []core.BOMComponent
	for rows.Next() {
		var c core.BOMComponent
		if err := rows.Scan(&c.ParentProductID, &c.ComponentProductID, &c.QuantityPerUnit, &c.IsOptional, &c.SortOrder); err != nil {
			return nil, fmt.Errorf("failed to scan BOM component: %w", err)
		}
		bom = append(bom, c)
	}
	return bom, rows.Err()
}

func (s *Store) GetStockLevels(ctx context.Context, keys []core.StockKey) ([]core.StockLevel, error) {
	return stockLevels(ctx, s.pool, keys, false)
}

// stockLevels reads all keys with one query. With lock set the rows are held
// FOR UPDATE until the surrounding transaction ends.
func stockLevels(ctx context.Context, q querier, keys []core.StockKey, lock bool) ([]core.StockLevel, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	productIDs := make([]int32, 0, len(keys))
	warehouseCodes := make([]string, 0, len(keys))
	seen := make(map[core.StockKey]bool, len(keys))
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		productIDs = append(productIDs, int32(k.ProductID))
		warehouseCodes = append(warehouseCodes, k.WarehouseCode)
	}

	query := `
		SELECT s.product_id, w.code, s.qty_on_hand, s.qty_soft_reserved, s.qty_hard_reserved,
		       s.qty_on_order, s.reorder_point, s.reorder_quantity, s.maximum_stock
		FROM unnest($1::int[], $2::text[]) AS k(product_id, warehouse_code)
		JOIN warehouses w   ON w.code = k.warehouse_code
		JOIN stock_levels s ON s.product_id = k.product_id AND s.warehouse_id = w.id
		ORDER BY s.product_id, s.warehouse_id`
	if lock {
		query += `
		FOR UPDATE OF s`
	}

	rows, err := q.Query(ctx, query, productIDs, warehouseCodes)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock levels: %w", err)
	}
	defer rows.Close()

	var levels []core.StockLevel
	for rows.Next() {
		var (
			l       core.StockLevel
			maximum decimal.NullDecimal
		)
		if err := rows.Scan(&l.Key.ProductID, &l.Key.WarehouseCode, &l.OnHand, &l.SoftReserved, &l.HardReserved,
			&l.OnOrder, &l.ReorderPoint, &l.ReorderQuantity, &maximum); err != nil {
			return nil, fmt.Errorf("failed to scan stock level: %w", err)
		}
		if maximum.Valid {
			l.MaximumStock = &maximum.Decimal
		}
		levels = append(levels, l)
	}
	return levels, rows.Err()
}

func (s *Store) GetDefaultSupplier(ctx context.Context, productID int) (*core.Supplier, error) {
	var (
		sup   core.Supplier
		supID *int
	)
	err := s.pool.QueryRow(ctx, `
		SELECT sp.id, COALESCE(sp.code, ''), COALESCE(sp.name, ''), COALESCE(sp.currency, '')
		FROM products p
		LEFT JOIN suppliers sp ON sp.id = p.default_supplier_id
		WHERE p.id = $1
	`, productID).Scan(&supID, &sup.Code, &sup.Name, &sup.Currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", core.ErrProductNotFound, productID)
		}
		return nil, fmt.Errorf("failed to fetch default supplier of product %d: %w", productID, err)
	}
	if supID == nil {
		return nil, nil
	}
	sup.ID = *supID
	return &sup, nil
}

func (s *Store) ListWarehouses(ctx context.Context, companyCode string) ([]core.Warehouse, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT w.id, w.code, w.name, w.sort_order, w.is_active
		FROM warehouses w
		JOIN companies c ON c.id = w.company_id
		WHERE c.company_code = $1
		ORDER BY w.sort_order, w.code
	`, companyCode)
	if err != nil {
		return nil, fmt.Errorf("failed to query warehouses: %w", err)
	}
	defer rows.Close()

	var warehouses []core.Warehouse
	for rows.Next() {
		var w core.Warehouse
		if err := rows.Scan(&w.ID, &w.Code, &w.Name, &w.SortOrder, &w.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan warehouse: %w", err)
		}
		warehouses = append(warehouses, w)
	}
	return warehouses, rows.Err()
}

func (s *Store) ListOrderDocuments(ctx context.Context, orderID int) ([]core.OrderDocument, error) {
	return loadDocuments(ctx, s.pool, "d.order_id = $1", orderID)
}

// GetDocument returns one document with its lines.
func (s *Store) GetDocument(ctx context.Context, kind core.DocumentKind, id int) (*core.OrderDocument, error) {
	return getDocument(ctx, s.pool, kind, id)
}

// ── Transactions ──────────────────────────────────────────────────────────────

func (s *Store) ExecuteWave(ctx context.Context, orderID int, fn func(ctx context.Context, tx core.WaveTx) error) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockOrder(ctx, tx, orderID); err != nil {
			return err
		}
		return fn(ctx, &waveTx{tx: tx})
	})
}

func (s *Store) AdvanceDocument(ctx context.Context, kind core.DocumentKind, documentID int,
	fn func(ctx context.Context, tx core.WaveTx, doc *core.OrderDocument) error) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		var orderID int
		err := tx.QueryRow(ctx,
			"SELECT order_id FROM fulfillment_documents WHERE id = $1 AND kind = $2 FOR UPDATE",
			documentID, kind).Scan(&orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: %s %d", core.ErrDocumentNotFound, kind, documentID)
			}
			return fmt.Errorf("failed to lock document: %w", err)
		}
		if err := lockOrder(ctx, tx, orderID); err != nil {
			return err
		}
		doc, err := getDocument(ctx, tx, kind, documentID)
		if err != nil {
			return err
		}
		return fn(ctx, &waveTx{tx: tx}, doc)
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// lockOrder serializes waves and document transitions of one order.
func lockOrder(ctx context.Context, tx pgx.Tx, orderID int) error {
	var id int
	err := tx.QueryRow(ctx, "SELECT id FROM sales_orders WHERE id = $1 FOR UPDATE", orderID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %d", core.ErrOrderNotFound, orderID)
		}
		return fmt.Errorf("failed to lock order %d: %w", orderID, err)
	}
	return nil
}
