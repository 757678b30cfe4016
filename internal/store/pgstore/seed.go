package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// demoSeed mirrors memstore.NewDemo so both stores serve the same example data.
const demoSeed = `
INSERT INTO companies (id, company_code, name, fulfillment_policy)
VALUES (1, '1000', 'Demo Furniture', 'SHIP_PARTIAL');

INSERT INTO warehouses (id, company_id, code, name, sort_order) VALUES
    (1, 1, 'JHB', 'Johannesburg', 1),
    (2, 1, 'CT',  'Cape Town',    2);

INSERT INTO suppliers (id, code, name, currency)
VALUES (1, 'SUP-METRO', 'Metro Components', 'ZAR');

INSERT INTO products (id, code, name, product_type, unit, default_supplier_id) VALUES
    (1, 'P-CHAIR', 'Office Chair', 'STOCK_ONLY', 'each', 1),
    (2, 'K-DESK',  'Desk Kit',     'KIT',        'each', NULL),
    (3, 'C-LEG',   'Desk Leg',     'STOCK_ONLY', 'each', 1),
    (4, 'C-TOP',   'Desk Top',     'STOCK_ONLY', 'each', 1),
    (5, 'C-BOLT',  'Bolt Pack',    'STOCK_ONLY', 'pack', 1);

INSERT INTO bom_components (parent_product_id, component_product_id, quantity_per_unit, is_optional, sort_order) VALUES
    (2, 3, 4, false, 1),
    (2, 4, 1, false, 2),
    (2, 5, 1, true,  3);

INSERT INTO stock_levels (product_id, warehouse_id, qty_on_hand, reorder_point) VALUES
    (1, 1, 4,  2),
    (1, 2, 20, 5),
    (3, 1, 6,  0),
    (4, 1, 3,  0);

INSERT INTO sales_orders (id, company_id, order_number, status, default_warehouse_id) VALUES
    (1, 1, 'SO-2026-00001', 'CONFIRMED', 1),
    (2, 1, 'SO-2026-00002', 'CONFIRMED', NULL),
    (3, 1, 'SO-2026-00003', 'CONFIRMED', NULL);

INSERT INTO sales_order_lines (id, order_id, line_number, product_id, quantity, warehouse_id) VALUES
    (1, 1, 1, 1, 10, NULL),
    (2, 2, 1, 2, 2,  1),
    (3, 3, 1, 1, 1,  2),
    (4, 3, 2, 3, 8,  2);

SELECT setval(pg_get_serial_sequence('companies', 'id'),         (SELECT MAX(id) FROM companies));
SELECT setval(pg_get_serial_sequence('warehouses', 'id'),        (SELECT MAX(id) FROM warehouses));
SELECT setval(pg_get_serial_sequence('suppliers', 'id'),         (SELECT MAX(id) FROM suppliers));
SELECT setval(pg_get_serial_sequence('products', 'id'),          (SELECT MAX(id) FROM products));
SELECT setval(pg_get_serial_sequence('sales_orders', 'id'),      (SELECT MAX(id) FROM sales_orders));
SELECT setval(pg_get_serial_sequence('sales_order_lines', 'id'), (SELECT MAX(id) FROM sales_order_lines));
`

const truncateAll = `
TRUNCATE TABLE stock_reservations, job_card_components, fulfillment_document_lines,
    fulfillment_documents, sales_order_lines, sales_orders, stock_levels,
    bom_components, products, suppliers, warehouses, companies
RESTART IDENTITY CASCADE;
`

// RestoreDemo wipes every fulfillment table and loads the demo data set in one transaction.
func RestoreDemo(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, truncateAll); err != nil {
		return fmt.Errorf("failed to clear fulfillment tables: %w", err)
	}
	if _, err := tx.Exec(ctx, demoSeed); err != nil {
		return fmt.Errorf("failed to load demo data: %w", err)
	}
	return tx.Commit(ctx)
}
