package pgstore

import (
	"context"
	"fmt"

	"fulfillment-orchestrator/internal/core"
)

// loadDocuments reads documents matching where (a condition on alias d with
// a single $1 argument) together with their lines and job card components.
func loadDocuments(ctx context.Context, q querier, where string, arg any) ([]core.OrderDocument, error) {
	rows, err := q.Query(ctx, `
		SELECT d.id, d.kind, COALESCE(d.document_number, ''), d.order_id, d.wave_id::text, d.status,
		       COALESCE(w.code, ''), COALESCE(fw.code, ''), COALESCE(d.product_id, 0),
		       d.quantity, COALESCE(d.supplier_id, 0)
		FROM fulfillment_documents d
		LEFT JOIN warehouses w  ON w.id = d.warehouse_id
		LEFT JOIN warehouses fw ON fw.id = d.from_warehouse_id
		WHERE `+where+`
		ORDER BY d.kind, d.id
	`, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	var docs []core.OrderDocument
	index := make(map[int]int)
	for rows.Next() {
		var d core.OrderDocument
		if err := rows.Scan(&d.ID, &d.Kind, &d.Number, &d.OrderID, &d.WaveID, &d.Status,
			&d.WarehouseCode, &d.FromWarehouse, &d.ProductID, &d.Quantity, &d.SupplierID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		index[d.ID] = len(docs)
		docs = append(docs, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	lineRows, err := q.Query(ctx, `
		SELECT l.document_id, COALESCE(l.order_line_id, 0), l.product_id, COALESCE(w.code, ''),
		       l.quantity, COALESCE(l.reason, '')
		FROM fulfillment_document_lines l
		JOIN fulfillment_documents d ON d.id = l.document_id
		LEFT JOIN warehouses w       ON w.id = l.warehouse_id
		WHERE `+where+`
		ORDER BY l.id
	`, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query document lines: %w", err)
	}
	for lineRows.Next() {
		var (
			docID int
			l     core.DocumentLine
		)
		if err := lineRows.Scan(&docID, &l.OrderLineID, &l.ProductID, &l.WarehouseCode, &l.Quantity, &l.Reason); err != nil {
			lineRows.Close()
			return nil, fmt.Errorf("failed to scan document line: %w", err)
		}
		if i, ok := index[docID]; ok {
			docs[i].Lines = append(docs[i].Lines, l)
		}
	}
	lineRows.Close()
	if err := lineRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read document lines: %w", err)
	}

	compRows, err := q.Query(ctx, `
		SELECT c.document_id, c.product_id, c.required, c.reserved, c.is_optional
		FROM job_card_components c
		JOIN fulfillment_documents d ON d.id = c.document_id
		WHERE `+where+`
		ORDER BY c.id
	`, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query job card components: %w", err)
	}
	defer compRows.Close()
	for compRows.Next() {
		var (
			docID int
			c     core.DocumentComponent
		)
		if err := compRows.Scan(&docID, &c.ProductID, &c.Required, &c.Reserved, &c.IsOptional); err != nil {
			return nil, fmt.Errorf("failed to scan job card component: %w", err)
		}
		if i, ok := index[docID]; ok {
			docs[i].Components = append(docs[i].Components, c)
		}
	}
	return docs, compRows.Err()
}

func getDocument(ctx context.Context, q querier, kind core.DocumentKind, id int) (*core.OrderDocument, error) {
	docs, err := loadDocuments(ctx, q, "d.id = $1", id)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 || docs[0].Kind != kind {
		return nil, fmt.Errorf("%w: %s %d", core.ErrDocumentNotFound, kind, id)
	}
	return &docs[0], nil
}

// insertDocument writes a document with its lines and components and assigns its number.
func insertDocument(ctx context.Context, q querier, doc core.OrderDocument) (core.CreatedDocument, error) {
	var id int
	err := q.QueryRow(ctx, `
		INSERT INTO fulfillment_documents
		    (kind, order_id, wave_id, status, warehouse_id, from_warehouse_id, product_id, quantity, supplier_id)
		VALUES ($1, $2, $3::uuid, $4,
		        (SELECT id FROM warehouses WHERE code = NULLIF($5, '')),
		        (SELECT id FROM warehouses WHERE code = NULLIF($6, '')),
		        NULLIF($7, 0), $8, NULLIF($9, 0))
		RETURNING id
	`, doc.Kind, doc.OrderID, doc.WaveID, doc.Status, doc.WarehouseCode, doc.FromWarehouse,
		doc.ProductID, doc.Quantity, doc.SupplierID).Scan(&id)
	if err != nil {
		return core.CreatedDocument{}, fmt.Errorf("failed to insert %s: %w", doc.Kind, err)
	}

	number := core.DocumentNumber(doc.Kind, id)
	if _, err := q.Exec(ctx, "UPDATE fulfillment_documents SET document_number = $2 WHERE id = $1", id, number); err != nil {
		return core.CreatedDocument{}, fmt.Errorf("failed to number %s: %w", doc.Kind, err)
	}

	for _, l := range doc.Lines {
		_, err := q.Exec(ctx, `
			INSERT INTO fulfillment_document_lines (document_id, order_line_id, product_id, warehouse_id, quantity, reason)
			VALUES ($1, NULLIF($2, 0), $3, (SELECT id FROM warehouses WHERE code = NULLIF($4, '')), $5, NULLIF($6, ''))
		`, id, l.OrderLineID, l.ProductID, l.WarehouseCode, l.Quantity, string(l.Reason))
		if err != nil {
			return core.CreatedDocument{}, fmt.Errorf("failed to insert %s line: %w", doc.Kind, err)
		}
	}
	for _, c := range doc.Components {
		_, err := q.Exec(ctx,
			"INSERT INTO job_card_components (document_id, product_id, required, reserved, is_optional) VALUES ($1, $2, $3, $4, $5)",
			id, c.ProductID, c.Required, c.Reserved, c.IsOptional)
		if err != nil {
			return core.CreatedDocument{}, fmt.Errorf("failed to insert job card component: %w", err)
		}
	}
	return core.CreatedDocument{Kind: doc.Kind, ID: id, Number: number, Status: doc.Status}, nil
}
