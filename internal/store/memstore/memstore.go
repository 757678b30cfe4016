// Package memstore is an in-memory core.Store. Waves run against a cloned
// state that replaces the live state only when the wave function succeeds.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"fulfillment-orchestrator/internal/core"
)

type docKey struct {
	kind core.DocumentKind
	id   int
}

type state struct {
	companyPolicy map[string]core.FulfillmentPolicy
	warehouses    map[string][]core.Warehouse
	products      map[int]core.Product
	boms          map[int][]core.BOMComponent
	suppliers     map[int]core.Supplier
	stock         map[core.StockKey]core.StockLevel
	orders        map[int]core.SalesOrder
	documents     map[docKey]core.OrderDocument
	reservations  []core.Reservation
	nextDocID     map[core.DocumentKind]int
	nextResID     int
}

func newState() state {
	return state{
		companyPolicy: make(map[string]core.FulfillmentPolicy),
		warehouses:    make(map[string][]core.Warehouse),
		products:      make(map[int]core.Product),
		boms:          make(map[int][]core.BOMComponent),
		suppliers:     make(map[int]core.Supplier),
		stock:         make(map[core.StockKey]core.StockLevel),
		orders:        make(map[int]core.SalesOrder),
		documents:     make(map[docKey]core.OrderDocument),
		nextDocID:     make(map[core.DocumentKind]int),
	}
}

// clone copies everything a wave can mutate. Reference data is immutable
// once seeded and is shared.
func (s state) clone() state {
	c := s
	c.stock = make(map[core.StockKey]core.StockLevel, len(s.stock))
	for k, v := range s.stock {
		c.stock[k] = v
	}
	c.orders = make(map[int]core.SalesOrder, len(s.orders))
	for k, v := range s.orders {
		c.orders[k] = v
	}
	c.documents = make(map[docKey]core.OrderDocument, len(s.documents))
	for k, v := range s.documents {
		c.documents[k] = v
	}
	c.reservations = append([]core.Reservation(nil), s.reservations...)
	c.nextDocID = make(map[core.DocumentKind]int, len(s.nextDocID))
	for k, v := range s.nextDocID {
		c.nextDocID[k] = v
	}
	return c
}

// FaultFunc is consulted before every transactional write; a non-nil error
// aborts the transaction. op is one of the WaveTx method names.
type FaultFunc func(op string) error

// Store is safe for concurrent use. A single lock serializes transactions.
type Store struct {
	mu    sync.RWMutex
	state state
	fault FaultFunc
}

func New() *Store {
	return &Store{state: newState()}
}

// SetFault installs a fault hook, or removes it when fn is nil.
func (s *Store) SetFault(fn FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

// ── Seeding ───────────────────────────────────────────────────────────────────

func (s *Store) AddCompany(code string, policy core.FulfillmentPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.companyPolicy[code] = policy
}

func (s *Store) AddWarehouse(companyCode string, w core.Warehouse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.warehouses[companyCode] = append(s.state.warehouses[companyCode], w)
}

func (s *Store) AddProduct(p core.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.products[p.ID] = p
}

func (s *Store) SetBOM(parentID int, components []core.BOMComponent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bom := make([]core.BOMComponent, len(components))
	copy(bom, components)
	for i := range bom {
		bom[i].ParentProductID = parentID
	}
	s.state.boms[parentID] = bom
}

func (s *Store) AddSupplier(sup core.Supplier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.suppliers[sup.ID] = sup
}

func (s *Store) SetStock(level core.StockLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.stock[level.Key] = level
}

func (s *Store) AddOrder(o core.SalesOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.Lines = append([]core.OrderLine(nil), o.Lines...)
	for i := range o.Lines {
		o.Lines[i].OrderID = o.ID
	}
	s.state.orders[o.ID] = o
}

// ── Inspection ────────────────────────────────────────────────────────────────

// Stock returns the stored row for key, or a zero row.
func (s *Store) Stock(key core.StockKey) core.StockLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if l, ok := s.state.stock[key]; ok {
		return l
	}
	return core.StockLevel{Key: key}
}

// AllStock returns every stock row sorted by product, then warehouse.
func (s *Store) AllStock() []core.StockLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.StockLevel, 0, len(s.state.stock))
	for _, l := range s.state.stock {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.ProductID != out[j].Key.ProductID {
			return out[i].Key.ProductID < out[j].Key.ProductID
		}
		return out[i].Key.WarehouseCode < out[j].Key.WarehouseCode
	})
	return out
}

// Reservations returns the reservations placed by a wave; all of them when waveID is empty.
func (s *Store) Reservations(waveID string) []core.Reservation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Reservation
	for _, r := range s.state.reservations {
		if waveID == "" || r.WaveID == waveID {
			out = append(out, r)
		}
	}
	return out
}

// ── core.Store readers ────────────────────────────────────────────────────────

func (s *Store) GetOrderWithLines(_ context.Context, orderID int) (*core.SalesOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.order(orderID)
}

func (s *Store) GetProduct(_ context.Context, productID int) (*core.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.products[productID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", core.ErrProductNotFound, productID)
	}
	return &p, nil
}

func (s *Store) GetBOMComponents(_ context.Context, productID int) ([]core.BOMComponent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bom := append([]core.BOMComponent(nil), s.state.boms[productID]...)
	sort.SliceStable(bom, func(i, j int) bool { return bom[i].SortOrder < bom[j].SortOrder })
	return bom, nil
}

func (s *Store) GetStockLevels(_ context.Context, keys []core.StockKey) ([]core.StockLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.stockLevels(keys), nil
}

func (s *Store) GetDefaultSupplier(_ context.Context, productID int) (*core.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.products[productID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", core.ErrProductNotFound, productID)
	}
	if p.DefaultSupplierID == nil {
		return nil, nil
	}
	sup, ok := s.state.suppliers[*p.DefaultSupplierID]
	if !ok {
		return nil, nil
	}
	return &sup, nil
}

func (s *Store) ListWarehouses(_ context.Context, companyCode string) ([]core.Warehouse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Warehouse(nil), s.state.warehouses[companyCode]...), nil
}

func (s *Store) ListOrderDocuments(_ context.Context, orderID int) ([]core.OrderDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.orderDocuments(orderID), nil
}

// GetDocument returns one document.
func (s *Store) GetDocument(_ context.Context, kind core.DocumentKind, id int) (*core.OrderDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.state.documents[docKey{kind, id}]
	if !ok {
		return nil, fmt.Errorf("%w: %s %d", core.ErrDocumentNotFound, kind, id)
	}
	return &d, nil
}

// ── Transactions ──────────────────────────────────────────────────────────────

func (s *Store) ExecuteWave(ctx context.Context, orderID int, fn func(ctx context.Context, tx core.WaveTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.orders[orderID]; !ok {
		return fmt.Errorf("%w: %d", core.ErrOrderNotFound, orderID)
	}
	return s.run(ctx, fn)
}

func (s *Store) AdvanceDocument(ctx context.Context, kind core.DocumentKind, id int,
	fn func(ctx context.Context, tx core.WaveTx, doc *core.OrderDocument) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.state.documents[docKey{kind, id}]
	if !ok {
		return fmt.Errorf("%w: %s %d", core.ErrDocumentNotFound, kind, id)
	}
	return s.run(ctx, func(ctx context.Context, tx core.WaveTx) error { return fn(ctx, tx, &d) })
}

// run must be called with s.mu held.
func (s *Store) run(ctx context.Context, fn func(ctx context.Context, tx core.WaveTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &waveTx{state: s.state.clone(), fault: s.fault}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// ── state helpers ─────────────────────────────────────────────────────────────

func (st *state) order(orderID int) (*core.SalesOrder, error) {
	o, ok := st.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", core.ErrOrderNotFound, orderID)
	}
	o.Lines = append([]core.OrderLine(nil), o.Lines...)
	o.CompanyPolicy = st.companyPolicy[o.CompanyCode]
	return &o, nil
}

func (st *state) stockLevels(keys []core.StockKey) []core.StockLevel {
	out := make([]core.StockLevel, 0, len(keys))
	seen := make(map[core.StockKey]bool, len(keys))
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		if l, ok := st.stock[k]; ok {
			out = append(out, l)
		}
	}
	return out
}

func (st *state) orderDocuments(orderID int) []core.OrderDocument {
	var out []core.OrderDocument
	for _, d := range st.documents {
		if d.OrderID == orderID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].ID < out[j].ID
	})
	return out
}
