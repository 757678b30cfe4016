package core_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fulfillment-orchestrator/internal/core"
	"fulfillment-orchestrator/internal/store/memstore"
)

const testCompany = "1000"

// Product IDs shared by the tests.
const (
	prodChair  = 10 // STOCK_ONLY
	prodLamp   = 11 // STOCK_ONLY, no stock anywhere
	prodKit    = 20 // KIT of 2×A + 1×B
	compA      = 21
	compB      = 22
	compGlue   = 23 // optional kit component
	prodOrphan = 30 // STOCK_ONLY without a supplier
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal, what string) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "%s: want %s, got %s", what, want, got)
}

// newTestStore seeds two warehouses (JHB before CT), one supplier and the
// test catalog. Stock and orders are added per test.
func newTestStore(t *testing.T) *memstore.Store {
	t.Helper()
	s := memstore.New()
	s.AddCompany(testCompany, core.PolicyShipPartial)
	s.AddWarehouse(testCompany, core.Warehouse{ID: 1, Code: "JHB", Name: "Johannesburg", SortOrder: 1, IsActive: true})
	s.AddWarehouse(testCompany, core.Warehouse{ID: 2, Code: "CT", Name: "Cape Town", SortOrder: 2, IsActive: true})
	s.AddSupplier(core.Supplier{ID: 1, Code: "SUP-A", Name: "Acme Supply", Currency: "ZAR"})

	sup := 1
	s.AddProduct(core.Product{ID: prodChair, Code: "CHAIR", Type: core.ProductTypeStockOnly, Unit: "each", DefaultSupplierID: &sup})
	s.AddProduct(core.Product{ID: prodLamp, Code: "LAMP", Type: core.ProductTypeStockOnly, Unit: "each", DefaultSupplierID: &sup})
	s.AddProduct(core.Product{ID: prodKit, Code: "KIT-K", Type: core.ProductTypeKit, Unit: "each"})
	s.AddProduct(core.Product{ID: compA, Code: "COMP-A", Type: core.ProductTypeStockOnly, Unit: "each", DefaultSupplierID: &sup})
	s.AddProduct(core.Product{ID: compB, Code: "COMP-B", Type: core.ProductTypeStockOnly, Unit: "each", DefaultSupplierID: &sup})
	s.AddProduct(core.Product{ID: compGlue, Code: "GLUE", Type: core.ProductTypeStockOnly, Unit: "tube", DefaultSupplierID: &sup})
	s.AddProduct(core.Product{ID: prodOrphan, Code: "ORPHAN", Type: core.ProductTypeStockOnly, Unit: "each"})
	s.SetBOM(prodKit, []core.BOMComponent{
		{ComponentProductID: compA, QuantityPerUnit: dec("2"), SortOrder: 1},
		{ComponentProductID: compB, QuantityPerUnit: dec("1"), SortOrder: 2},
	})
	return s
}

func setStock(s *memstore.Store, productID int, wh, onHand, reorderPoint string) {
	s.SetStock(core.StockLevel{
		Key:          core.StockKey{ProductID: productID, WarehouseCode: wh},
		OnHand:       dec(onHand),
		ReorderPoint: dec(reorderPoint),
	})
}

// addOrder adds a confirmed order; line IDs and numbers are assigned in order.
func addOrder(s *memstore.Store, id int, lines ...core.OrderLine) {
	for i := range lines {
		lines[i].ID = id*100 + i + 1
		lines[i].LineNumber = i + 1
	}
	s.AddOrder(core.SalesOrder{
		ID: id, CompanyCode: testCompany, OrderNumber: fmt.Sprintf("SO-%05d", id),
		Status: core.OrderStatusConfirmed, Lines: lines,
	})
}

func line(productID int, qty, warehouse string) core.OrderLine {
	return core.OrderLine{ProductID: productID, Quantity: dec(qty), WarehouseCode: warehouse}
}

func policy(p core.FulfillmentPolicy) *core.FulfillmentPolicy { return &p }

func newOrchestrator(s *memstore.Store) *core.Orchestrator {
	return core.NewOrchestrator(s, core.DefaultPlanningConfig())
}

func mustPlan(t *testing.T, o *core.Orchestrator, orderID int, override *core.FulfillmentPolicy) *core.OrchestrationPlan {
	t.Helper()
	plan, err := o.GeneratePlan(context.Background(), orderID, override)
	require.NoError(t, err)
	require.NotNil(t, plan)
	return plan
}

func available(s *memstore.Store, productID int, wh string) decimal.Decimal {
	return s.Stock(core.StockKey{ProductID: productID, WarehouseCode: wh}).Available()
}
