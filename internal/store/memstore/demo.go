package memstore

import (
	"github.com/shopspring/decimal"

	"fulfillment-orchestrator/internal/core"
)

// DemoCompany is the company code seeded by NewDemo.
const DemoCompany = "1000"

// NewDemo returns a store seeded with two warehouses, a stocked product, a
// kit and three confirmed orders, for running the server without a database.
func NewDemo() *Store {
	s := New()
	s.AddCompany(DemoCompany, core.PolicyShipPartial)
	s.AddWarehouse(DemoCompany, core.Warehouse{ID: 1, Code: "JHB", Name: "Johannesburg", SortOrder: 1, IsActive: true})
	s.AddWarehouse(DemoCompany, core.Warehouse{ID: 2, Code: "CT", Name: "Cape Town", SortOrder: 2, IsActive: true})
	s.AddSupplier(core.Supplier{ID: 1, Code: "SUP-METRO", Name: "Metro Components", Currency: "ZAR"})
	sup := 1

	s.AddProduct(core.Product{ID: 1, Code: "P-CHAIR", Name: "Office Chair", Type: core.ProductTypeStockOnly, Unit: "each", DefaultSupplierID: &sup})
	s.AddProduct(core.Product{ID: 2, Code: "K-DESK", Name: "Desk Kit", Type: core.ProductTypeKit, Unit: "each"})
	s.AddProduct(core.Product{ID: 3, Code: "C-LEG", Name: "Desk Leg", Type: core.ProductTypeStockOnly, Unit: "each", DefaultSupplierID: &sup})
	s.AddProduct(core.Product{ID: 4, Code: "C-TOP", Name: "Desk Top", Type: core.ProductTypeStockOnly, Unit: "each", DefaultSupplierID: &sup})
	s.AddProduct(core.Product{ID: 5, Code: "C-BOLT", Name: "Bolt Pack", Type: core.ProductTypeStockOnly, Unit: "pack", DefaultSupplierID: &sup})
	s.SetBOM(2, []core.BOMComponent{
		{ComponentProductID: 3, QuantityPerUnit: decimal.NewFromInt(4), SortOrder: 1},
		{ComponentProductID: 4, QuantityPerUnit: decimal.NewFromInt(1), SortOrder: 2},
		{ComponentProductID: 5, QuantityPerUnit: decimal.NewFromInt(1), IsOptional: true, SortOrder: 3},
	})

	level := func(productID int, wh string, onHand, reorderPoint int64) core.StockLevel {
		return core.StockLevel{
			Key:          core.StockKey{ProductID: productID, WarehouseCode: wh},
			OnHand:       decimal.NewFromInt(onHand),
			ReorderPoint: decimal.NewFromInt(reorderPoint),
		}
	}
	s.SetStock(level(1, "JHB", 4, 2))
	s.SetStock(level(1, "CT", 20, 5))
	s.SetStock(level(3, "JHB", 6, 0))
	s.SetStock(level(4, "JHB", 3, 0))

	s.AddOrder(core.SalesOrder{
		ID: 1, CompanyCode: DemoCompany, OrderNumber: "SO-2026-00001", Status: core.OrderStatusConfirmed,
		DefaultWarehouseCode: "JHB",
		Lines: []core.OrderLine{
			{ID: 1, LineNumber: 1, ProductID: 1, ProductCode: "P-CHAIR", Quantity: decimal.NewFromInt(10)},
		},
	})
	s.AddOrder(core.SalesOrder{
		ID: 2, CompanyCode: DemoCompany, OrderNumber: "SO-2026-00002", Status: core.OrderStatusConfirmed,
		Lines: []core.OrderLine{
			{ID: 2, LineNumber: 1, ProductID: 2, ProductCode: "K-DESK", Quantity: decimal.NewFromInt(2), WarehouseCode: "JHB"},
		},
	})
	s.AddOrder(core.SalesOrder{
		ID: 3, CompanyCode: DemoCompany, OrderNumber: "SO-2026-00003", Status: core.OrderStatusConfirmed,
		Lines: []core.OrderLine{
			{ID: 3, LineNumber: 1, ProductID: 1, ProductCode: "P-CHAIR", Quantity: decimal.NewFromInt(1), WarehouseCode: "CT"},
			{ID: 4, LineNumber: 2, ProductID: 3, ProductCode: "C-LEG", Quantity: decimal.NewFromInt(8), WarehouseCode: "CT"},
		},
	})
	return s
}
