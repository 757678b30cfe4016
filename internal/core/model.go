package core

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Warehouse represents a physical stock location. Code is its identity.
type Warehouse struct {
	ID        int    `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	SortOrder int    `json:"sort_order"`
	IsActive  bool   `json:"is_active"`
}

// ProductType controls how an order line for the product is fulfilled.
type ProductType string

const (
	ProductTypeStockOnly        ProductType = "STOCK_ONLY"
	ProductTypeAssemblyRequired ProductType = "ASSEMBLY_REQUIRED"
	ProductTypeMadeToOrder      ProductType = "MADE_TO_ORDER"
	ProductTypeKit              ProductType = "KIT"
)

// Valid reports whether t is one of the known product types.
func (t ProductType) Valid() bool {
	switch t {
	case ProductTypeStockOnly, ProductTypeAssemblyRequired, ProductTypeMadeToOrder, ProductTypeKit:
		return true
	}
	return false
}

// RequiresBOM reports whether a product of this type cannot be built without BOM lines.
func (t ProductType) RequiresBOM() bool {
	return t == ProductTypeKit || t == ProductTypeAssemblyRequired
}

// Product is a catalog item as seen by the fulfillment engine.
type Product struct {
	ID                int         `json:"id"`
	Code              string      `json:"code"`
	Name              string      `json:"name"`
	Type              ProductType `json:"type"`
	Unit              string      `json:"unit"`
	DefaultSupplierID *int        `json:"default_supplier_id,omitempty"`
}

// BOMComponent is one line of a product's bill of materials.
type BOMComponent struct {
	ParentProductID    int             `json:"parent_product_id"`
	ComponentProductID int             `json:"component_product_id"`
	QuantityPerUnit    decimal.Decimal `json:"quantity_per_unit"`
	IsOptional         bool            `json:"is_optional"`
	SortOrder          int             `json:"sort_order"`
}

// Supplier is the default purchasing source for a product.
type Supplier struct {
	ID       int    `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
}

// SortWarehouses orders warehouses canonically. When preference is non-empty,
// listed codes come first in the given order and the rest follow by SortOrder, then Code.
func SortWarehouses(warehouses []Warehouse, preference []string) []Warehouse {
	rank := make(map[string]int, len(preference))
	for i, code := range preference {
		if _, ok := rank[code]; !ok {
			rank[code] = i
		}
	}
	out := make([]Warehouse, len(warehouses))
	copy(out, warehouses)
	sort.SliceStable(out, func(i, j int) bool {
		ri, iok := rank[out[i].Code]
		rj, jok := rank[out[j].Code]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		}
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Code < out[j].Code
	})
	return out
}

func productLabel(p Product) string {
	if p.Code != "" {
		return p.Code
	}
	return fmt.Sprintf("product %d", p.ID)
}
