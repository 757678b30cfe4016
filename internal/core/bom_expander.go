package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// ComponentRequirement is an aggregated leaf of a BOM expansion.
type ComponentRequirement struct {
	ProductID   int             `json:"product_id"`
	ProductCode string          `json:"product_code"`
	ProductType ProductType     `json:"product_type"`
	Quantity    decimal.Decimal `json:"quantity"`
	IsOptional  bool            `json:"is_optional"`
}

// BOMExpander flattens a product's bill of materials to purchasable leaves.
type BOMExpander struct {
	catalog  CatalogReader
	maxDepth int
}

func NewBOMExpander(catalog CatalogReader, maxDepth int) *BOMExpander {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxBOMDepth
	}
	return &BOMExpander{catalog: catalog, maxDepth: maxDepth}
}

type bomFrame struct {
	productID int
	quantity  decimal.Decimal
	optional  bool
	path      []int // product IDs from the root down to and including productID
}

type requirementKey struct {
	productID int
	optional  bool
}

// Expand walks the BOM graph depth-first with an explicit stack and sums
// leaf quantities across every path that reaches them. A leaf is a
// STOCK_ONLY product, or a MADE_TO_ORDER product without a BOM. Optional
// components pass their optionality to everything below them.
//
// Cycles, excessive depth, empty KIT or ASSEMBLY_REQUIRED BOMs, non-positive
// quantities and unknown products are returned as *ConfigurationError.
func (e *BOMExpander) Expand(ctx context.Context, productID int, quantity decimal.Decimal) ([]ComponentRequirement, error) {
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("expand product %d: quantity must be positive, got %s", productID, quantity)
	}

	totals := make(map[requirementKey]*ComponentRequirement)
	var order []requirementKey

	stack := []bomFrame{{productID: productID, quantity: quantity, path: []int{productID}}}
	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		product, err := e.product(ctx, frame.productID, frame.path)
		if err != nil {
			return nil, err
		}

		var bom []BOMComponent
		if product.Type != ProductTypeStockOnly {
			if bom, err = e.catalog.GetBOMComponents(ctx, product.ID); err != nil {
				return nil, dependency(fmt.Sprintf("load BOM of %s", productLabel(*product)), err)
			}
			if len(bom) == 0 && product.Type.RequiresBOM() {
				return nil, &ConfigurationError{
					ProductID: product.ID, ProductCode: product.Code, Path: frame.path,
					Reason: fmt.Sprintf("%s product has no BOM lines", product.Type),
				}
			}
		}

		if len(bom) == 0 {
			key := requirementKey{productID: product.ID, optional: frame.optional}
			if req, ok := totals[key]; ok {
				req.Quantity = req.Quantity.Add(frame.quantity)
				continue
			}
			totals[key] = &ComponentRequirement{
				ProductID: product.ID, ProductCode: product.Code, ProductType: product.Type,
				Quantity: frame.quantity, IsOptional: frame.optional,
			}
			order = append(order, key)
			continue
		}

		depth := len(frame.path) // depth of the children about to be pushed
		if depth > e.maxDepth {
			return nil, &ConfigurationError{
				ProductID: product.ID, ProductCode: product.Code, Path: frame.path,
				Reason: fmt.Sprintf("BOM is nested deeper than %d levels", e.maxDepth),
			}
		}

		sorted := make([]BOMComponent, len(bom))
		copy(sorted, bom)
		sort.SliceStable(sorted, func(i, j int) bool {
			if sorted[i].SortOrder != sorted[j].SortOrder {
				return sorted[i].SortOrder < sorted[j].SortOrder
			}
			return sorted[i].ComponentProductID < sorted[j].ComponentProductID
		})

		// Push in reverse so the first component is expanded first.
		for i := len(sorted) - 1; i >= 0; i-- {
			c := sorted[i]
			if !c.QuantityPerUnit.IsPositive() {
				return nil, &ConfigurationError{
					ProductID: product.ID, ProductCode: product.Code, Path: frame.path,
					Reason: fmt.Sprintf("component %d has non-positive quantity per unit %s", c.ComponentProductID, c.QuantityPerUnit),
				}
			}
			if onPath(frame.path, c.ComponentProductID) {
				return nil, &ConfigurationError{
					ProductID: product.ID, ProductCode: product.Code,
					Path:   appendPath(frame.path, c.ComponentProductID),
					Reason: "BOM contains a cycle",
				}
			}
			stack = append(stack, bomFrame{
				productID: c.ComponentProductID,
				quantity:  frame.quantity.Mul(c.QuantityPerUnit),
				optional:  frame.optional || c.IsOptional,
				path:      appendPath(frame.path, c.ComponentProductID),
			})
		}
	}

	out := make([]ComponentRequirement, 0, len(order))
	for _, k := range order {
		out = append(out, *totals[k])
	}
	return out, nil
}

func (e *BOMExpander) product(ctx context.Context, id int, path []int) (*Product, error) {
	p, err := e.catalog.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return nil, &ConfigurationError{ProductID: id, Path: path, Reason: "unknown product in BOM"}
		}
		return nil, dependency(fmt.Sprintf("load product %d", id), err)
	}
	return p, nil
}

func onPath(path []int, id int) bool {
	for _, p := range path {
		if p == id {
			return true
		}
	}
	return false
}

// appendPath copies so sibling frames never share a backing array.
func appendPath(path []int, id int) []int {
	out := make([]int, len(path), len(path)+1)
	copy(out, path)
	return append(out, id)
}

// catalogCache memoizes catalog reads for the lifetime of one planning call.
type catalogCache struct {
	inner CatalogReader

	mu       sync.Mutex
	products map[int]*Product
	boms     map[int][]BOMComponent
}

func newCatalogCache(inner CatalogReader) *catalogCache {
	return &catalogCache{
		inner:    inner,
		products: make(map[int]*Product),
		boms:     make(map[int][]BOMComponent),
	}
}

func (c *catalogCache) GetProduct(ctx context.Context, id int) (*Product, error) {
	c.mu.Lock()
	p, ok := c.products[id]
	c.mu.Unlock()
	if ok {
		return p, nil
	}
	p, err := c.inner.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.products[id] = p
	c.mu.Unlock()
	return p, nil
}

func (c *catalogCache) GetBOMComponents(ctx context.Context, id int) ([]BOMComponent, error) {
	c.mu.Lock()
	bom, ok := c.boms[id]
	c.mu.Unlock()
	if ok {
		return bom, nil
	}
	bom, err := c.inner.GetBOMComponents(ctx, id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.boms[id] = bom
	c.mu.Unlock()
	return bom, nil
}
