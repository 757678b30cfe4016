package core

import (
	"context"
	"sort"
)

// StockResolver turns raw stock rows into availability snapshots.
// It holds no state and is safe for concurrent use.
type StockResolver struct {
	reader StockReader
}

func NewStockResolver(reader StockReader) *StockResolver {
	return &StockResolver{reader: reader}
}

// Resolve returns the snapshot for one (product, warehouse).
func (r *StockResolver) Resolve(ctx context.Context, key StockKey) (StockSnapshot, error) {
	snaps, err := r.ResolveBatch(ctx, []StockKey{key})
	if err != nil {
		return StockSnapshot{}, err
	}
	return snaps[key], nil
}

// ResolveBatch resolves every key with a single store read. Keys with no
// stock row resolve to a zero snapshot.
func (r *StockResolver) ResolveBatch(ctx context.Context, keys []StockKey) (map[StockKey]StockSnapshot, error) {
	out := make(map[StockKey]StockSnapshot, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	unique := uniqueKeys(keys)
	levels, err := r.reader.GetStockLevels(ctx, unique)
	if err != nil {
		return nil, dependency("read stock levels", err)
	}
	for _, l := range levels {
		out[l.Key] = SnapshotOf(l)
	}
	for _, k := range unique {
		if _, ok := out[k]; !ok {
			out[k] = SnapshotOf(StockLevel{Key: k})
		}
	}
	return out, nil
}

// SnapshotOf derives the read view of a stock row.
func SnapshotOf(l StockLevel) StockSnapshot {
	return StockSnapshot{
		Key:          l.Key,
		OnHand:       l.OnHand,
		SoftReserved: l.SoftReserved,
		HardReserved: l.HardReserved,
		Available:    l.Available(),
		OnOrder:      l.OnOrder,
		ReorderPoint: l.ReorderPoint,
		Status:       DeriveStockStatus(l),
	}
}

// DeriveStockStatus applies, in order: ON_ORDER, OUT_OF_STOCK, OVERSTOCK,
// LOW_STOCK, IN_STOCK.
func DeriveStockStatus(l StockLevel) StockStatus {
	available := l.Available()
	switch {
	case !available.IsPositive() && l.OnOrder.IsPositive():
		return StockStatusOnOrder
	case !available.IsPositive():
		return StockStatusOutOfStock
	case l.MaximumStock != nil && l.OnHand.GreaterThan(*l.MaximumStock):
		return StockStatusOverstock
	case available.LessThanOrEqual(l.ReorderPoint):
		return StockStatusLowStock
	}
	return StockStatusInStock
}

// uniqueKeys drops duplicates and sorts by product, then warehouse.
func uniqueKeys(keys []StockKey) []StockKey {
	seen := make(map[StockKey]struct{}, len(keys))
	out := make([]StockKey, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sortKeys(out)
	return out
}

func sortKeys(keys []StockKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ProductID != keys[j].ProductID {
			return keys[i].ProductID < keys[j].ProductID
		}
		return keys[i].WarehouseCode < keys[j].WarehouseCode
	})
}
