package core

import (
	"github.com/shopspring/decimal"
)

// DefaultMaxBOMDepth rejects bills of materials nested deeper than this.
const DefaultMaxBOMDepth = 10

// PlanningConfig holds the allocation thresholds that are business policy
// rather than code.
type PlanningConfig struct {
	// MaxBOMDepth is the deepest component level an expansion may reach.
	MaxBOMDepth int
	// WarehouseOrder overrides the canonical warehouse order. Codes listed
	// here come first; the rest follow by sort order, then code.
	WarehouseOrder []string
	// AllowBelowFloorTransfers lets a transfer take a source warehouse below
	// its reorder point when nothing else can cover the line. Such legs are
	// flagged and warned about.
	AllowBelowFloorTransfers bool
	// StaleTolerance is the largest per-row change in available stock an
	// execution accepts between planning and commit.
	StaleTolerance decimal.Decimal
	// PlanParallelism bounds concurrent planning in GeneratePlans.
	PlanParallelism int
}

func DefaultPlanningConfig() PlanningConfig {
	return PlanningConfig{
		MaxBOMDepth:              DefaultMaxBOMDepth,
		AllowBelowFloorTransfers: true,
		StaleTolerance:           decimal.Zero,
		PlanParallelism:          4,
	}
}

func (c PlanningConfig) normalized() PlanningConfig {
	if c.MaxBOMDepth <= 0 {
		c.MaxBOMDepth = DefaultMaxBOMDepth
	}
	if c.PlanParallelism <= 0 {
		c.PlanParallelism = 1
	}
	if c.StaleTolerance.IsNegative() {
		c.StaleTolerance = decimal.Zero
	}
	return c
}
