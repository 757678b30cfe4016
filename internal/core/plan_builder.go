package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// PlanInput is what the builder aggregates into a plan.
type PlanInput struct {
	Order            *SalesOrder
	Policy           FulfillmentPolicy
	PolicyOverridden bool
	Warehouses       []Warehouse // canonical order
	Suppliers        map[int]Supplier
	Lines            []LineAllocation
	Decision         PolicyDecision
	Snapshot         []StockObservation
}

// PlanBuilder groups line allocations into documents to create. It is a
// pure function of its input: the same input always yields the same plan.
type PlanBuilder struct{}

func NewPlanBuilder() *PlanBuilder { return &PlanBuilder{} }

func (b *PlanBuilder) Build(in PlanInput) (*OrchestrationPlan, error) {
	rank := make(map[string]int, len(in.Warehouses))
	for i, w := range in.Warehouses {
		rank[w.Code] = i
	}

	plan := &OrchestrationPlan{
		OrderID:          in.Order.ID,
		OrderNumber:      in.Order.OrderNumber,
		Policy:           in.Policy,
		PolicyOverridden: in.PolicyOverridden,
		Lines:            in.Lines,
		PickingSlips:     []PickingSlipPlan{},
		JobCards:         []JobCardPlan{},
		Transfers:        []TransferPlan{},
		PurchaseOrders:   []PurchaseOrderPlan{},
		Warnings:         []string{},
		CanProceed:       in.Decision.CanProceed,
		BlockedReason:    in.Decision.BlockedReason,
		Snapshot:         in.Snapshot,
	}
	if plan.Lines == nil {
		plan.Lines = []LineAllocation{}
	}
	if plan.Snapshot == nil {
		plan.Snapshot = []StockObservation{}
	}

	plan.PickingSlips = groupPickingSlips(in.Lines, rank)
	plan.JobCards = groupJobCards(in.Lines)
	plan.Transfers = groupTransfers(in.Lines, rank)
	pos, err := groupPurchaseOrders(in.Lines, in.Suppliers)
	if err != nil {
		return nil, err
	}
	plan.PurchaseOrders = pos
	plan.Summary = summarize(in.Lines)

	seen := make(map[string]struct{})
	addWarning := func(w string) {
		if _, ok := seen[w]; ok {
			return
		}
		seen[w] = struct{}{}
		plan.Warnings = append(plan.Warnings, w)
	}
	for _, l := range in.Lines {
		for _, w := range l.Warnings {
			addWarning(w)
		}
	}
	for _, w := range in.Decision.Warnings {
		addWarning(w)
	}

	digest, err := PlanDigest(plan)
	if err != nil {
		return nil, err
	}
	plan.Digest = digest
	return plan, nil
}

func groupPickingSlips(lines []LineAllocation, rank map[string]int) []PickingSlipPlan {
	byWarehouse := make(map[string]*PickingSlipPlan)
	var codes []string
	for _, l := range lines {
		for _, p := range l.Picks {
			slip, ok := byWarehouse[p.WarehouseCode]
			if !ok {
				slip = &PickingSlipPlan{WarehouseCode: p.WarehouseCode}
				byWarehouse[p.WarehouseCode] = slip
				codes = append(codes, p.WarehouseCode)
			}
			slip.Lines = append(slip.Lines, PickingSlipLinePlan{
				OrderLineID: l.OrderLineID, LineNumber: l.LineNumber,
				ProductID: l.ProductID, ProductCode: l.ProductCode, Quantity: p.Quantity,
			})
		}
	}
	sortByRank(codes, rank)
	out := make([]PickingSlipPlan, 0, len(codes))
	for _, c := range codes {
		out = append(out, *byWarehouse[c])
	}
	return out
}

type jobKey struct {
	productID int
	warehouse string
}

// groupJobCards keeps first-seen order; lines arrive sorted by line number.
func groupJobCards(lines []LineAllocation) []JobCardPlan {
	byKey := make(map[jobKey]*JobCardPlan)
	componentIndex := make(map[jobKey]map[requirementKey]int)
	var keys []jobKey
	for _, l := range lines {
		if l.Job == nil {
			continue
		}
		k := jobKey{productID: l.ProductID, warehouse: l.Job.WarehouseCode}
		job, ok := byKey[k]
		if !ok {
			job = &JobCardPlan{ProductID: l.ProductID, ProductCode: l.ProductCode, WarehouseCode: l.Job.WarehouseCode}
			byKey[k] = job
			componentIndex[k] = make(map[requirementKey]int)
			keys = append(keys, k)
		}
		job.Quantity = job.Quantity.Add(l.Job.Quantity)
		job.Lines = append(job.Lines, JobCardLinePlan{OrderLineID: l.OrderLineID, LineNumber: l.LineNumber, Quantity: l.Job.Quantity})

		idx := componentIndex[k]
		for _, c := range l.Job.Components {
			ck := requirementKey{productID: c.ProductID, optional: c.IsOptional}
			if i, ok := idx[ck]; ok {
				merged := &job.Components[i]
				merged.Required = merged.Required.Add(c.Required)
				merged.Available = merged.Available.Add(c.Available)
				merged.Shortfall = merged.Shortfall.Add(c.Shortfall)
				continue
			}
			idx[ck] = len(job.Components)
			job.Components = append(job.Components, c)
		}
	}

	out := make([]JobCardPlan, 0, len(keys))
	for _, k := range keys {
		job := byKey[k]
		job.ComponentAvailability = ComponentAvailability{AllComponentsAvailable: true, Shortfalls: []ComponentShortfall{}}
		for _, c := range job.Components {
			if !c.Shortfall.IsPositive() {
				continue
			}
			job.ComponentAvailability.Shortfalls = append(job.ComponentAvailability.Shortfalls, ComponentShortfall{
				ProductID: c.ProductID, ProductCode: c.ProductCode,
				Required: c.Required, Available: c.Available, Shortfall: c.Shortfall, IsOptional: c.IsOptional,
			})
			if !c.IsOptional {
				job.ComponentAvailability.AllComponentsAvailable = false
			}
		}
		out = append(out, *job)
	}
	return out
}

type transferKey struct{ from, to string }

func groupTransfers(lines []LineAllocation, rank map[string]int) []TransferPlan {
	byPair := make(map[transferKey]*TransferPlan)
	var keys []transferKey
	for _, l := range lines {
		for _, leg := range l.Transfers {
			k := transferKey{from: leg.FromWarehouse, to: leg.ToWarehouse}
			t, ok := byPair[k]
			if !ok {
				t = &TransferPlan{FromWarehouse: leg.FromWarehouse, ToWarehouse: leg.ToWarehouse}
				byPair[k] = t
				keys = append(keys, k)
			}
			t.Lines = append(t.Lines, TransferLinePlan{
				OrderLineID: l.OrderLineID, LineNumber: l.LineNumber,
				ProductID: l.ProductID, ProductCode: l.ProductCode,
				Quantity: leg.Quantity, BelowReorderPoint: leg.BelowReorderPoint,
			})
		}
	}
	sort.SliceStable(keys, func(i, j int) bool {
		if a, b := warehouseRank(rank, keys[i].from), warehouseRank(rank, keys[j].from); a != b {
			return a < b
		}
		return warehouseRank(rank, keys[i].to) < warehouseRank(rank, keys[j].to)
	})
	out := make([]TransferPlan, 0, len(keys))
	for _, k := range keys {
		out = append(out, *byPair[k])
	}
	return out
}

func groupPurchaseOrders(lines []LineAllocation, suppliers map[int]Supplier) ([]PurchaseOrderPlan, error) {
	bySupplier := make(map[int]*PurchaseOrderPlan)
	var ids []int
	for _, l := range lines {
		for _, need := range l.Purchases {
			po, ok := bySupplier[need.SupplierID]
			if !ok {
				s, known := suppliers[need.SupplierID]
				if !known {
					return nil, fmt.Errorf("supplier %d for %s missing from planning snapshot", need.SupplierID, need.ProductCode)
				}
				po = &PurchaseOrderPlan{SupplierID: s.ID, SupplierCode: s.Code, SupplierName: s.Name, Currency: s.Currency}
				bySupplier[need.SupplierID] = po
				ids = append(ids, need.SupplierID)
			}
			po.Lines = append(po.Lines, PurchaseOrderLinePlan{
				OrderLineID: l.OrderLineID, LineNumber: l.LineNumber,
				ProductID: need.ProductID, ProductCode: need.ProductCode,
				WarehouseCode: need.WarehouseCode, Quantity: need.Quantity, Reason: need.Reason,
			})
		}
	}
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := bySupplier[ids[i]], bySupplier[ids[j]]
		if a.SupplierCode != b.SupplierCode {
			return a.SupplierCode < b.SupplierCode
		}
		return a.SupplierID < b.SupplierID
	})
	out := make([]PurchaseOrderPlan, 0, len(ids))
	for _, id := range ids {
		out = append(out, *bySupplier[id])
	}
	return out, nil
}

var hundred = decimal.NewFromInt(100)

func summarize(lines []LineAllocation) PlanSummary {
	s := PlanSummary{TotalLines: len(lines), ImmediatelyFulfillablePercent: decimal.Zero}
	for _, l := range lines {
		if l.Kind == AllocationBlocked {
			s.BlockedLines++
			continue
		}
		if l.CompleteNow() {
			s.ImmediatelyFulfillableLines++
		}
		if l.Assembly.IsPositive() {
			s.LinesNeedingAssembly++
		}
		if l.Transfer.IsPositive() {
			s.LinesNeedingTransfer++
		}
		if l.Backorder.IsPositive() {
			s.BackorderedLines++
		}
	}
	if s.TotalLines > 0 {
		s.ImmediatelyFulfillablePercent = decimal.NewFromInt(int64(s.ImmediatelyFulfillableLines)).
			Mul(hundred).
			Div(decimal.NewFromInt(int64(s.TotalLines))).
			Round(2)
	}
	s.Text = fmt.Sprintf("%d lines: %d immediately fulfillable (%s%%), %d need assembly, %d need transfer, %d backordered, %d blocked",
		s.TotalLines, s.ImmediatelyFulfillableLines, s.ImmediatelyFulfillablePercent.StringFixed(2),
		s.LinesNeedingAssembly, s.LinesNeedingTransfer, s.BackorderedLines, s.BlockedLines)
	return s
}

func warehouseRank(rank map[string]int, code string) int {
	if r, ok := rank[code]; ok {
		return r
	}
	return len(rank)
}

func sortByRank(codes []string, rank map[string]int) {
	sort.SliceStable(codes, func(i, j int) bool {
		a, b := warehouseRank(rank, codes[i]), warehouseRank(rank, codes[j])
		if a != b {
			return a < b
		}
		return codes[i] < codes[j]
	})
}

// PlanDigest hashes the canonical JSON of everything in the plan except the digest.
func PlanDigest(plan *OrchestrationPlan) (string, error) {
	content := *plan
	content.Digest = ""
	raw, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("failed to encode plan: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyPlanDigest returns ErrPlanTampered when the plan was altered after it was built.
func VerifyPlanDigest(plan *OrchestrationPlan) error {
	want, err := PlanDigest(plan)
	if err != nil {
		return err
	}
	if plan.Digest == "" || plan.Digest != want {
		return ErrPlanTampered
	}
	return nil
}
