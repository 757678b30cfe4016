package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// PlanningSnapshot is everything the allocation engine reads. It is built
// once per planning call so allocation itself never touches a store.
type PlanningSnapshot struct {
	Order      *SalesOrder
	Warehouses []Warehouse // canonical order
	Products   map[int]Product
	// Expansions holds the per-unit BOM leaves of every assembled line product.
	Expansions map[int][]ComponentRequirement
	// Invalid holds the configuration error of products that cannot be planned.
	Invalid   map[int]error
	Suppliers map[int]*Supplier // default supplier by product; nil when none
	Stock     map[StockKey]StockSnapshot
	// Covered is the quantity per order line that earlier waves already committed.
	Covered map[int]decimal.Decimal
}

// AllocationEngine decides how each order line is satisfied.
type AllocationEngine struct {
	cfg PlanningConfig
}

func NewAllocationEngine(cfg PlanningConfig) *AllocationEngine {
	return &AllocationEngine{cfg: cfg.normalized()}
}

// Allocate processes lines in line-number order against a working copy of
// availability, so two lines never claim the same unit. It returns the line
// allocations and the stock observations they relied on.
func (e *AllocationEngine) Allocate(snap *PlanningSnapshot) ([]LineAllocation, []StockObservation) {
	lines := make([]OrderLine, len(snap.Order.Lines))
	copy(lines, snap.Order.Lines)
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].LineNumber < lines[j].LineNumber })

	ledger := newStockLedger(snap.Stock)
	out := make([]LineAllocation, 0, len(lines))
	for _, line := range lines {
		out = append(out, e.allocateLine(snap, ledger, line))
	}
	return out, ledger.observations()
}

func (e *AllocationEngine) allocateLine(snap *PlanningSnapshot, ledger *stockLedger, line OrderLine) LineAllocation {
	a := LineAllocation{
		OrderLineID:     line.ID,
		LineNumber:      line.LineNumber,
		ProductID:       line.ProductID,
		ProductCode:     line.ProductCode,
		QuantityOrdered: line.Quantity,
		TargetWarehouse: targetWarehouse(snap, line),
	}
	a.AlreadyCovered = decimal.Min(snap.Covered[line.ID], line.Quantity)

	product, ok := snap.Products[line.ProductID]
	if !ok || snap.Invalid[line.ProductID] != nil {
		err := snap.Invalid[line.ProductID]
		if err == nil {
			err = &ConfigurationError{ProductID: line.ProductID, ProductCode: line.ProductCode, Reason: "unknown product"}
		}
		return blockLine(a, err)
	}
	a.ProductType = product.Type
	if a.ProductCode == "" {
		a.ProductCode = product.Code
	}
	if a.TargetWarehouse == "" {
		return blockLine(a, errors.New("company has no active warehouse"))
	}

	if !a.Outstanding().IsPositive() {
		a.Kind = AllocationCovered
		return a
	}

	mark := ledger.mark()
	var err error
	if _, assembled := snap.Expansions[line.ProductID]; assembled {
		err = e.allocateAssembled(snap, ledger, &a)
	} else {
		err = e.allocateStocked(snap, ledger, &a)
	}
	if err != nil {
		ledger.rollback(mark)
		return blockLine(a, err)
	}
	return a
}

// allocateStocked covers a line from the target warehouse, then transfers,
// then a finished-goods purchase.
func (e *AllocationEngine) allocateStocked(snap *PlanningSnapshot, ledger *stockLedger, a *LineAllocation) error {
	remaining := a.Outstanding()
	target := a.TargetWarehouse
	key := StockKey{ProductID: a.ProductID, WarehouseCode: target}

	if pick := decimal.Min(ledger.available(key), remaining); pick.IsPositive() {
		ledger.take(key, pick)
		a.Picks = append(a.Picks, StockPick{WarehouseCode: target, Quantity: pick})
		a.FromStock = pick
		remaining = remaining.Sub(pick)
	}

	if remaining.IsPositive() {
		remaining = e.transfer(snap, ledger, a, remaining, false)
	}
	if remaining.IsPositive() && e.cfg.AllowBelowFloorTransfers {
		remaining = e.transfer(snap, ledger, a, remaining, true)
	}

	if remaining.IsPositive() {
		supplier := snap.Suppliers[a.ProductID]
		if supplier == nil {
			return &ConfigurationError{
				ProductID: a.ProductID, ProductCode: a.ProductCode,
				Reason: fmt.Sprintf("no default supplier to purchase %s units", remaining),
			}
		}
		a.Purchases = append(a.Purchases, PurchaseNeed{
			SupplierID: supplier.ID, ProductID: a.ProductID, ProductCode: a.ProductCode,
			WarehouseCode: target, Quantity: remaining, Reason: ReasonFinishedGoodsBackorder,
		})
		a.Backorder = remaining
	}

	switch {
	case a.Backorder.IsPositive():
		a.Kind = AllocationBackorder
	case a.Transfer.IsPositive():
		a.Kind = AllocationPartialTransfer
	default:
		a.Kind = AllocationFromStock
	}
	return nil
}

// transfer moves stock from the other warehouses to the line's target,
// largest source first. Without belowFloor a source only gives its surplus
// above the reorder point; with it, anything still available, flagged.
func (e *AllocationEngine) transfer(snap *PlanningSnapshot, ledger *stockLedger, a *LineAllocation, remaining decimal.Decimal, belowFloor bool) decimal.Decimal {
	type source struct {
		code  string
		spare decimal.Decimal
	}
	var sources []source
	for _, w := range snap.Warehouses {
		if w.Code == a.TargetWarehouse {
			continue
		}
		key := StockKey{ProductID: a.ProductID, WarehouseCode: w.Code}
		spare := ledger.available(key)
		if !belowFloor {
			spare = spare.Sub(ledger.reorderPoint(key))
		}
		if spare.IsPositive() {
			sources = append(sources, source{code: w.Code, spare: spare})
		}
	}
	// Stable: equal surpluses keep canonical warehouse order.
	sort.SliceStable(sources, func(i, j int) bool { return sources[i].spare.GreaterThan(sources[j].spare) })

	for _, src := range sources {
		if !remaining.IsPositive() {
			break
		}
		qty := decimal.Min(src.spare, remaining)
		ledger.take(StockKey{ProductID: a.ProductID, WarehouseCode: src.code}, qty)
		a.Transfers = append(a.Transfers, TransferLeg{
			FromWarehouse: src.code, ToWarehouse: a.TargetWarehouse,
			Quantity: qty, BelowReorderPoint: belowFloor,
		})
		a.Transfer = a.Transfer.Add(qty)
		remaining = remaining.Sub(qty)
		if belowFloor {
			a.Warnings = append(a.Warnings, fmt.Sprintf(
				"line %d: transfer of %s %s from %s takes it below its reorder point",
				a.LineNumber, qty, a.ProductCode, src.code))
		}
	}
	return remaining
}

// allocateAssembled picks finished stock at the target, transfers finished
// surplus from other warehouses, and plans a job card for the rest, sourcing
// components at the target. Finished goods are never taken below a reorder
// point here since assembly is the alternative.
func (e *AllocationEngine) allocateAssembled(snap *PlanningSnapshot, ledger *stockLedger, a *LineAllocation) error {
	remaining := a.Outstanding()
	target := a.TargetWarehouse
	key := StockKey{ProductID: a.ProductID, WarehouseCode: target}

	if pick := decimal.Min(ledger.available(key), remaining); pick.IsPositive() {
		ledger.take(key, pick)
		a.Picks = append(a.Picks, StockPick{WarehouseCode: target, Quantity: pick})
		a.FromStock = pick
		remaining = remaining.Sub(pick)
	}
	if remaining.IsPositive() {
		remaining = e.transfer(snap, ledger, a, remaining, false)
	}
	if !remaining.IsPositive() {
		a.Kind = AllocationFromStock
		if a.Transfer.IsPositive() {
			a.Kind = AllocationPartialTransfer
		}
		return nil
	}

	job := &AssemblyAllocation{WarehouseCode: target, Quantity: remaining, AllComponentsAvailable: true}
	var shortOptional []string
	for _, req := range snap.Expansions[a.ProductID] {
		required := req.Quantity.Mul(remaining)
		ckey := StockKey{ProductID: req.ProductID, WarehouseCode: target}
		reservable := decimal.Min(ledger.available(ckey), required)
		if reservable.IsPositive() {
			ledger.take(ckey, reservable)
		} else {
			reservable = decimal.Zero
		}
		shortfall := required.Sub(reservable)
		job.Components = append(job.Components, ComponentAllocation{
			ProductID: req.ProductID, ProductCode: req.ProductCode,
			Required: required, Available: reservable, Shortfall: shortfall,
			IsOptional: req.IsOptional,
		})
		if !shortfall.IsPositive() {
			continue
		}
		if req.IsOptional {
			shortOptional = append(shortOptional, req.ProductCode)
			continue
		}
		job.AllComponentsAvailable = false
		supplier := snap.Suppliers[req.ProductID]
		if supplier == nil {
			return &ConfigurationError{
				ProductID: req.ProductID, ProductCode: req.ProductCode,
				Reason: fmt.Sprintf("no default supplier to purchase %s units short for %s", shortfall, a.ProductCode),
			}
		}
		a.Purchases = append(a.Purchases, PurchaseNeed{
			SupplierID: supplier.ID, ProductID: req.ProductID, ProductCode: req.ProductCode,
			WarehouseCode: target, Quantity: shortfall, Reason: ReasonComponentShortage,
		})
	}

	if !job.AllComponentsAvailable {
		a.Warnings = append(a.Warnings, fmt.Sprintf(
			"line %d: job card for %s %s at %s is short of components",
			a.LineNumber, remaining, a.ProductCode, target))
	}
	if len(shortOptional) > 0 {
		a.Warnings = append(a.Warnings, fmt.Sprintf(
			"line %d: optional components short for %s: %s",
			a.LineNumber, a.ProductCode, strings.Join(shortOptional, ", ")))
	}

	a.Job = job
	a.Assembly = remaining
	a.Kind = AllocationAssemblyRequired
	return nil
}

// blockLine drops every quantity from a line that cannot be planned.
func blockLine(a LineAllocation, err error) LineAllocation {
	a.Kind = AllocationBlocked
	a.FromStock, a.Transfer, a.Assembly, a.Backorder = decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	a.Picks, a.Transfers, a.Job, a.Purchases = nil, nil, nil, nil
	a.BlockedReason = err.Error()
	a.Warnings = append(a.Warnings, fmt.Sprintf("line %d blocked: %s", a.LineNumber, err))
	return a
}

// targetWarehouse is the line's warehouse, else the order default, else the
// first canonical warehouse.
func targetWarehouse(snap *PlanningSnapshot, line OrderLine) string {
	if line.WarehouseCode != "" {
		return line.WarehouseCode
	}
	if snap.Order.DefaultWarehouseCode != "" {
		return snap.Order.DefaultWarehouseCode
	}
	if len(snap.Warehouses) > 0 {
		return snap.Warehouses[0].Code
	}
	return ""
}

// ── Policy gate ───────────────────────────────────────────────────────────────

// PolicyDecision is the outcome of the order-level policy gate.
type PolicyDecision struct {
	CanProceed    bool
	BlockedReason string
	Warnings      []string
}

// EvaluatePolicy applies the order-level policy to the line allocations.
// An unknown policy is an error, never a default.
func EvaluatePolicy(policy FulfillmentPolicy, lines []LineAllocation) (PolicyDecision, error) {
	var d PolicyDecision
	switch policy {
	case PolicyShipComplete:
		var blocking []string
		for _, l := range lines {
			if l.Kind == AllocationBlocked || !l.CompleteNow() {
				blocking = append(blocking, fmt.Sprint(l.LineNumber))
			}
		}
		d.CanProceed = len(blocking) == 0
		if !d.CanProceed {
			d.BlockedReason = "SHIP_COMPLETE: lines not fully available now: " + strings.Join(blocking, ", ")
		}
	case PolicyShipPartial:
		// Backorders and short job cards still proceed: their purchase
		// orders are what the later waves wait on.
		for _, l := range lines {
			if l.HasWork() {
				d.CanProceed = true
			}
			if l.Kind != AllocationBlocked && !l.CompleteNow() {
				d.Warnings = append(d.Warnings, fmt.Sprintf("line %d: remainder ships later", l.LineNumber))
			}
		}
		if !d.CanProceed {
			d.BlockedReason = "SHIP_PARTIAL: no line has work to plan"
		}
	case PolicySalesDecision:
		d.BlockedReason = "SALES_DECISION: choose SHIP_COMPLETE or SHIP_PARTIAL as a policy override and re-plan"
	default:
		return PolicyDecision{}, fmt.Errorf("%w %q", ErrUnknownPolicy, policy)
	}

	if len(lines) == 0 {
		d.CanProceed = false
		d.BlockedReason = "order has no lines"
		d.Warnings = nil
		return d, nil
	}
	if nothingLeftToPlan(lines) {
		d.CanProceed = false
		d.BlockedReason = "every line is already covered by existing documents"
		d.Warnings = nil
	}
	return d, nil
}

// nothingLeftToPlan reports whether earlier waves cover every line that is not blocked.
func nothingLeftToPlan(lines []LineAllocation) bool {
	covered := false
	for _, l := range lines {
		switch l.Kind {
		case AllocationCovered:
			covered = true
		case AllocationBlocked:
		default:
			return false
		}
	}
	return covered
}

// ── Working availability ──────────────────────────────────────────────────────

type ledgerEntry struct {
	key StockKey
	qty decimal.Decimal
}

// stockLedger is the engine's working copy of availability. It records the
// first value it served for each row, which becomes the plan's snapshot.
type stockLedger struct {
	stock    map[StockKey]StockSnapshot
	used     map[StockKey]decimal.Decimal
	observed map[StockKey]decimal.Decimal
	journal  []ledgerEntry
}

func newStockLedger(stock map[StockKey]StockSnapshot) *stockLedger {
	return &stockLedger{
		stock:    stock,
		used:     make(map[StockKey]decimal.Decimal),
		observed: make(map[StockKey]decimal.Decimal),
	}
}

// available never goes below zero, whatever the stored row says.
func (l *stockLedger) available(k StockKey) decimal.Decimal {
	base := l.stock[k].Available
	if _, ok := l.observed[k]; !ok {
		l.observed[k] = base
	}
	left := base.Sub(l.used[k])
	if left.IsNegative() {
		return decimal.Zero
	}
	return left
}

func (l *stockLedger) reorderPoint(k StockKey) decimal.Decimal {
	return l.stock[k].ReorderPoint
}

func (l *stockLedger) take(k StockKey, qty decimal.Decimal) {
	l.used[k] = l.used[k].Add(qty)
	l.journal = append(l.journal, ledgerEntry{key: k, qty: qty})
}

func (l *stockLedger) mark() int { return len(l.journal) }

// rollback undoes every take after mark. Observations stay: the line still read them.
func (l *stockLedger) rollback(mark int) {
	for _, e := range l.journal[mark:] {
		l.used[e.key] = l.used[e.key].Sub(e.qty)
	}
	l.journal = l.journal[:mark]
}

func (l *stockLedger) observations() []StockObservation {
	keys := make([]StockKey, 0, len(l.observed))
	for k := range l.observed {
		keys = append(keys, k)
	}
	sortKeys(keys)
	out := make([]StockObservation, 0, len(keys))
	for _, k := range keys {
		out = append(out, StockObservation{ProductID: k.ProductID, WarehouseCode: k.WarehouseCode, Available: l.observed[k]})
	}
	return out
}
