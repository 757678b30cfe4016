package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrOrderNotPlannable = errors.New("order is not in a plannable status")
	ErrPlanTampered      = errors.New("plan content does not match its digest")
	ErrPlanOrderMismatch = errors.New("plan belongs to a different order")
	ErrUnknownPolicy     = errors.New("unknown fulfillment policy")
)

// ConfigurationError reports master data the engine refuses to guess around:
// cyclic or too-deep BOMs, kits without components, missing suppliers.
type ConfigurationError struct {
	ProductID   int
	ProductCode string
	Path        []int // BOM path from the root product, when relevant
	Reason      string
}

func (e *ConfigurationError) Error() string {
	label := e.ProductCode
	if label == "" {
		label = fmt.Sprintf("product %d", e.ProductID)
	}
	if len(e.Path) > 0 {
		parts := make([]string, len(e.Path))
		for i, id := range e.Path {
			parts[i] = fmt.Sprint(id)
		}
		return fmt.Sprintf("configuration error for %s: %s (path %s)", label, e.Reason, strings.Join(parts, " > "))
	}
	return fmt.Sprintf("configuration error for %s: %s", label, e.Reason)
}

// StockChange is one observation that no longer matches current stock.
type StockChange struct {
	Key     StockKey        `json:"key"`
	Planned decimal.Decimal `json:"planned"`
	Current decimal.Decimal `json:"current"`
}

// StalePlanError means the stock a plan was computed against has moved.
type StalePlanError struct {
	Changes []StockChange
}

func (e *StalePlanError) Error() string {
	parts := make([]string, 0, len(e.Changes))
	for _, c := range e.Changes {
		parts = append(parts, fmt.Sprintf("%s planned %s now %s", c.Key, c.Planned, c.Current))
	}
	return "stock changed since the plan was generated, re-plan: " + strings.Join(parts, "; ")
}

// ReservationConflictError is returned when a reservation or stock issue
// would drive available stock negative. OrderLineID is zero for job card
// components, which serve the whole job.
type ReservationConflictError struct {
	Document       DocumentKind
	DocumentID     int
	DocumentNumber string
	OrderLineID    int
	Key            StockKey
	Requested      decimal.Decimal
	Available      decimal.Decimal
}

func (e *ReservationConflictError) Error() string {
	doc := string(e.Document)
	switch {
	case e.DocumentNumber != "":
		doc = fmt.Sprintf("%s %s", e.Document, e.DocumentNumber)
	case e.DocumentID != 0:
		doc = fmt.Sprintf("%s %d", e.Document, e.DocumentID)
	}
	line := ""
	if e.OrderLineID != 0 {
		line = fmt.Sprintf(" (order line %d)", e.OrderLineID)
	}
	return fmt.Sprintf("reservation conflict on %s for %s%s: requested %s, available %s",
		doc, e.Key, line, e.Requested, e.Available)
}

// withDocumentNumber names the document on a conflict raised by a store,
// which only knows document IDs.
func withDocumentNumber(err error, number string) error {
	var conflict *ReservationConflictError
	if errors.As(err, &conflict) && conflict.DocumentNumber == "" {
		conflict.DocumentNumber = number
	}
	return err
}

// PolicyBlockedError is returned when executing a plan whose CanProceed is false.
type PolicyBlockedError struct {
	Policy FulfillmentPolicy
	Reason string
}

func (e *PolicyBlockedError) Error() string {
	return fmt.Sprintf("plan is blocked under %s: %s", e.Policy, e.Reason)
}

// DependencyError wraps a failing store or collaborator call.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

// InvalidTransitionError is returned for a document status change its lifecycle forbids.
type InvalidTransitionError struct {
	Kind DocumentKind
	From DocumentStatus
	To   DocumentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s cannot move from %s to %s", e.Kind, e.From, e.To)
}

// dependency wraps err as a *DependencyError unless it already carries a
// domain meaning the caller needs to see unchanged.
func dependency(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		cfg      *ConfigurationError
		stale    *StalePlanError
		conflict *ReservationConflictError
		blocked  *PolicyBlockedError
		dep      *DependencyError
		trans    *InvalidTransitionError
	)
	switch {
	case errors.As(err, &cfg), errors.As(err, &stale), errors.As(err, &conflict),
		errors.As(err, &blocked), errors.As(err, &dep), errors.As(err, &trans),
		errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrDocumentNotFound),
		errors.Is(err, ErrProductNotFound), errors.Is(err, ErrOrderNotPlannable):
		return err
	}
	return &DependencyError{Op: op, Err: err}
}
