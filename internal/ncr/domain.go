// Package ncr manages non-conformance reports. Price-variance NCRs are
// generated automatically during delivery posting; manual NCRs are raised
// by operators. Resolved NCRs feed reconciliation as credits or losses.
package ncr

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Type distinguishes how an NCR was raised.
type Type string

const (
	TypeManual        Type = "MANUAL"
	TypePriceVariance Type = "PRICE_VARIANCE"
)

// Status enumerates the NCR workflow. Credited, rejected and resolved are
// terminal.
type Status string

const (
	StatusOpen     Status = "OPEN"
	StatusSent     Status = "SENT"
	StatusCredited Status = "CREDITED"
	StatusRejected Status = "REJECTED"
	StatusResolved Status = "RESOLVED"
)

// FinancialImpact is how a settled NCR affects reconciliation.
type FinancialImpact string

const (
	ImpactNone   FinancialImpact = "NONE"
	ImpactCredit FinancialImpact = "CREDIT"
	ImpactLoss   FinancialImpact = "LOSS"
)

// NCR is one non-conformance report.
type NCR struct {
	ID             int64
	NCRNo          string
	Type           Type
	Status         Status
	AutoGenerated  bool
	LocationID     int64
	SupplierID     int64
	DeliveryID     *int64
	DeliveryLineID *int64
	ItemID         *int64
	Value          decimal.Decimal
	Description    string
	ResolutionType string
	Impact         FinancialImpact
	RaisedBy       int64
	CreatedAt      time.Time
}

var (
	// ErrNCRNotFound indicates a missing NCR row.
	ErrNCRNotFound = errors.New("ncr: not found")
	// ErrTerminalStatus indicates a mutation on a settled NCR.
	ErrTerminalStatus = errors.New("ncr: status is terminal")
	// ErrInvalidTransition indicates a workflow move the rules forbid.
	ErrInvalidTransition = errors.New("ncr: invalid status transition")
	// ErrImpactRequired indicates RESOLVED was requested without an impact.
	ErrImpactRequired = errors.New("ncr: resolving requires a financial impact")
)

// Terminal reports whether the status permits no further changes.
func (s Status) Terminal() bool {
	return s == StatusCredited || s == StatusRejected || s == StatusResolved
}

// CanTransition reports whether the workflow permits moving from current
// to target.
func CanTransition(current, target Status) bool {
	if current.Terminal() {
		return false
	}
	switch current {
	case StatusOpen:
		return target == StatusSent || target.Terminal()
	case StatusSent:
		return target.Terminal()
	}
	return false
}

// ImpactFor returns the financial impact a transition implies. CREDITED
// and REJECTED fix the impact; RESOLVED takes the operator's choice.
func ImpactFor(target Status, chosen FinancialImpact) (FinancialImpact, error) {
	switch target {
	case StatusCredited:
		return ImpactCredit, nil
	case StatusRejected:
		return ImpactLoss, nil
	case StatusResolved:
		if chosen == "" {
			return "", ErrImpactRequired
		}
		return chosen, nil
	}
	return ImpactNone, nil
}

// CreateManualInput is the payload for an operator-raised NCR.
type CreateManualInput struct {
	LocationID  int64
	SupplierID  int64
	ItemID      *int64
	Value       decimal.Decimal
	Description string
	ActorID     int64
}

// Validate checks structural coherence of the manual input.
func (in CreateManualInput) Validate() error {
	if in.LocationID == 0 {
		return errors.New("ncr: location required")
	}
	if in.SupplierID == 0 {
		return errors.New("ncr: supplier required")
	}
	if in.Value.IsNegative() {
		return errors.New("ncr: value cannot be negative")
	}
	if in.Description == "" {
		return errors.New("ncr: description required")
	}
	return nil
}
