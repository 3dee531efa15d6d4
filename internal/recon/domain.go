// Package recon computes the period-end reconciliation per location:
// stock movement totals merged with NCR financial outcomes into one
// consumption and cost-per-manday figure.
package recon

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// AdjustmentKind classifies an operator-entered adjustment. Each kind
// carries a fixed sign applied before summation; magnitudes are entered
// non-negative.
type AdjustmentKind string

const (
	AdjBackCharge   AdjustmentKind = "BACK_CHARGE"
	AdjCredit       AdjustmentKind = "CREDIT"
	AdjCondemnation AdjustmentKind = "CONDEMNATION"
	AdjOther        AdjustmentKind = "OTHER"
)

// Sign returns the summation sign for the kind. Credits reduce
// consumption; everything else adds to it.
func (k AdjustmentKind) Sign() decimal.Decimal {
	if k == AdjCredit {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// Valid reports whether the kind is known.
func (k AdjustmentKind) Valid() bool {
	switch k {
	case AdjBackCharge, AdjCredit, AdjCondemnation, AdjOther:
		return true
	}
	return false
}

// Adjustment is one operator entry on a reconciliation.
type Adjustment struct {
	ID         int64
	PeriodID   int64
	LocationID int64
	Kind       AdjustmentKind
	Amount     decimal.Decimal
	Note       string
	CreatedBy  int64
}

// Statement is the reconciliation for one (period, location). Figures are
// recomputed on demand until confirmed, then frozen.
type Statement struct {
	PeriodID     int64
	LocationID   int64
	Opening      decimal.Decimal
	Receipts     decimal.Decimal
	TransfersIn  decimal.Decimal
	TransfersOut decimal.Decimal
	Issues       decimal.Decimal
	Closing      decimal.Decimal
	Adjustments  decimal.Decimal
	NCRCredits   decimal.Decimal
	NCRLosses    decimal.Decimal
	Consumption  decimal.Decimal
	TotalMandays decimal.Decimal
	MandayCost   decimal.Decimal
	Confirmed    bool
	ConfirmedBy  *int64
	ConfirmedAt  *time.Time
	ComputedAt   time.Time
}

var (
	ErrStatementNotFound = errors.New("recon: statement not found")
	ErrConfirmed         = errors.New("recon: statement is confirmed and frozen")
)

// Derive fills the computed figures from the stored ones.
// consumption = opening + receipts + transfersIn - transfersOut - closing
// + adjustments - ncrCredits + ncrLosses. mandayCost is zero when no
// mandays were recorded.
func (st *Statement) Derive() {
	st.Consumption = st.Opening.
		Add(st.Receipts).
		Add(st.TransfersIn).
		Sub(st.TransfersOut).
		Sub(st.Closing).
		Add(st.Adjustments).
		Sub(st.NCRCredits).
		Add(st.NCRLosses)
	if st.TotalMandays.IsPositive() {
		st.MandayCost = st.Consumption.Div(st.TotalMandays).Round(4)
	} else {
		st.MandayCost = decimal.Zero
	}
}

// AdjustmentInput is one entry in a replace-adjustments request.
type AdjustmentInput struct {
	Kind   AdjustmentKind
	Amount decimal.Decimal
	Note   string
}

// Validate checks one adjustment entry.
func (in AdjustmentInput) Validate() error {
	if !in.Kind.Valid() {
		return errors.New("recon: unknown adjustment kind")
	}
	if in.Amount.IsNegative() {
		return errors.New("recon: adjustment amount must be non-negative")
	}
	return nil
}

// SumAdjustments applies each kind's sign and totals the entries.
func SumAdjustments(adjustments []Adjustment) decimal.Decimal {
	total := decimal.Zero
	for _, a := range adjustments {
		total = total.Add(a.Amount.Mul(a.Kind.Sign()))
	}
	return total
}
