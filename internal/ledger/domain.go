// Package ledger owns the per-location, per-item stock record. Every
// stock mutation in the system flows through a Position transition so the
// non-negative on-hand invariant lives in exactly one place.
package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/costing"
)

// Position is the stock record for one item at one location. Created on
// first receipt, never deleted.
type Position struct {
	LocationID int64
	ItemID     int64
	OnHand     decimal.Decimal
	WAC        decimal.Decimal
	UpdatedAt  time.Time
}

// ErrPositionNotFound indicates no stock row exists for (location, item).
var ErrPositionNotFound = errors.New("ledger: stock position not found")

// ErrNegativeStock is returned when a deduction would take on-hand below zero.
var ErrNegativeStock = errors.New("ledger: on-hand quantity cannot go negative")

// ErrInvalidQuantity indicates a non-positive movement quantity.
var ErrInvalidQuantity = errors.New("ledger: quantity must be positive")

// Receiving returns the position after receiving qty units at unitPrice,
// with WAC recomputed as the quantity-weighted average.
func (p Position) Receiving(qty, unitPrice decimal.Decimal) (Position, error) {
	if !qty.IsPositive() {
		return Position{}, ErrInvalidQuantity
	}
	next := p
	next.WAC = costing.ComputeWAC(p.OnHand, p.WAC, qty, unitPrice)
	next.OnHand = p.OnHand.Add(qty)
	return next, nil
}

// Deducting returns the position after issuing qty units. WAC is untouched;
// consumption never revalues remaining stock.
func (p Position) Deducting(qty decimal.Decimal) (Position, error) {
	if !qty.IsPositive() {
		return Position{}, ErrInvalidQuantity
	}
	remaining := p.OnHand.Sub(qty)
	if remaining.IsNegative() {
		return Position{}, ErrNegativeStock
	}
	next := p
	next.OnHand = remaining
	return next, nil
}

// Value is the current stock value of the position.
func (p Position) Value() decimal.Decimal {
	return costing.LineValue(p.OnHand, p.WAC)
}
