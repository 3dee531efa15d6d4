// Package issue posts stock consumption. Issues have no draft state; a
// posted issue is immutable and WAC is never recomputed on the way out.
package issue

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Issue is a posted consumption document.
type Issue struct {
	ID           int64
	IssueNo      string
	LocationID   int64
	CostCentreID int64
	IssueDate    time.Time
	TotalValue   decimal.Decimal
	CreatedBy    int64
	CreatedAt    time.Time
	Lines        []Line
}

// Line records one consumed item with the WAC captured at posting time.
type Line struct {
	ID         int64
	IssueID    int64
	ItemID     int64
	Qty        decimal.Decimal
	WACAtIssue decimal.Decimal
	LineValue  decimal.Decimal
}

var (
	ErrIssueNotFound = errors.New("issue: not found")
	ErrNoLines       = errors.New("issue: at least one line required")
)

// Input is the posting request.
type Input struct {
	LocationID   int64
	CostCentreID int64
	IssueDate    time.Time
	Lines        []LineInput
	ActorID      int64
}

// LineInput is one requested consumption line.
type LineInput struct {
	ItemID int64
	Qty    decimal.Decimal
}

// Validate checks structural rules before any storage work.
func (in Input) Validate() error {
	if in.LocationID <= 0 {
		return errors.New("issue: location required")
	}
	if in.CostCentreID <= 0 {
		return errors.New("issue: cost centre required")
	}
	if in.IssueDate.IsZero() {
		return errors.New("issue: issue date required")
	}
	if len(in.Lines) == 0 {
		return ErrNoLines
	}
	seen := map[int64]bool{}
	for _, l := range in.Lines {
		if l.ItemID <= 0 {
			return errors.New("issue: line item required")
		}
		if !l.Qty.IsPositive() {
			return errors.New("issue: line quantity must be positive")
		}
		if seen[l.ItemID] {
			return errors.New("issue: duplicate item on lines")
		}
		seen[l.ItemID] = true
	}
	return nil
}
