// Package transfer moves stock between locations through an approval
// workflow. The movement itself happens only on approval, as one atomic
// two-sided mutation.
package transfer

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the transfer lifecycle state.
type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusRejected        Status = "REJECTED"
	StatusCompleted       Status = "COMPLETED"
)

// Terminal reports whether no further transition is allowed. Rejection
// is final; a rejected transfer is recreated, never revived.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCompleted
}

// Transfer is the header document.
type Transfer struct {
	ID             int64
	TransferNo     string
	Status         Status
	FromLocationID int64
	ToLocationID   int64
	TransferDate   time.Time
	TotalValue     decimal.Decimal
	CreatedBy      int64
	CreatedAt      time.Time
	DecidedBy      *int64
	DecidedAt      *time.Time
	RejectReason   string
	Lines          []Line
}

// Line carries the quantity and the source WAC snapshotted at creation.
// The snapshot prices the destination receipt even if the source WAC
// drifts between creation and approval.
type Line struct {
	ID            int64
	TransferID    int64
	ItemID        int64
	Qty           decimal.Decimal
	WACAtTransfer decimal.Decimal
	LineValue     decimal.Decimal
}

var (
	ErrTransferNotFound = errors.New("transfer: not found")
	ErrFinalized        = errors.New("transfer: already finalized")
	ErrNotPending       = errors.New("transfer: not pending approval")
	ErrSameLocation     = errors.New("transfer: source and destination must differ")
	ErrNoLines          = errors.New("transfer: at least one line required")
)

// Input is the creation request.
type Input struct {
	FromLocationID int64
	ToLocationID   int64
	TransferDate   time.Time
	Lines          []LineInput
	ActorID        int64
}

// LineInput is one requested movement line.
type LineInput struct {
	ItemID int64
	Qty    decimal.Decimal
}

// Validate checks structural rules.
func (in Input) Validate() error {
	if in.FromLocationID <= 0 || in.ToLocationID <= 0 {
		return errors.New("transfer: source and destination locations required")
	}
	if in.FromLocationID == in.ToLocationID {
		return ErrSameLocation
	}
	if in.TransferDate.IsZero() {
		return errors.New("transfer: transfer date required")
	}
	if len(in.Lines) == 0 {
		return ErrNoLines
	}
	seen := map[int64]bool{}
	for _, l := range in.Lines {
		if l.ItemID <= 0 {
			return errors.New("transfer: line item required")
		}
		if !l.Qty.IsPositive() {
			return errors.New("transfer: line quantity must be positive")
		}
		if seen[l.ItemID] {
			return errors.New("transfer: duplicate item on lines")
		}
		seen[l.ItemID] = true
	}
	return nil
}
