// Package procurement owns purchase request forms and purchase orders.
// Deliveries consume PO lines; when every line is fully delivered the PO
// and its originating PRF close automatically.
package procurement

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// POStatus enumerates the purchase order lifecycle.
type POStatus string

const (
	POStatusDraft     POStatus = "DRAFT"
	POStatusOpen      POStatus = "OPEN"
	POStatusClosed    POStatus = "CLOSED"
	POStatusCancelled POStatus = "CANCELLED"
)

// PRFStatus enumerates the purchase request lifecycle.
type PRFStatus string

const (
	PRFStatusDraft    PRFStatus = "DRAFT"
	PRFStatusApproved PRFStatus = "APPROVED"
	PRFStatusClosed   PRFStatus = "CLOSED"
)

// PRF is a purchase request form raised by a location.
type PRF struct {
	ID         int64
	PRFNo      string
	LocationID int64
	Status     PRFStatus
	Notes      string
	CreatedBy  int64
	CreatedAt  time.Time
}

// PurchaseOrder is an order placed with a supplier, optionally raised
// from an approved PRF.
type PurchaseOrder struct {
	ID         int64
	PONo       string
	SupplierID int64
	PRFID      *int64
	Status     POStatus
	OrderDate  time.Time
	CreatedBy  int64
	CreatedAt  time.Time
	Lines      []POLine
}

// POLine is one ordered item. DeliveredQty accumulates as deliveries
// post against the line.
type POLine struct {
	ID           int64
	POID         int64
	ItemID       int64
	Qty          decimal.Decimal
	UnitPrice    decimal.Decimal
	DeliveredQty decimal.Decimal
}

// RemainingQty is the undelivered balance of the line.
func (l POLine) RemainingQty() decimal.Decimal {
	return l.Qty.Sub(l.DeliveredQty)
}

// FullyDelivered reports whether deliveries have covered the ordered qty.
func (l POLine) FullyDelivered() bool {
	return l.DeliveredQty.GreaterThanOrEqual(l.Qty)
}

// FullyDelivered reports whether every line of the PO is covered.
func (po PurchaseOrder) FullyDelivered() bool {
	if len(po.Lines) == 0 {
		return false
	}
	for _, l := range po.Lines {
		if !l.FullyDelivered() {
			return false
		}
	}
	return true
}

var (
	// ErrPONotFound indicates a missing purchase order.
	ErrPONotFound = errors.New("procurement: purchase order not found")
	// ErrPRFNotFound indicates a missing purchase request form.
	ErrPRFNotFound = errors.New("procurement: purchase request not found")
	// ErrPOLineNotFound indicates a missing PO line.
	ErrPOLineNotFound = errors.New("procurement: purchase order line not found")
	// ErrInvalidStatus indicates a lifecycle change the current status forbids.
	ErrInvalidStatus = errors.New("procurement: invalid status for operation")
	// ErrNoLines indicates a PO created without lines.
	ErrNoLines = errors.New("procurement: purchase order needs at least one line")
)

// CreatePOInput is the payload for registering a purchase order.
type CreatePOInput struct {
	SupplierID int64
	PRFID      *int64
	OrderDate  time.Time
	Lines      []POLineInput
	ActorID    int64
}

// POLineInput is one ordered line in a create request.
type POLineInput struct {
	ItemID    int64
	Qty       decimal.Decimal
	UnitPrice decimal.Decimal
}

// Validate checks structural coherence of the create input.
func (in CreatePOInput) Validate() error {
	if in.SupplierID == 0 {
		return errors.New("procurement: supplier required")
	}
	if in.OrderDate.IsZero() {
		return errors.New("procurement: order date required")
	}
	if len(in.Lines) == 0 {
		return ErrNoLines
	}
	for _, l := range in.Lines {
		if l.ItemID == 0 {
			return errors.New("procurement: line item required")
		}
		if !l.Qty.IsPositive() {
			return errors.New("procurement: line quantity must be positive")
		}
		if l.UnitPrice.IsNegative() {
			return errors.New("procurement: line price cannot be negative")
		}
	}
	return nil
}

// CreatePRFInput is the payload for raising a purchase request.
type CreatePRFInput struct {
	LocationID int64
	Notes      string
	ActorID    int64
}
