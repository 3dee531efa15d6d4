// Package delivery posts supplier receipts. Posting recomputes WAC,
// detects price variance against the period price list, raises automatic
// NCRs, tracks PO delivered quantities and auto-closes fully delivered
// orders. Drafts carry no stock or cost side effects.
package delivery

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates the delivery lifecycle.
type Status string

const (
	StatusDraft  Status = "DRAFT"
	StatusPosted Status = "POSTED"
)

// Delivery is a supplier receipt header.
type Delivery struct {
	ID                   int64
	DeliveryNo           string
	Status               Status
	LocationID           int64
	SupplierID           int64
	POID                 *int64
	InvoiceNo            string
	DeliveryDate         time.Time
	TotalAmount          decimal.Decimal
	HasVariance          bool
	PendingApproval      bool
	OverDeliveryRejected bool
	CreatedBy            int64
	CreatedAt            time.Time
	PostedAt             *time.Time
	Lines                []Line
}

// Line is one received item. The costing fields are computed at posting.
type Line struct {
	ID                   int64
	DeliveryID           int64
	ItemID               int64
	POLineID             *int64
	Qty                  decimal.Decimal
	UnitPrice            decimal.Decimal
	PeriodPrice          *decimal.Decimal
	PriceVariance        decimal.Decimal
	LineValue            decimal.Decimal
	OverDelivery         bool
	OverDeliveryApproved bool
}

var (
	// ErrDeliveryNotFound indicates a missing delivery row.
	ErrDeliveryNotFound = errors.New("delivery: not found")
	// ErrAlreadyPosted indicates a mutation attempt on a POSTED delivery.
	ErrAlreadyPosted = errors.New("delivery: already posted")
	// ErrNotDraft indicates an operation that only applies to drafts.
	ErrNotDraft = errors.New("delivery: not a draft")
	// ErrNotCreator indicates a draft mutation by someone other than its creator.
	ErrNotCreator = errors.New("delivery: drafts are only mutable by their creator")
)

// Input is the save/post payload. ID is set when editing or posting an
// existing draft.
type Input struct {
	ID           int64
	LocationID   int64
	SupplierID   int64
	POID         *int64
	InvoiceNo    string
	DeliveryDate time.Time
	Lines        []LineInput
	ActorID      int64
}

// LineInput is one line of the payload. ApproveOverDelivery records an
// explicit pre-approval captured in the UI before posting.
type LineInput struct {
	ItemID              int64
	POLineID            *int64
	Qty                 decimal.Decimal
	UnitPrice           decimal.Decimal
	ApproveOverDelivery bool
}

// Validate checks the business shape of the input. posting requires the
// invoice number; drafts may omit it.
func (in Input) Validate(posting bool) error {
	if in.LocationID == 0 {
		return errors.New("delivery: location required")
	}
	if in.SupplierID == 0 {
		return errors.New("delivery: supplier required")
	}
	if in.DeliveryDate.IsZero() {
		return errors.New("delivery: delivery date required")
	}
	if posting && strings.TrimSpace(in.InvoiceNo) == "" {
		return errors.New("delivery: invoice number required for posting")
	}
	if len(in.Lines) == 0 {
		return errors.New("delivery: at least one line required")
	}
	for _, l := range in.Lines {
		if l.ItemID == 0 {
			return errors.New("delivery: line item required")
		}
		if !l.Qty.IsPositive() {
			return errors.New("delivery: line quantity must be positive")
		}
		if l.UnitPrice.IsNegative() {
			return errors.New("delivery: line price cannot be negative")
		}
	}
	return nil
}

// PostResult is the outcome of a posting, including side effects the
// caller needs to surface.
type PostResult struct {
	Delivery     Delivery
	NCRNos       []string
	POAutoClosed bool
}
