package shared

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable error code returned to callers.
type Code string

const (
	// CodeNotFound indicates a referenced entity does not exist.
	CodeNotFound Code = "NOT_FOUND"
	// CodeAccessDenied indicates the actor lacks access to the target location or action.
	CodeAccessDenied Code = "ACCESS_DENIED"
	// CodePeriodClosed indicates the governing period or location is not open for posting.
	CodePeriodClosed Code = "PERIOD_CLOSED"
	// CodePONotOpen indicates the referenced purchase order is not in OPEN status.
	CodePONotOpen Code = "PO_NOT_OPEN"
	// CodeSupplierMismatch indicates the PO supplier differs from the delivery supplier.
	CodeSupplierMismatch Code = "SUPPLIER_MISMATCH"
	// CodeDuplicateInvoice indicates the invoice number is already used by another delivery.
	CodeDuplicateInvoice Code = "DUPLICATE_INVOICE"
	// CodeInsufficientStock indicates an issue or transfer exceeds on-hand quantity.
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	// CodeOverDeliveryNotApproved blocks posting a delivery with unapproved over-delivery lines.
	CodeOverDeliveryNotApproved Code = "OVER_DELIVERY_NOT_APPROVED"
	// CodeItemInactive indicates a referenced item exists but is not active.
	CodeItemInactive Code = "ITEM_INACTIVE"
	// CodeDeliveryAlreadyPosted indicates a re-post attempt on a POSTED delivery.
	CodeDeliveryAlreadyPosted Code = "DELIVERY_ALREADY_POSTED"
	// CodeTransferFinalized indicates the transfer is in a terminal state.
	CodeTransferFinalized Code = "TRANSFER_FINALIZED"
	// CodeValidation indicates structurally invalid input.
	CodeValidation Code = "VALIDATION"
	// CodeConflict indicates a concurrency or uniqueness collision worth retrying.
	CodeConflict Code = "CONFLICT"
	// CodeInternal indicates an unexpected failure; details are logged, not surfaced.
	CodeInternal Code = "INTERNAL"
)

// Error carries a code plus a human-readable message across layer boundaries.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return string(e.Code)
}

// Unwrap exposes the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// E builds a coded error.
func E(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
