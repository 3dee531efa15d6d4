package httpx

import (
	"net/http"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RespondError maps coded domain errors to RFC7807 responses. Internal
// errors are surfaced generically without leaking state.
func RespondError(w http.ResponseWriter, err error) {
	code := shared.CodeOf(err)
	switch code {
	case shared.CodeNotFound:
		Problem(w, http.StatusNotFound, "Not Found", err.Error(), string(code))
	case shared.CodeAccessDenied:
		Problem(w, http.StatusForbidden, "Forbidden", err.Error(), string(code))
	case shared.CodeValidation, shared.CodeItemInactive, shared.CodeSupplierMismatch, shared.CodePONotOpen:
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error(), string(code))
	case shared.CodePeriodClosed, shared.CodeInsufficientStock, shared.CodeOverDeliveryNotApproved,
		shared.CodeDeliveryAlreadyPosted, shared.CodeTransferFinalized:
		Problem(w, http.StatusUnprocessableEntity, "Business Rule Violated", err.Error(), string(code))
	case shared.CodeDuplicateInvoice, shared.CodeConflict:
		Problem(w, http.StatusConflict, "Conflict", err.Error(), string(code))
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "", string(shared.CodeInternal))
	}
}
