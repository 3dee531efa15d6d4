package recon

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler exposes reconciliation over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the reconciliation HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/reconciliations", func(r chi.Router) {
		r.Get("/", h.get)
		r.Post("/confirm", h.confirm)
		r.Put("/adjustments", h.setAdjustments)
		r.Put("/mandays", h.setMandays)
	})
}

type statementResponse struct {
	PeriodID     int64           `json:"period_id"`
	LocationID   int64           `json:"location_id"`
	Opening      decimal.Decimal `json:"opening"`
	Receipts     decimal.Decimal `json:"receipts"`
	TransfersIn  decimal.Decimal `json:"transfers_in"`
	TransfersOut decimal.Decimal `json:"transfers_out"`
	Issues       decimal.Decimal `json:"issues"`
	Closing      decimal.Decimal `json:"closing"`
	Adjustments  decimal.Decimal `json:"adjustments"`
	NCRCredits   decimal.Decimal `json:"ncr_credits"`
	NCRLosses    decimal.Decimal `json:"ncr_losses"`
	Consumption  decimal.Decimal `json:"consumption"`
	TotalMandays decimal.Decimal `json:"total_mandays"`
	MandayCost   decimal.Decimal `json:"manday_cost"`
	Confirmed    bool            `json:"confirmed"`
}

func toStatementResponse(st Statement) statementResponse {
	return statementResponse{
		PeriodID:     st.PeriodID,
		LocationID:   st.LocationID,
		Opening:      st.Opening,
		Receipts:     st.Receipts,
		TransfersIn:  st.TransfersIn,
		TransfersOut: st.TransfersOut,
		Issues:       st.Issues,
		Closing:      st.Closing,
		Adjustments:  st.Adjustments,
		NCRCredits:   st.NCRCredits,
		NCRLosses:    st.NCRLosses,
		Consumption:  st.Consumption,
		TotalMandays: st.TotalMandays,
		MandayCost:   st.MandayCost,
		Confirmed:    st.Confirmed,
	}
}

func (h *Handler) keys(w http.ResponseWriter, r *http.Request) (periodID, locationID int64, ok bool) {
	periodID, err := strconv.ParseInt(r.URL.Query().Get("period"), 10, 64)
	if err != nil || periodID <= 0 {
		httpx.RespondError(w, shared.E(shared.CodeValidation, "period query parameter required"))
		return 0, 0, false
	}
	locationID, err = strconv.ParseInt(r.URL.Query().Get("location"), 10, 64)
	if err != nil || locationID <= 0 {
		httpx.RespondError(w, shared.E(shared.CodeValidation, "location query parameter required"))
		return 0, 0, false
	}
	return periodID, locationID, true
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	periodID, locationID, ok := h.keys(w, r)
	if !ok {
		return
	}
	st, err := h.service.Reconcile(r.Context(), periodID, locationID)
	if err != nil {
		h.logger.Warn("reconcile", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toStatementResponse(st))
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	periodID, locationID, ok := h.keys(w, r)
	if !ok {
		return
	}
	st, err := h.service.Confirm(r.Context(), shared.ActorFromContext(r.Context()), periodID, locationID)
	if err != nil {
		h.logger.Warn("confirm reconciliation", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toStatementResponse(st))
}

type adjustmentEntry struct {
	Kind   string          `json:"kind" validate:"required,oneof=BACK_CHARGE CREDIT CONDEMNATION OTHER"`
	Amount decimal.Decimal `json:"amount" validate:"required"`
	Note   string          `json:"note"`
}

type adjustmentsRequest struct {
	Entries []adjustmentEntry `json:"entries" validate:"dive"`
}

func (h *Handler) setAdjustments(w http.ResponseWriter, r *http.Request) {
	periodID, locationID, ok := h.keys(w, r)
	if !ok {
		return
	}
	var req adjustmentsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.Wrap(err, shared.CodeValidation, "invalid JSON body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.Wrap(err, shared.CodeValidation, "invalid request: %s", err.Error()))
		return
	}
	entries := make([]AdjustmentInput, 0, len(req.Entries))
	for _, e := range req.Entries {
		entries = append(entries, AdjustmentInput{Kind: AdjustmentKind(e.Kind), Amount: e.Amount, Note: e.Note})
	}
	st, err := h.service.SetAdjustments(r.Context(), shared.ActorFromContext(r.Context()), periodID, locationID, entries)
	if err != nil {
		h.logger.Warn("set adjustments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toStatementResponse(st))
}

type mandaysRequest struct {
	TotalMandays decimal.Decimal `json:"total_mandays"`
}

func (h *Handler) setMandays(w http.ResponseWriter, r *http.Request) {
	periodID, locationID, ok := h.keys(w, r)
	if !ok {
		return
	}
	var req mandaysRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.Wrap(err, shared.CodeValidation, "invalid JSON body"))
		return
	}
	st, err := h.service.SetMandays(r.Context(), shared.ActorFromContext(r.Context()), periodID, locationID, req.TotalMandays)
	if err != nil {
		h.logger.Warn("set mandays", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toStatementResponse(st))
}
