package transfer

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler exposes the transfer workflow over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the transfer HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/transfers", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Post("/{id}/submit", h.submit)
		r.Post("/{id}/approve", h.approve)
		r.Post("/{id}/reject", h.reject)
	})
}

type lineRequest struct {
	ItemID int64           `json:"item_id" validate:"required"`
	Qty    decimal.Decimal `json:"qty" validate:"required"`
}

type createRequest struct {
	FromLocationID int64         `json:"from_location_id" validate:"required"`
	ToLocationID   int64         `json:"to_location_id" validate:"required"`
	TransferDate   string        `json:"transfer_date" validate:"required"`
	Lines          []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type lineResponse struct {
	ID            int64           `json:"id"`
	ItemID        int64           `json:"item_id"`
	Qty           decimal.Decimal `json:"qty"`
	WACAtTransfer decimal.Decimal `json:"wac_at_transfer"`
	LineValue     decimal.Decimal `json:"line_value"`
}

type transferResponse struct {
	ID             int64           `json:"id"`
	TransferNo     string          `json:"transfer_no"`
	Status         string          `json:"status"`
	FromLocationID int64           `json:"from_location_id"`
	ToLocationID   int64           `json:"to_location_id"`
	TransferDate   string          `json:"transfer_date"`
	TotalValue     decimal.Decimal `json:"total_value"`
	RejectReason   string          `json:"reject_reason,omitempty"`
	Lines          []lineResponse  `json:"lines,omitempty"`
}

func toTransferResponse(tr Transfer) transferResponse {
	out := transferResponse{
		ID:             tr.ID,
		TransferNo:     tr.TransferNo,
		Status:         string(tr.Status),
		FromLocationID: tr.FromLocationID,
		ToLocationID:   tr.ToLocationID,
		TransferDate:   tr.TransferDate.Format("2006-01-02"),
		TotalValue:     tr.TotalValue,
		RejectReason:   tr.RejectReason,
	}
	for _, l := range tr.Lines {
		out.Lines = append(out.Lines, lineResponse{
			ID:            l.ID,
			ItemID:        l.ItemID,
			Qty:           l.Qty,
			WACAtTransfer: l.WACAtTransfer,
			LineValue:     l.LineValue,
		})
	}
	return out
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.Wrap(err, shared.CodeValidation, "invalid JSON body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.Wrap(err, shared.CodeValidation, "invalid request: %s", err.Error()))
		return
	}
	date, err := time.Parse("2006-01-02", req.TransferDate)
	if err != nil {
		httpx.RespondError(w, shared.E(shared.CodeValidation, "transfer_date must be YYYY-MM-DD"))
		return
	}
	actor := shared.ActorFromContext(r.Context())
	in := Input{
		FromLocationID: req.FromLocationID,
		ToLocationID:   req.ToLocationID,
		TransferDate:   date,
		ActorID:        actor.ID,
	}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, LineInput{ItemID: l.ItemID, Qty: l.Qty})
	}
	tr, err := h.service.Create(r.Context(), actor, in)
	if err != nil {
		h.logger.Warn("create transfer", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toTransferResponse(tr))
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Submit)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Approve)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.Wrap(err, shared.CodeValidation, "invalid JSON body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.E(shared.CodeValidation, "reason required"))
		return
	}
	tr, err := h.service.Reject(r.Context(), shared.ActorFromContext(r.Context()), id, req.Reason)
	if err != nil {
		h.logger.Warn("reject transfer", slog.Int64("transfer_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTransferResponse(tr))
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(context.Context, shared.Actor, int64) (Transfer, error)) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	tr, err := op(r.Context(), shared.ActorFromContext(r.Context()), id)
	if err != nil {
		h.logger.Warn("transfer transition", slog.Int64("transfer_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTransferResponse(tr))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	tr, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTransferResponse(tr))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	locationID, err := strconv.ParseInt(r.URL.Query().Get("location"), 10, 64)
	if err != nil || locationID <= 0 {
		httpx.RespondError(w, shared.E(shared.CodeValidation, "location query parameter required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	transfers, err := h.service.ListByLocation(r.Context(), locationID, limit)
	if err != nil {
		h.logger.Error("list transfers", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]transferResponse, 0, len(transfers))
	for _, tr := range transfers {
		out = append(out, toTransferResponse(tr))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.E(shared.CodeValidation, "invalid id"))
		return 0, false
	}
	return id, true
}
