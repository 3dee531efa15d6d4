package ncr

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler exposes NCR operations over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the NCR HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/ncrs", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.createManual)
		r.Get("/{id}", h.get)
		r.Put("/{id}/status", h.updateStatus)
	})
}

type ncrResponse struct {
	ID             int64           `json:"id"`
	NCRNo          string          `json:"ncr_no"`
	Type           string          `json:"type"`
	Status         string          `json:"status"`
	AutoGenerated  bool            `json:"auto_generated"`
	LocationID     int64           `json:"location_id"`
	SupplierID     int64           `json:"supplier_id"`
	DeliveryID     *int64          `json:"delivery_id,omitempty"`
	DeliveryLineID *int64          `json:"delivery_line_id,omitempty"`
	ItemID         *int64          `json:"item_id,omitempty"`
	Value          decimal.Decimal `json:"value"`
	Description    string          `json:"description"`
	ResolutionType string          `json:"resolution_type,omitempty"`
	Impact         string          `json:"impact"`
	CreatedAt      time.Time       `json:"created_at"`
}

func toNCRResponse(n NCR) ncrResponse {
	return ncrResponse{
		ID:             n.ID,
		NCRNo:          n.NCRNo,
		Type:           string(n.Type),
		Status:         string(n.Status),
		AutoGenerated:  n.AutoGenerated,
		LocationID:     n.LocationID,
		SupplierID:     n.SupplierID,
		DeliveryID:     n.DeliveryID,
		DeliveryLineID: n.DeliveryLineID,
		ItemID:         n.ItemID,
		Value:          n.Value,
		Description:    n.Description,
		ResolutionType: n.ResolutionType,
		Impact:         string(n.Impact),
		CreatedAt:      n.CreatedAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	locationID, err := strconv.ParseInt(r.URL.Query().Get("location"), 10, 64)
	if err != nil || locationID <= 0 {
		httpx.RespondError(w, shared.E(shared.CodeValidation, "location query parameter required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	ncrs, err := h.service.ListByLocation(r.Context(), locationID, limit)
	if err != nil {
		h.logger.Error("list ncrs", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]ncrResponse, 0, len(ncrs))
	for _, n := range ncrs {
		out = append(out, toNCRResponse(n))
	}
	httpx.JSON(w, http.StatusOK, out)
}

type createManualRequest struct {
	LocationID  int64           `json:"location_id"`
	SupplierID  int64           `json:"supplier_id"`
	ItemID      *int64          `json:"item_id"`
	Value       decimal.Decimal `json:"value"`
	Description string          `json:"description"`
}

func (h *Handler) createManual(w http.ResponseWriter, r *http.Request) {
	var req createManualRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.Wrap(err, shared.CodeValidation, "invalid JSON body"))
		return
	}
	actor := shared.ActorFromContext(r.Context())
	n, err := h.service.CreateManual(r.Context(), actor, CreateManualInput{
		LocationID:  req.LocationID,
		SupplierID:  req.SupplierID,
		ItemID:      req.ItemID,
		Value:       req.Value,
		Description: req.Description,
		ActorID:     actor.ID,
	})
	if err != nil {
		h.logger.Warn("create manual ncr", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toNCRResponse(n))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	n, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toNCRResponse(n))
}

type updateStatusRequest struct {
	Status         string `json:"status"`
	Impact         string `json:"impact"`
	ResolutionType string `json:"resolution_type"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req updateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.Wrap(err, shared.CodeValidation, "invalid JSON body"))
		return
	}
	actor := shared.ActorFromContext(r.Context())
	n, err := h.service.UpdateStatus(r.Context(), actor, id, Status(req.Status), FinancialImpact(req.Impact), req.ResolutionType)
	if err != nil {
		h.logger.Warn("update ncr status", slog.Int64("ncr_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toNCRResponse(n))
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.E(shared.CodeValidation, "invalid id"))
		return 0, false
	}
	return id, true
}
